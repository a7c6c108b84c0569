package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const logPrefix = "manifest:loader"

// EnvManifestFile names the environment variable consulted after explicit paths.
const EnvManifestFile = "CHATOPS_MANIFEST_FILE"

// LoadManifest loads a manifest from file paths or environment.
// It tries paths in order: first any paths passed in, then CHATOPS_MANIFEST_FILE,
// then config/chatops.json and chatops.json. Unreadable or invalid files are
// skipped. When nothing loads the default manifest is returned.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvManifestFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/chatops.json", "chatops.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		m, err := Parse(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to load manifest file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded manifest from %s (%d commands)", logPrefix, p, len(m.Commands)))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return DefaultManifest(), nil
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s - decode: %w", logPrefix, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the version constraint and per-command required fields.
// Pattern compilation and handler resolution happen in Build.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("%s - version is required", logPrefix)
	}
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return fmt.Errorf("%s - invalid version %q: %w", logPrefix, m.Version, err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return fmt.Errorf("%s - constraint: %w", logPrefix, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%s - manifest version %s does not satisfy %s", logPrefix, m.Version, SupportedVersions)
	}
	if strings.TrimSpace(m.Namespace) == "" {
		return fmt.Errorf("%s - namespace is required", logPrefix)
	}

	seen := make(map[string]bool, len(m.Commands))
	for i, c := range m.Commands {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%s - commands[%d]: name is required", logPrefix, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("%s - commands[%d]: duplicate command %q", logPrefix, i, c.Name)
		}
		seen[c.Name] = true
		if c.Handler == "" {
			return fmt.Errorf("%s - command %s: handler is required", logPrefix, c.Name)
		}
	}
	return nil
}

// DefaultManifest returns the embedded fallback manifest.
func DefaultManifest() *Manifest {
	return &Manifest{
		Version:       "1.0.0",
		Namespace:     "chatops",
		Help:          "Built-in chat commands",
		ErrorResponse: "Something went wrong, check the service logs",
		Commands: []CommandSpec{
			{
				Name:    "ping",
				Pattern: `ping`,
				Help:    "ping - check that the service answers",
				Handler: "ping",
			},
			{
				Name:    "echo",
				Pattern: `echo (?<text>.+)`,
				Help:    "echo <text> - repeat text back",
				Handler: "echo",
				Require: []string{"text"},
			},
			{
				Name:    "whoami",
				Pattern: `who ?am ?i`,
				Help:    "whoami - show the user and room the service sees",
				Handler: "whoami",
			},
			{
				Name:    "help",
				Pattern: `help(?: (?<command>\S+))?`,
				Help:    "help [command] - list commands or describe one",
				Handler: "help",
			},
		},
	}
}

// Merge overlays override onto base. Commands in override replace base commands
// of the same name in place; new ones are appended. Non-empty metadata fields
// of override win.
func Merge(base, override *Manifest) *Manifest {
	merged := *base
	merged.Commands = make([]CommandSpec, len(base.Commands))
	copy(merged.Commands, base.Commands)

	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Namespace != "" {
		merged.Namespace = override.Namespace
	}
	if override.Help != "" {
		merged.Help = override.Help
	}
	if override.ErrorResponse != "" {
		merged.ErrorResponse = override.ErrorResponse
	}

	for _, c := range override.Commands {
		if existing := merged.Get(c.Name); existing != nil {
			*existing = c
			continue
		}
		merged.Commands = append(merged.Commands, c)
	}
	return &merged
}
