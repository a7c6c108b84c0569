package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/morezero/chatops-rpc/pkg/registry"
)

func stubHandlers() map[string]registry.Handler {
	h := func(_ context.Context, inv *registry.Invocation) (interface{}, error) {
		return inv.Command, nil
	}
	return map[string]registry.Handler{"ping": h, "echo": h, "whoami": h, "help": h}
}

func writeManifest(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("manifest:loader_test - write %s: %v", p, err)
	}
	return p
}

const deployManifest = `{
	"version": "1.2.0",
	"namespace": "deploy",
	"help": "Deploy things",
	"error_response": "Ask #ops",
	"commands": [
		{"name": "wcid", "pattern": "(?:where can i deploy|wcid)(?: (?<app>\\S+))?", "help": "where can i deploy?", "handler": "echo", "require": ["app"]},
		{"name": "ping", "pattern": "ping", "handler": "ping"}
	]
}`

func TestDefaultManifest(t *testing.T) {
	m := DefaultManifest()

	if err := m.Validate(); err != nil {
		t.Fatalf("manifest:loader_test - default manifest invalid: %v", err)
	}
	want := []string{"ping", "echo", "whoami", "help"}
	if got := strings.Join(m.Names(), ","); got != strings.Join(want, ",") {
		t.Errorf("manifest:loader_test - names = %s, want %v", got, want)
	}
	if m.Get("echo") == nil || m.Get("echo").Handler != "echo" {
		t.Error("manifest:loader_test - expected echo command")
	}
	if m.Get("nope") != nil {
		t.Error("manifest:loader_test - expected nil for unknown command")
	}
}

func TestLoadManifest_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	p := writeManifest(t, dir, "deploy.json", deployManifest)

	m, err := LoadManifest(p)
	if err != nil {
		t.Fatalf("manifest:loader_test - LoadManifest failed: %v", err)
	}
	if m.Namespace != "deploy" {
		t.Errorf("manifest:loader_test - namespace = %s, want deploy", m.Namespace)
	}
	if len(m.Commands) != 2 {
		t.Errorf("manifest:loader_test - expected 2 commands, got %d", len(m.Commands))
	}
}

func TestLoadManifest_EnvFallback(t *testing.T) {
	dir := t.TempDir()
	bad := writeManifest(t, dir, "bad.json", `{not json`)
	good := writeManifest(t, dir, "good.json", deployManifest)
	t.Setenv(EnvManifestFile, good)

	m, err := LoadManifest(bad, filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("manifest:loader_test - LoadManifest failed: %v", err)
	}
	if m.Namespace != "deploy" {
		t.Errorf("manifest:loader_test - expected env manifest, got namespace %s", m.Namespace)
	}
}

func TestLoadManifest_DefaultWhenNothingLoads(t *testing.T) {
	t.Setenv(EnvManifestFile, "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("manifest:loader_test - getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("manifest:loader_test - chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	m, err := LoadManifest()
	if err != nil {
		t.Fatalf("manifest:loader_test - LoadManifest failed: %v", err)
	}
	if m.Namespace != DefaultManifest().Namespace {
		t.Errorf("manifest:loader_test - expected default manifest, got %s", m.Namespace)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Manifest
		wantErr string
	}{
		{name: "missing version", m: Manifest{Namespace: "x"}, wantErr: "version is required"},
		{name: "bad version", m: Manifest{Version: "one", Namespace: "x"}, wantErr: "invalid version"},
		{name: "unsupported major", m: Manifest{Version: "2.0.0", Namespace: "x"}, wantErr: "does not satisfy"},
		{name: "missing namespace", m: Manifest{Version: "1.0.0"}, wantErr: "namespace is required"},
		{
			name:    "nameless command",
			m:       Manifest{Version: "1.0.0", Namespace: "x", Commands: []CommandSpec{{Pattern: "a", Handler: "ping"}}},
			wantErr: "name is required",
		},
		{
			name: "duplicate command",
			m: Manifest{Version: "1.0.0", Namespace: "x", Commands: []CommandSpec{
				{Name: "a", Pattern: "a", Handler: "ping"},
				{Name: "a", Pattern: "b", Handler: "ping"},
			}},
			wantErr: "duplicate command",
		},
		{
			name:    "missing handler",
			m:       Manifest{Version: "1.0.0", Namespace: "x", Commands: []CommandSpec{{Name: "a", Pattern: "a"}}},
			wantErr: "handler is required",
		},
		{name: "minor version accepted", m: Manifest{Version: "1.9.3", Namespace: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("manifest:loader_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("manifest:loader_test - error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	m, err := Parse([]byte(deployManifest))
	if err != nil {
		t.Fatalf("manifest:build_test - Parse failed: %v", err)
	}

	reg, err := Build(m, stubHandlers(), 0)
	if err != nil {
		t.Fatalf("manifest:build_test - Build failed: %v", err)
	}

	cfg := reg.Config()
	if cfg.Namespace != "deploy" || cfg.Help != "Deploy things" || cfg.ErrorResponse != "Ask #ops" {
		t.Errorf("manifest:build_test - unexpected config %+v", cfg)
	}
	cat := reg.Catalog()
	if got := strings.Join(cat.Methods.Names(), ","); got != "wcid,ping" {
		t.Errorf("manifest:build_test - methods = %s, want wcid,ping", got)
	}

	guards := reg.GuardsFor("wcid")
	if len(guards) != 1 {
		t.Fatalf("manifest:build_test - expected 1 guard on wcid, got %d", len(guards))
	}
	var ipe *registry.InvalidParamsError
	err = guards[0](context.Background(), &registry.Invocation{Command: "wcid", User: "foo"})
	if !errors.As(err, &ipe) {
		t.Errorf("manifest:build_test - expected InvalidParams from require guard, got %v", err)
	}
	if len(reg.GuardsFor("ping")) != 0 {
		t.Error("manifest:build_test - expected no guards on ping")
	}
}

func TestBuild_RoomOnly(t *testing.T) {
	m := &Manifest{Version: "1.0.0", Namespace: "x", Commands: []CommandSpec{
		{Name: "lock", Pattern: "lock (?<target>\\S+)", Handler: "echo", RoomOnly: true, Require: []string{"target"}},
	}}

	reg, err := Build(m, stubHandlers(), 0)
	if err != nil {
		t.Fatalf("manifest:build_test - Build failed: %v", err)
	}
	if n := len(reg.GuardsFor("lock")); n != 2 {
		t.Errorf("manifest:build_test - expected 2 guards, got %d", n)
	}
}

func TestBuild_UnknownHandler(t *testing.T) {
	m := &Manifest{Version: "1.0.0", Namespace: "x", Commands: []CommandSpec{
		{Name: "deploy", Pattern: "deploy", Handler: "shipit"},
	}}

	_, err := Build(m, stubHandlers(), 0)
	if err == nil || !strings.Contains(err.Error(), `unknown handler "shipit"`) {
		t.Errorf("manifest:build_test - expected unknown handler error, got %v", err)
	}
}

func TestBuild_InvalidPattern(t *testing.T) {
	m := &Manifest{Version: "1.0.0", Namespace: "x", Commands: []CommandSpec{
		{Name: "broken", Pattern: "(oops", Handler: "ping"},
	}}

	_, err := Build(m, stubHandlers(), 0)
	var rerr *registry.RegistryError
	if !errors.As(err, &rerr) || rerr.Code != registry.CodeInvalidPattern {
		t.Errorf("manifest:build_test - expected INVALID_PATTERN, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultManifest()
	override := &Manifest{
		Namespace: "ops",
		Commands: []CommandSpec{
			{Name: "ping", Pattern: "ping|pong", Handler: "ping"},
			{Name: "deploy", Pattern: "deploy (?<app>\\S+)", Handler: "echo"},
		},
	}

	merged := Merge(base, override)

	if merged.Namespace != "ops" {
		t.Errorf("manifest:loader_test - namespace = %s, want ops", merged.Namespace)
	}
	if merged.Version != base.Version {
		t.Errorf("manifest:loader_test - version should be kept, got %s", merged.Version)
	}
	if got := strings.Join(merged.Names(), ","); got != "ping,echo,whoami,help,deploy" {
		t.Errorf("manifest:loader_test - names = %s", got)
	}
	if merged.Get("ping").Pattern != "ping|pong" {
		t.Errorf("manifest:loader_test - ping not replaced: %s", merged.Get("ping").Pattern)
	}
	if base.Get("ping").Pattern != "ping" {
		t.Error("manifest:loader_test - base was mutated")
	}
}
