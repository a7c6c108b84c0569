package registry

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const logPrefix = "registry:registry"

// Config holds registry-level metadata rendered in the catalog.
type Config struct {
	Namespace     string
	Help          string
	ErrorResponse string
	// MatchTimeout bounds each pattern evaluation. Zero uses DefaultMatchTimeout.
	MatchTimeout time.Duration
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	Config Config
}

// Command is a registered command. It is never mutated after registration.
type Command struct {
	Name    string
	Help    string
	Params  []string
	Pattern *Pattern
	Handler Handler
	guards  []Guard
}

type beforeGuard struct {
	guard Guard
	only  map[string]bool
}

func (b beforeGuard) appliesTo(name string) bool {
	return len(b.only) == 0 || b.only[name]
}

// Registry holds the registered commands in insertion order.
//
// A registry is built once before traffic is served. After Seal it is read-only
// and safe for concurrent use without locking.
type Registry struct {
	config  Config
	order   []*Command
	byName  map[string]*Command
	befores []beforeGuard
	sealed  bool
}

// NewRegistry creates an empty Registry.
func NewRegistry(params NewRegistryParams) *Registry {
	return &Registry{
		config: params.Config,
		byName: make(map[string]*Command),
	}
}

// Config returns the registry metadata.
func (r *Registry) Config() Config {
	return r.config
}

// Register compiles def.Pattern and adds the command.
func (r *Registry) Register(def Definition) error {
	if r.sealed {
		return &RegistryError{Code: CodeSealed, Message: fmt.Sprintf("registry is sealed, cannot register %q", def.Name)}
	}
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return &RegistryError{Code: CodeInvalidArgument, Message: "command name is required"}
	}
	if def.Handler == nil {
		return &RegistryError{Code: CodeInvalidArgument, Message: fmt.Sprintf("command %q has no handler", name)}
	}
	if _, exists := r.byName[name]; exists {
		return &RegistryError{Code: CodeDuplicateCommand, Message: fmt.Sprintf("command %q is already registered", name)}
	}

	pattern, err := CompilePattern(def.Pattern, r.config.MatchTimeout)
	if err != nil {
		return err
	}

	params := def.Params
	if params == nil {
		params = pattern.GroupNames()
	}
	declared := make([]string, len(params))
	copy(declared, params)

	guards := make([]Guard, len(def.Guards))
	copy(guards, def.Guards)

	cmd := &Command{
		Name:    name,
		Help:    def.Help,
		Params:  declared,
		Pattern: pattern,
		Handler: def.Handler,
		guards:  guards,
	}
	r.order = append(r.order, cmd)
	r.byName[name] = cmd

	slog.Debug(fmt.Sprintf("%s - registered command %s params=%v", logPrefix, name, declared))
	return nil
}

// MustRegister is Register that panics on error. Intended for static setup.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Before attaches a guard to the named commands, or to every command when only
// is empty. Guards added with Before run ahead of a command's own guards.
func (r *Registry) Before(g Guard, only ...string) error {
	if r.sealed {
		return &RegistryError{Code: CodeSealed, Message: "registry is sealed, cannot add guard"}
	}
	if g == nil {
		return &RegistryError{Code: CodeInvalidArgument, Message: "guard is nil"}
	}
	var set map[string]bool
	if len(only) > 0 {
		set = make(map[string]bool, len(only))
		for _, n := range only {
			set[n] = true
		}
	}
	r.befores = append(r.befores, beforeGuard{guard: g, only: set})
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (*Command, error) {
	cmd, ok := r.byName[name]
	if !ok {
		return nil, &RegistryError{Code: CodeNotFound, Message: fmt.Sprintf("command not found: %s", name)}
	}
	return cmd, nil
}

// Commands returns the commands in insertion order.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.order)
}

// GuardsFor returns the guards that run before the named command.
func (r *Registry) GuardsFor(name string) []Guard {
	cmd, ok := r.byName[name]
	if !ok {
		return nil
	}
	var out []Guard
	for _, b := range r.befores {
		if b.appliesTo(name) {
			out = append(out, b.guard)
		}
	}
	return append(out, cmd.guards...)
}
