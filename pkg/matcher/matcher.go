// Package matcher resolves free-text chat messages to registered commands.
package matcher

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/chatops-rpc/pkg/registry"
)

const logPrefix = "matcher:matcher"

// ErrNoMatchingCommand is matched by errors.Is for every *NoMatchError.
var ErrNoMatchingCommand = errors.New("no matching command")

// NoMatchError reports that no command pattern accepts the command text.
type NoMatchError struct {
	Text string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("No command matches '%s'", e.Text)
}

// Is makes errors.Is(err, ErrNoMatchingCommand) hold.
func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatchingCommand
}

// Result is a resolved chat message.
type Result struct {
	Command string          `json:"command"`
	Params  registry.Params `json:"params"`
}

type route struct {
	name    string
	params  []string
	pattern *registry.Pattern
}

// Matcher tries routes in order; the first whose anchored pattern accepts the
// command text wins. A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	routes []route
}

// New builds a matcher over the commands of reg, in registration order.
func New(reg *registry.Registry) *Matcher {
	cmds := reg.Commands()
	routes := make([]route, 0, len(cmds))
	for _, cmd := range cmds {
		routes = append(routes, route{name: cmd.Name, params: cmd.Params, pattern: cmd.Pattern})
	}
	return &Matcher{routes: routes}
}

// FromCatalog builds a matcher from a catalog listing, compiling each regex
// source the same way the registry does. Used by clients that only see the
// listing of a remote namespace.
func FromCatalog(c *registry.Catalog, timeout time.Duration) (*Matcher, error) {
	routes := make([]route, 0, len(c.Methods))
	for _, mi := range c.Methods {
		p, err := registry.CompilePattern(mi.Regex, timeout)
		if err != nil {
			return nil, fmt.Errorf("%s - method %s: %w", logPrefix, mi.Name, err)
		}
		routes = append(routes, route{name: mi.Name, params: mi.Params, pattern: p})
	}
	return &Matcher{routes: routes}, nil
}

// Match resolves message to a command and its merged parameters. Flag values
// are collected first; declared params captured by the pattern are added for
// names no flag already set.
func (m *Matcher) Match(message string) (*Result, error) {
	params, text := ExtractFlags(message)

	for _, r := range m.routes {
		captures, ok, err := r.pattern.Match(text)
		if err != nil {
			return nil, fmt.Errorf("%s - %w", logPrefix, err)
		}
		if !ok {
			continue
		}

		merged := make(registry.Params, len(params)+len(r.params))
		for k, v := range params {
			merged[k] = v
		}
		for _, name := range r.params {
			v, captured := captures[name]
			if !captured {
				continue
			}
			if _, exists := merged[name]; exists {
				continue
			}
			merged[name] = v
		}

		slog.Debug(fmt.Sprintf("%s - %q routed to %s", logPrefix, text, r.name))
		return &Result{Command: r.name, Params: merged}, nil
	}

	return nil, &NoMatchError{Text: text}
}

// Commands returns the route names in match order.
func (m *Matcher) Commands() []string {
	out := make([]string, len(m.routes))
	for i, r := range m.routes {
		out[i] = r.name
	}
	return out
}
