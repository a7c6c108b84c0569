package manifest

import (
	"fmt"
	"sort"
	"time"

	"github.com/morezero/chatops-rpc/pkg/guards"
	"github.com/morezero/chatops-rpc/pkg/registry"
)

// RegistryConfig derives the registry metadata from m.
func RegistryConfig(m *Manifest, matchTimeout time.Duration) registry.Config {
	return registry.Config{
		Namespace:     m.Namespace,
		Help:          m.Help,
		ErrorResponse: m.ErrorResponse,
		MatchTimeout:  matchTimeout,
	}
}

// Apply registers every command of m on reg, in manifest order. Each command's
// handler is looked up in handlers by name; an unknown name is an error and
// nothing after it is registered.
func Apply(reg *registry.Registry, m *Manifest, handlers map[string]registry.Handler) error {
	for _, spec := range m.Commands {
		h, ok := handlers[spec.Handler]
		if !ok {
			return fmt.Errorf("%s - command %s: unknown handler %q (known: %v)", logPrefix, spec.Name, spec.Handler, handlerNames(handlers))
		}

		var gs []registry.Guard
		if spec.RoomOnly {
			gs = append(gs, guards.RequireRoom())
		}
		if len(spec.Require) > 0 {
			gs = append(gs, guards.RequireParams(spec.Require...))
		}

		if err := reg.Register(registry.Definition{
			Name:    spec.Name,
			Pattern: spec.Pattern,
			Help:    spec.Help,
			Params:  spec.Params,
			Handler: h,
			Guards:  gs,
		}); err != nil {
			return fmt.Errorf("%s - command %s: %w", logPrefix, spec.Name, err)
		}
	}
	return nil
}

// Build validates m and returns a new registry holding its commands.
func Build(m *Manifest, handlers map[string]registry.Handler, matchTimeout time.Duration) (*registry.Registry, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	reg := registry.NewRegistry(registry.NewRegistryParams{Config: RegistryConfig(m, matchTimeout)})
	if err := Apply(reg, m, handlers); err != nil {
		return nil, err
	}
	return reg, nil
}

func handlerNames(handlers map[string]registry.Handler) []string {
	names := make([]string, 0, len(handlers))
	for n := range handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
