// Package guards provides reusable pre-invocation checks for chat commands.
package guards

import (
	"context"
	"fmt"
	"strings"

	"github.com/morezero/chatops-rpc/pkg/registry"
)

// RequireParams rejects an invocation missing any of names, or carrying only
// whitespace for one. The rejection is an InvalidParams signal naming the
// first missing parameter.
func RequireParams(names ...string) registry.Guard {
	required := make([]string, len(names))
	copy(required, names)

	return func(_ context.Context, inv *registry.Invocation) error {
		for _, name := range required {
			if strings.TrimSpace(inv.Params.String(name)) == "" {
				return registry.InvalidParams(fmt.Sprintf("Missing required parameter '%s'", name))
			}
		}
		return nil
	}
}

// RequireRoom rejects invocations that did not come from a room.
func RequireRoom() registry.Guard {
	return func(_ context.Context, inv *registry.Invocation) error {
		if strings.TrimSpace(inv.RoomID) == "" {
			return registry.InvalidParams("This command must be run from a room")
		}
		return nil
	}
}
