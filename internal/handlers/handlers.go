// Package handlers holds the built-in command handlers a manifest can name.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/morezero/chatops-rpc/pkg/registry"
)

// Handler names referenced from manifests.
const (
	Ping   = "ping"
	Echo   = "echo"
	WhoAmI = "whoami"
	Help   = "help"
)

// Table returns the closed set of built-in handlers. catalog supplies the live
// listing the help handler renders.
func Table(catalog func() *registry.Catalog) map[string]registry.Handler {
	return map[string]registry.Handler{
		Ping:   ping,
		Echo:   echo,
		WhoAmI: whoami,
		Help:   help(catalog),
	}
}

func ping(context.Context, *registry.Invocation) (interface{}, error) {
	return "pong", nil
}

func echo(_ context.Context, inv *registry.Invocation) (interface{}, error) {
	text := strings.TrimSpace(inv.Params.String("text"))
	if text == "" {
		return nil, registry.InvalidParams("I need some text to echo")
	}
	return text, nil
}

func whoami(_ context.Context, inv *registry.Invocation) (interface{}, error) {
	if inv.RoomID == "" {
		return fmt.Sprintf("You are %s", inv.User), nil
	}
	return fmt.Sprintf("You are %s in %s", inv.User, inv.RoomID), nil
}

func help(catalog func() *registry.Catalog) registry.Handler {
	return func(_ context.Context, inv *registry.Invocation) (interface{}, error) {
		c := catalog()

		if name := inv.Params.String("command"); name != "" {
			mi, ok := c.Methods.Get(name)
			if !ok {
				return nil, registry.InvalidParamsf("No command named '%s'", name)
			}
			return describe(mi), nil
		}

		var b strings.Builder
		if c.Help != "" {
			b.WriteString(c.Help)
			b.WriteString("\n")
		}
		for _, mi := range c.Methods {
			b.WriteString(describe(mi))
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

func describe(mi registry.MethodInfo) string {
	if mi.Help == "" {
		return mi.Name
	}
	return fmt.Sprintf("%s: %s", mi.Name, mi.Help)
}
