package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/chatops-rpc/pkg/registry"
)

func testCatalog() *registry.Catalog {
	return &registry.Catalog{
		Namespace: "test",
		Help:      "Test commands",
		Methods: registry.Methods{
			{Name: "ping", Help: "check liveness", Regex: "ping"},
			{Name: "quiet", Regex: "quiet"},
		},
	}
}

func call(t *testing.T, name string, inv *registry.Invocation) (interface{}, error) {
	t.Helper()
	h, ok := Table(testCatalog)[name]
	if !ok {
		t.Fatalf("handlers:handlers_test - no handler %s", name)
	}
	return h(context.Background(), inv)
}

func TestTable_Names(t *testing.T) {
	table := Table(testCatalog)

	for _, name := range []string{Ping, Echo, WhoAmI, Help} {
		if _, ok := table[name]; !ok {
			t.Errorf("handlers:handlers_test - missing handler %s", name)
		}
	}
	if len(table) != 4 {
		t.Errorf("handlers:handlers_test - expected 4 handlers, got %d", len(table))
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name      string
		handler   string
		inv       *registry.Invocation
		want      string
		wantParam string
	}{
		{name: "ping", handler: Ping, inv: &registry.Invocation{User: "foo"}, want: "pong"},
		{name: "echo", handler: Echo, inv: &registry.Invocation{User: "foo", Params: registry.Params{"text": " hi there "}}, want: "hi there"},
		{name: "echo without text", handler: Echo, inv: &registry.Invocation{User: "foo"}, wantParam: "I need some text to echo"},
		{name: "whoami", handler: WhoAmI, inv: &registry.Invocation{User: "bhuga"}, want: "You are bhuga"},
		{name: "whoami in room", handler: WhoAmI, inv: &registry.Invocation{User: "bhuga", RoomID: "#ops"}, want: "You are bhuga in #ops"},
		{name: "help listing", handler: Help, inv: &registry.Invocation{User: "foo"}, want: "Test commands\nping: check liveness\nquiet"},
		{name: "help one", handler: Help, inv: &registry.Invocation{User: "foo", Params: registry.Params{"command": "ping"}}, want: "ping: check liveness"},
		{name: "help unknown", handler: Help, inv: &registry.Invocation{User: "foo", Params: registry.Params{"command": "nope"}}, wantParam: "No command named 'nope'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := call(t, tt.handler, tt.inv)
			if tt.wantParam != "" {
				var ipe *registry.InvalidParamsError
				if !errors.As(err, &ipe) {
					t.Fatalf("handlers:handlers_test - expected InvalidParamsError, got %v", err)
				}
				if ipe.Message != tt.wantParam {
					t.Errorf("handlers:handlers_test - message = %q, want %q", ipe.Message, tt.wantParam)
				}
				return
			}
			if err != nil {
				t.Fatalf("handlers:handlers_test - unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("handlers:handlers_test - got %q, want %q", got, tt.want)
			}
		})
	}
}
