package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/morezero/chatops-rpc/internal/config"
	"github.com/morezero/chatops-rpc/pkg/dispatcher"
	"github.com/morezero/chatops-rpc/pkg/guards"
)

func runtimeConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CHATOPS_MANIFEST_FILE", "")
	return &config.Config{MatchTimeout: time.Second, RateBurst: 5}
}

func TestBuildRuntime_DefaultManifest(t *testing.T) {
	rt, err := BuildRuntime(runtimeConfig(t))
	if err != nil {
		t.Fatalf("%s - BuildRuntime: %v", serverTestPrefix, err)
	}
	if rt.Limiter != nil {
		t.Errorf("%s - limiter should be off by default", serverTestPrefix)
	}
	if !rt.Dispatcher.Registry().Sealed() {
		t.Errorf("%s - registry should be sealed", serverTestPrefix)
	}

	names := rt.Dispatcher.Catalog().Methods.Names()
	want := []string{"ping", "echo", "whoami", "help"}
	if len(names) != len(want) {
		t.Fatalf("%s - commands = %v, want %v", serverTestPrefix, names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("%s - command %d = %q, want %q", serverTestPrefix, i, names[i], want[i])
		}
	}

	env, err := rt.Dispatcher.Chat(context.Background(), &dispatcher.ChatRequest{Message: "echo hello there", User: "bhuga"})
	if err != nil {
		t.Fatalf("%s - chat: %v", serverTestPrefix, err)
	}
	if env.Result != "hello there" {
		t.Errorf("%s - echo result = %v", serverTestPrefix, env.Result)
	}
}

func TestBuildRuntime_Overrides(t *testing.T) {
	cfg := runtimeConfig(t)
	cfg.Namespace = "ops"
	cfg.Help = "Operations"
	cfg.ErrorResponse = "Ask in #ops"

	rt, err := BuildRuntime(cfg)
	if err != nil {
		t.Fatalf("%s - BuildRuntime: %v", serverTestPrefix, err)
	}
	c := rt.Dispatcher.Catalog()
	if c.Namespace != "ops" || c.Help != "Operations" || c.ErrorResponse != "Ask in #ops" {
		t.Errorf("%s - catalog metadata = %q %q %q", serverTestPrefix, c.Namespace, c.Help, c.ErrorResponse)
	}
}

func TestBuildRuntime_ManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatops.json")
	doc := `{
  "version": "1.2.0",
  "namespace": "deploys",
  "commands": [
    {"name": "ping", "pattern": "ping", "handler": "ping"},
    {"name": "say", "pattern": "say (?<text>.+)", "handler": "echo", "room_only": true}
  ]
}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("%s - write manifest: %v", serverTestPrefix, err)
	}
	cfg := runtimeConfig(t)
	cfg.ManifestFile = path

	rt, err := BuildRuntime(cfg)
	if err != nil {
		t.Fatalf("%s - BuildRuntime: %v", serverTestPrefix, err)
	}
	if rt.Manifest.Namespace != "deploys" {
		t.Errorf("%s - namespace = %q, want deploys", serverTestPrefix, rt.Manifest.Namespace)
	}

	env, err := rt.Dispatcher.Invoke(context.Background(), &dispatcher.Request{Chatop: "say", User: "bhuga", Params: map[string]interface{}{"text": "hi"}})
	if err != nil {
		t.Fatalf("%s - invoke: %v", serverTestPrefix, err)
	}
	if env.ErrorMessage() != "This command must be run from a room" {
		t.Errorf("%s - room-only error = %q", serverTestPrefix, env.ErrorMessage())
	}
}

func TestBuildRuntime_RateLimit(t *testing.T) {
	cfg := runtimeConfig(t)
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1

	rt, err := BuildRuntime(cfg)
	if err != nil {
		t.Fatalf("%s - BuildRuntime: %v", serverTestPrefix, err)
	}
	if rt.Limiter == nil {
		t.Fatalf("%s - limiter should be on", serverTestPrefix)
	}

	req := &dispatcher.Request{Chatop: "ping", User: "bhuga"}
	first, err := rt.Dispatcher.Invoke(context.Background(), req)
	if err != nil || first.IsError() {
		t.Fatalf("%s - first ping = %+v, %v", serverTestPrefix, first, err)
	}
	second, err := rt.Dispatcher.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("%s - second ping: %v", serverTestPrefix, err)
	}
	if second.ErrorMessage() != guards.MsgRateLimited {
		t.Errorf("%s - second ping error = %q, want throttled", serverTestPrefix, second.ErrorMessage())
	}

	other, err := rt.Dispatcher.Invoke(context.Background(), &dispatcher.Request{Chatop: "ping", User: "someone-else"})
	if err != nil || other.IsError() {
		t.Errorf("%s - other user should not be throttled: %+v, %v", serverTestPrefix, other, err)
	}
}
