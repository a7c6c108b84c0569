package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/morezero/chatops-rpc/pkg/db"
)

const mainTestPrefix = "cmd/chatops:main_test"

func TestUsage_NonEmpty(t *testing.T) {
	if len(usage) == 0 {
		t.Fatalf("%s - usage string is empty", mainTestPrefix)
	}
}

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "migrate", "ensure-db", "clear", "prune", "history", "catalog", "match", "chat", "DATABASE_URL"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestParseHistoryArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantLimit int
		wantUser  string
		wantErr   bool
	}{
		{name: "defaults", args: nil, wantLimit: db.DefaultHistoryLimit},
		{name: "limit", args: []string{"5"}, wantLimit: 5},
		{name: "limit and user", args: []string{"50", "bhuga"}, wantLimit: 50, wantUser: "bhuga"},
		{name: "not a number", args: []string{"many"}, wantErr: true},
		{name: "zero", args: []string{"0"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, user, err := parseHistoryArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s - err = %v, wantErr %v", mainTestPrefix, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if limit != tt.wantLimit || user != tt.wantUser {
				t.Errorf("%s - got (%d, %q), want (%d, %q)", mainTestPrefix, limit, user, tt.wantLimit, tt.wantUser)
			}
		})
	}
}

func TestPrintHistory(t *testing.T) {
	room := "ops"
	rows := []db.Invocation{
		{Namespace: "chatops", Command: "ping", UserName: "bhuga", RoomID: &room, Outcome: "ok", DurationMs: 3, Created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{Namespace: "chatops", UserName: "bhuga", Outcome: "no_match", Created: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	printHistory(&buf, rows)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("%s - got %d lines, want 3:\n%s", mainTestPrefix, len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "CREATED") {
		t.Errorf("%s - header = %q", mainTestPrefix, lines[0])
	}
	for _, want := range []string{"2024-05-01T12:00:00Z", "ping", "bhuga", "ops", "ok"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("%s - row %q missing %q", mainTestPrefix, lines[1], want)
		}
	}
	if !strings.Contains(lines[2], " - ") || !strings.Contains(lines[2], "no_match") {
		t.Errorf("%s - unmatched row = %q", mainTestPrefix, lines[2])
	}
}
