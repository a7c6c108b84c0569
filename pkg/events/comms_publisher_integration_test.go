package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

const integrationTestPrefix = "events:comms_publisher_integration_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", integrationTestPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", integrationTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", integrationTestPrefix, err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func subscribeEvents(t *testing.T, nc *comms.Conn, subject string) (chan *InvocationEvent, func()) {
	t.Helper()
	received := make(chan *InvocationEvent, 4)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event InvocationEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("%s - failed to unmarshal: %v", integrationTestPrefix, err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe %s: %v", integrationTestPrefix, subject, err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("%s - flush failed: %v", integrationTestPrefix, err)
	}
	return received, func() { _ = sub.Unsubscribe() }
}

func TestCommsPublisher_PublishInvoked_CommandSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14330)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	received, unsub := subscribeEvents(t, nc, "chatops.deploy.invoked.wcid")
	defer unsub()

	event := &InvocationEvent{
		ID:         "evt-1",
		Namespace:  "deploy",
		Command:    "wcid",
		User:       "bhuga",
		Outcome:    OutcomeOK,
		DurationMs: 3,
		Timestamp:  "2025-01-01T00:00:00Z",
	}
	if err := publisher.PublishInvoked(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishInvoked failed: %v", integrationTestPrefix, err)
	}
	nc.Flush()

	select {
	case got := <-received:
		if got.Command != "wcid" {
			t.Errorf("%s - Command = %q, want wcid", integrationTestPrefix, got.Command)
		}
		if got.User != "bhuga" {
			t.Errorf("%s - User = %q, want bhuga", integrationTestPrefix, got.User)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for command event", integrationTestPrefix)
	}
}

func TestCommsPublisher_PublishInvoked_BothSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t, 14331)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	perCommand, unsub1 := subscribeEvents(t, nc, "chatops.deploy.invoked.*")
	defer unsub1()
	namespace, unsub2 := subscribeEvents(t, nc, "chatops.deploy.invoked")
	defer unsub2()

	event := NewInvocationEvent("deploy", "ping", "foo", "")
	event.Outcome = OutcomeOK
	if err := publisher.PublishInvoked(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishInvoked failed: %v", integrationTestPrefix, err)
	}
	nc.Flush()

	for _, ch := range []struct {
		name string
		ch   chan *InvocationEvent
	}{
		{"per-command", perCommand},
		{"namespace", namespace},
	} {
		select {
		case got := <-ch.ch:
			if got.ID != event.ID {
				t.Errorf("%s - %s event id = %q, want %q", integrationTestPrefix, ch.name, got.ID, event.ID)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("%s - timeout waiting for %s event", integrationTestPrefix, ch.name)
		}
	}
}

func TestCommsPublisher_CustomPrefix(t *testing.T) {
	nc, cleanup := startTestServer(t, 14332)
	defer cleanup()

	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{SubjectPrefix: "bots"})
	received, unsub := subscribeEvents(t, nc, "bots.ops.invoked")
	defer unsub()

	event := &InvocationEvent{
		ID:         "evt-2",
		Namespace:  "ops",
		Command:    "lock",
		User:       "alice",
		RoomID:     "#ops",
		Outcome:    OutcomeInvalidParams,
		ErrorCode:  -32602,
		DurationMs: 12,
		Timestamp:  "2025-06-15T12:30:00Z",
	}
	if err := publisher.PublishInvoked(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishInvoked failed: %v", integrationTestPrefix, err)
	}
	nc.Flush()

	select {
	case got := <-received:
		if got.RoomID != "#ops" {
			t.Errorf("%s - RoomID = %q, want #ops", integrationTestPrefix, got.RoomID)
		}
		if got.Outcome != OutcomeInvalidParams {
			t.Errorf("%s - Outcome = %q, want %q", integrationTestPrefix, got.Outcome, OutcomeInvalidParams)
		}
		if got.ErrorCode != -32602 {
			t.Errorf("%s - ErrorCode = %d, want -32602", integrationTestPrefix, got.ErrorCode)
		}
		if got.DurationMs != 12 {
			t.Errorf("%s - DurationMs = %d, want 12", integrationTestPrefix, got.DurationMs)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for custom prefix event", integrationTestPrefix)
	}
}

func TestNewCommsPublisher_DefaultPrefix(t *testing.T) {
	nc, cleanup := startTestServer(t, 14333)
	defer cleanup()

	for _, opts := range []*CommsPublisherOpts{nil, {SubjectPrefix: ""}} {
		publisher := NewCommsPublisher(nc, opts)
		if publisher.prefix != "chatops" {
			t.Errorf("%s - prefix = %q, want chatops", integrationTestPrefix, publisher.prefix)
		}
	}
}
