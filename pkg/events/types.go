// Package events defines invocation event types and publisher interfaces.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Invocation outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeInvalidParams  = "invalid_params"
	OutcomeMethodNotFound = "method_not_found"
	OutcomeNoMatch        = "no_match"
	OutcomeError          = "error"
)

// InvocationEvent is emitted after every dispatched chat command.
type InvocationEvent struct {
	ID         string `json:"id"`
	Namespace  string `json:"namespace"`
	Command    string `json:"command"`
	User       string `json:"user"`
	RoomID     string `json:"roomId,omitempty"`
	Outcome    string `json:"outcome"`
	ErrorCode  int    `json:"errorCode,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}

// NewInvocationEvent stamps an event with a fresh id and the current time.
func NewInvocationEvent(namespace, command, user, roomID string) *InvocationEvent {
	return &InvocationEvent{
		ID:        uuid.NewString(),
		Namespace: namespace,
		Command:   command,
		User:      user,
		RoomID:    roomID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
