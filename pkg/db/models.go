package db

import "time"

// Invocation represents a row in the chatop_invocations table.
type Invocation struct {
	ID         string    `json:"id"`
	Namespace  string    `json:"namespace"`
	Command    string    `json:"command"`
	UserName   string    `json:"user_name"`
	RoomID     *string   `json:"room_id,omitempty"`
	Params     []byte    `json:"params,omitempty"`
	Outcome    string    `json:"outcome"`
	ErrorCode  *int      `json:"error_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Created    time.Time `json:"created"`
}

// CommandCount is one row of a per-command usage summary.
type CommandCount struct {
	Command string `json:"command"`
	Total   int    `json:"total"`
	Failed  int    `json:"failed"`
}
