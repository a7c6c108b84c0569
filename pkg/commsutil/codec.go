package commsutil

import (
	"encoding/json"

	comms "github.com/nats-io/nats.go"
)

// Headers used on chatops requests and replies.
const (
	// StatusHeader carries the outcome of a chatops request on its reply.
	StatusHeader = "Chatops-Status"
	// TokenHeader carries the caller credential on a request.
	TokenHeader = "Chatops-Token"
)

// Reply statuses.
const (
	StatusOK             = "ok"
	StatusInvalidParams  = "invalid_params"
	StatusMethodNotFound = "method_not_found"
	StatusNoMatch        = "no_match"
	StatusBadRequest     = "bad_request"
	StatusInternalError  = "internal_error"
	StatusNotAuthorized  = "not_authorized"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// NewReply encodes v into a message tagged with status.
func NewReply(status string, v interface{}) (*comms.Msg, error) {
	data, err := EncodePayload(v)
	if err != nil {
		return nil, err
	}
	msg := comms.NewMsg("")
	msg.Header.Set(StatusHeader, status)
	msg.Data = data
	return msg, nil
}

// Status returns the status header of msg, or "" when absent.
func Status(msg *comms.Msg) string {
	if msg == nil || msg.Header == nil {
		return ""
	}
	return msg.Header.Get(StatusHeader)
}
