// Package dispatcher invokes chat commands and renders JSON-RPC envelopes.
package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/chatops-rpc/pkg/registry"
)

// JSONRPCVersion is the only protocol version emitted.
const JSONRPCVersion = "2.0"

// Error codes produced by the dispatcher.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// Fixed error messages.
const (
	MsgUserRequired   = "A username must be supplied as 'user'"
	MsgMethodNotFound = "Method not found"
)

// Request is an invocation as it arrives from a transport.
type Request struct {
	Chatop string          `json:"chatop"`
	Params registry.Params `json:"params,omitempty"`
	User   string          `json:"user"`
	RoomID string          `json:"room_id,omitempty"`
}

// ChatRequest is a free-text chat message to route and invoke.
type ChatRequest struct {
	Message string `json:"message"`
	User    string `json:"user"`
	RoomID  string `json:"room_id,omitempty"`
}

// RPCError is the error member of an Envelope.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Envelope is a JSON-RPC 2.0 response. Exactly one of Result or Error is
// rendered; ID is always null.
type Envelope struct {
	JSONRPC string
	ID      interface{}
	Result  interface{}
	Error   *RPCError
}

// Success wraps a handler result.
func Success(result interface{}) *Envelope {
	return &Envelope{JSONRPC: JSONRPCVersion, Result: result}
}

// Failure builds an error envelope.
func Failure(code int, message string) *Envelope {
	return &Envelope{JSONRPC: JSONRPCVersion, Error: &RPCError{Code: code, Message: message}}
}

// InvalidParams builds a -32602 envelope.
func InvalidParams(message string) *Envelope {
	return Failure(CodeInvalidParams, message)
}

// MethodNotFound builds the -32601 envelope.
func MethodNotFound() *Envelope {
	return Failure(CodeMethodNotFound, MsgMethodNotFound)
}

// IsError reports whether the envelope carries an error.
func (e *Envelope) IsError() bool {
	return e.Error != nil
}

// Response returns the result, or an error describing the error member.
func (e *Envelope) Response() (interface{}, error) {
	if e.Error != nil {
		return nil, fmt.Errorf("there was an error instead of an expected successful response: %d %s", e.Error.Code, e.Error.Message)
	}
	return e.Result, nil
}

// ErrorMessage returns the error message, or "" for a success envelope.
func (e *Envelope) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Message
}

type successWire struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result"`
}

type errorWire struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Error   *RPCError   `json:"error"`
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	version := e.JSONRPC
	if version == "" {
		version = JSONRPCVersion
	}
	if e.Error != nil {
		return json.Marshal(errorWire{JSONRPC: version, Error: e.Error})
	}
	return json.Marshal(successWire{JSONRPC: version, Result: e.Result})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Error != nil && len(wire.Result) > 0 {
		return fmt.Errorf("dispatcher:envelope - envelope carries both result and error")
	}
	e.JSONRPC = wire.JSONRPC
	e.ID = wire.ID
	e.Error = wire.Error
	e.Result = nil
	if len(wire.Result) > 0 {
		var result interface{}
		if err := json.Unmarshal(wire.Result, &result); err != nil {
			return err
		}
		e.Result = result
	}
	return nil
}
