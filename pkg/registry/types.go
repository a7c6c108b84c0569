// Package registry holds the set of chat commands and renders their catalog.
package registry

import (
	"context"
	"fmt"
)

// Params is the parameter mapping passed to a handler. Values coming from chat
// messages are strings; values posted by a client may be any JSON value.
type Params map[string]interface{}

// String returns the value for key as a string, or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Has reports whether key is present with a non-empty value.
func (p Params) Has(key string) bool {
	return p.String(key) != ""
}

// Invocation is a single resolved call handed to guards and handlers.
type Invocation struct {
	Command string
	Params  Params
	User    string
	RoomID  string
}

// Handler executes a command. It returns a success value, an error built with
// InvalidParams to reject the call, or any other error for unexpected failures.
type Handler func(ctx context.Context, inv *Invocation) (interface{}, error)

// Guard runs before a handler. A nil return lets the call through.
type Guard func(ctx context.Context, inv *Invocation) error

// Definition describes a command to register.
type Definition struct {
	Name    string
	Pattern string
	Help    string
	// Params lists the declared parameter names in order. Nil means "use the
	// pattern's named groups".
	Params  []string
	Handler Handler
	Guards  []Guard
}

// Catalog is the machine-readable listing of a registry.
type Catalog struct {
	Namespace     string  `json:"namespace"`
	Help          string  `json:"help"`
	ErrorResponse string  `json:"error_response"`
	Methods       Methods `json:"methods"`
}

// MethodInfo is the per-command entry of a Catalog.
type MethodInfo struct {
	Name   string   `json:"-"`
	Help   string   `json:"help"`
	Regex  string   `json:"regex"`
	Params []string `json:"params"`
	Path   string   `json:"path"`
}

// RegistryError is a structured error from the registry.
type RegistryError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RegistryError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

// Registry error codes.
const (
	CodeDuplicateCommand = "DUPLICATE_COMMAND"
	CodeInvalidPattern   = "INVALID_PATTERN"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeNotFound         = "NOT_FOUND"
	CodeSealed           = "SEALED"
)

// InvalidParamsError is returned by handlers and guards to reject a call with a
// user-facing message.
type InvalidParamsError struct {
	Message string
}

func (e *InvalidParamsError) Error() string {
	return "invalid params: " + e.Message
}

// InvalidParams signals that the caller supplied unusable parameters.
func InvalidParams(message string) error {
	return &InvalidParamsError{Message: message}
}

// InvalidParamsf is InvalidParams with formatting.
func InvalidParamsf(format string, args ...interface{}) error {
	return &InvalidParamsError{Message: fmt.Sprintf(format, args...)}
}
