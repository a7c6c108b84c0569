package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/chatops-rpc/pkg/matcher"
	"github.com/morezero/chatops-rpc/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// HandlerError wraps an unexpected failure raised by a guard or handler. It is
// never rendered as an envelope; the hosting layer decides what to show.
type HandlerError struct {
	Command string
	Stage   string // "guard" or "handler"
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Command, e.Stage, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Dispatcher resolves requests against a sealed registry.
type Dispatcher struct {
	registry *registry.Registry
	matcher  *matcher.Matcher
}

// NewDispatcher seals reg and creates a Dispatcher over it.
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	reg.Seal()
	return &Dispatcher{registry: reg, matcher: matcher.New(reg)}
}

// Registry returns the registry the dispatcher serves.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Catalog renders the current listing.
func (d *Dispatcher) Catalog() *registry.Catalog {
	return d.registry.Catalog()
}

// Invoke runs a single request. Missing user and unknown commands become error
// envelopes, as do InvalidParams signals from guards and handlers. Any other
// guard or handler failure is returned as a *HandlerError.
func (d *Dispatcher) Invoke(ctx context.Context, req *Request) (*Envelope, error) {
	slog.Debug(fmt.Sprintf("%s - chatop=%s user=%s room=%s", logPrefix, req.Chatop, req.User, req.RoomID))

	if strings.TrimSpace(req.User) == "" {
		return InvalidParams(MsgUserRequired), nil
	}

	cmd, err := d.registry.Lookup(req.Chatop)
	if err != nil {
		return MethodNotFound(), nil
	}

	params := req.Params
	if params == nil {
		params = registry.Params{}
	}
	inv := &registry.Invocation{
		Command: cmd.Name,
		Params:  params,
		User:    req.User,
		RoomID:  req.RoomID,
	}

	for _, guard := range d.registry.GuardsFor(cmd.Name) {
		if err := runGuard(ctx, guard, inv); err != nil {
			if env := invalidParamsEnvelope(err); env != nil {
				return env, nil
			}
			return nil, &HandlerError{Command: cmd.Name, Stage: "guard", Err: err}
		}
	}

	result, err := runHandler(ctx, cmd.Handler, inv)
	if err != nil {
		if env := invalidParamsEnvelope(err); env != nil {
			return env, nil
		}
		slog.Error(fmt.Sprintf("%s - %s handler failed: %v", logPrefix, cmd.Name, err))
		return nil, &HandlerError{Command: cmd.Name, Stage: "handler", Err: err}
	}
	return Success(result), nil
}

// Chat routes a free-text message and invokes the matched command. A message
// no pattern accepts is returned as a *matcher.NoMatchError.
func (d *Dispatcher) Chat(ctx context.Context, req *ChatRequest) (*Envelope, error) {
	res, err := d.Match(req.Message)
	if err != nil {
		return nil, err
	}
	return d.Invoke(ctx, &Request{
		Chatop: res.Command,
		Params: res.Params,
		User:   req.User,
		RoomID: req.RoomID,
	})
}

// Match resolves message without invoking anything.
func (d *Dispatcher) Match(message string) (*matcher.Result, error) {
	return d.matcher.Match(message)
}

// --- helpers ---

func invalidParamsEnvelope(err error) *Envelope {
	var ipe *registry.InvalidParamsError
	if errors.As(err, &ipe) {
		return InvalidParams(ipe.Message)
	}
	return nil
}

func runGuard(ctx context.Context, g registry.Guard, inv *registry.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return g(ctx, inv)
}

func runHandler(ctx context.Context, h registry.Handler, inv *registry.Invocation) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, inv)
}
