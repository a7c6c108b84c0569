package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/chatops-rpc/pkg/db"
	"github.com/morezero/chatops-rpc/pkg/dispatcher"
	"github.com/morezero/chatops-rpc/pkg/events"
	"github.com/morezero/chatops-rpc/pkg/matcher"
	"github.com/morezero/chatops-rpc/pkg/registry"
)

const serviceLogPrefix = "server:service"

// AuditStore records invocations. *db.Repository satisfies it.
type AuditStore interface {
	InsertInvocation(ctx context.Context, params db.InsertInvocationParams) (*db.Invocation, error)
	CountByCommand(ctx context.Context, namespace string) ([]db.CommandCount, error)
}

// Service wraps a dispatcher with the hosting concerns shared by every
// transport: request deadline, invocation events and the audit trail.
// Publishing and recording failures are logged and never change the reply.
type Service struct {
	disp           *dispatcher.Dispatcher
	publisher      events.EventPublisher
	audit          AuditStore
	requestTimeout time.Duration
	now            func() time.Time
}

// NewServiceParams holds parameters for NewService.
type NewServiceParams struct {
	Dispatcher     *dispatcher.Dispatcher
	Publisher      events.EventPublisher // nil = no events
	Audit          AuditStore            // nil = no audit trail
	RequestTimeout time.Duration         // 0 = no deadline
}

// NewService creates a Service.
func NewService(params NewServiceParams) *Service {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Service{
		disp:           params.Dispatcher,
		publisher:      pub,
		audit:          params.Audit,
		requestTimeout: params.RequestTimeout,
		now:            time.Now,
	}
}

// Catalog renders the current listing.
func (s *Service) Catalog() *registry.Catalog {
	return s.disp.Catalog()
}

// Namespace returns the served namespace.
func (s *Service) Namespace() string {
	return s.disp.Registry().Config().Namespace
}

// ErrorResponse returns the text shown to chat users on internal failures.
func (s *Service) ErrorResponse() string {
	if msg := s.disp.Registry().Config().ErrorResponse; msg != "" {
		return msg
	}
	return "Internal error"
}

// Usage returns per-command invocation counts, or nil without an audit trail.
func (s *Service) Usage(ctx context.Context) ([]db.CommandCount, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.CountByCommand(ctx, s.Namespace())
}

// Execute invokes a command by name.
func (s *Service) Execute(ctx context.Context, req *dispatcher.Request) (*dispatcher.Envelope, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	start := s.now()
	env, err := s.disp.Invoke(ctx, req)
	s.observe(ctx, req.Chatop, req, start, env, err)
	return env, err
}

// Chat routes a free-text message and invokes the matched command.
func (s *Service) Chat(ctx context.Context, req *dispatcher.ChatRequest) (*dispatcher.Envelope, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	start := s.now()
	res, err := s.disp.Match(req.Message)
	if err != nil {
		s.observe(ctx, "", &dispatcher.Request{User: req.User, RoomID: req.RoomID}, start, nil, err)
		return nil, err
	}
	inner := &dispatcher.Request{Chatop: res.Command, Params: res.Params, User: req.User, RoomID: req.RoomID}
	env, err := s.disp.Invoke(ctx, inner)
	s.observe(ctx, res.Command, inner, start, env, err)
	return env, err
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.requestTimeout)
}

// Outcome classifies a dispatch result.
func Outcome(env *dispatcher.Envelope, err error) (outcome string, code int) {
	switch {
	case err != nil && errors.Is(err, matcher.ErrNoMatchingCommand):
		return events.OutcomeNoMatch, 0
	case err != nil:
		return events.OutcomeError, 0
	case env == nil || env.Error == nil:
		return events.OutcomeOK, 0
	case env.Error.Code == dispatcher.CodeMethodNotFound:
		return events.OutcomeMethodNotFound, env.Error.Code
	default:
		return events.OutcomeInvalidParams, env.Error.Code
	}
}

func (s *Service) observe(ctx context.Context, command string, req *dispatcher.Request, start time.Time, env *dispatcher.Envelope, err error) {
	outcome, code := Outcome(env, err)
	elapsed := s.now().Sub(start).Milliseconds()
	ns := s.Namespace()

	if outcome == events.OutcomeError {
		slog.Error(fmt.Sprintf("%s - %s.%s failed for %s after %dms: %v", serviceLogPrefix, ns, command, req.User, elapsed, err))
	} else {
		slog.Info(fmt.Sprintf("%s - %s.%s user=%s room=%s outcome=%s %dms", serviceLogPrefix, ns, command, req.User, req.RoomID, outcome, elapsed))
	}

	// Reporting outlives the request deadline.
	reportCtx := context.WithoutCancel(ctx)

	event := events.NewInvocationEvent(ns, command, req.User, req.RoomID)
	event.Outcome = outcome
	event.ErrorCode = code
	event.DurationMs = elapsed
	if perr := s.publisher.PublishInvoked(reportCtx, event); perr != nil {
		slog.Warn(fmt.Sprintf("%s - publish invocation event: %v", serviceLogPrefix, perr))
	}

	if s.audit == nil {
		return
	}
	if _, aerr := s.audit.InsertInvocation(reportCtx, db.InsertInvocationParams{
		ID:         event.ID,
		Namespace:  ns,
		Command:    command,
		UserName:   req.User,
		RoomID:     req.RoomID,
		Params:     req.Params,
		Outcome:    outcome,
		ErrorCode:  code,
		DurationMs: elapsed,
	}); aerr != nil {
		slog.Warn(fmt.Sprintf("%s - record invocation: %v", serviceLogPrefix, aerr))
	}
}
