package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/morezero/chatops-rpc/pkg/dispatcher"
	"github.com/morezero/chatops-rpc/pkg/matcher"
	"github.com/morezero/chatops-rpc/pkg/registry"
)

// MsgBodyNotObject is returned when a request body is not a JSON object.
const MsgBodyNotObject = "Request body must be a JSON object"

const maxBodyBytes = 1 << 20

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// NewRouterParams holds parameters for NewRouter.
type NewRouterParams struct {
	Service       *Service
	Tokens        []string
	Checks        map[string]HealthCheck
	HealthTimeout time.Duration
}

type httpAPI struct {
	svc           *Service
	checks        map[string]HealthCheck
	healthTimeout time.Duration
}

// NewRouter builds the HTTP surface. The home page and probes are public;
// everything under /_chatops and /_chat requires a token.
func NewRouter(params NewRouterParams) http.Handler {
	api := &httpAPI{
		svc:           params.Service,
		checks:        params.Checks,
		healthTimeout: params.HealthTimeout,
	}
	if api.healthTimeout <= 0 {
		api.healthTimeout = 5 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", api.handleHome())
	r.Get("/health", api.handleHealth)
	r.Get("/ready", api.handleReady)

	r.Group(func(authed chi.Router) {
		authed.Use(RequireToken(params.Tokens))
		authed.Get("/_chatops", api.handleList)
		authed.Post("/_chatops/{chatop}", api.handleExecute)
		authed.Get("/_chatops/{chatop}", api.handleUnknown)
		authed.Post("/_chat", api.handleChat)
	})
	return r
}

// executeBody is the POST /_chatops/{chatop} payload.
type executeBody struct {
	User   string          `json:"user"`
	RoomID string          `json:"room_id"`
	Params registry.Params `json:"params"`
}

func (a *httpAPI) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Catalog())
}

func (a *httpAPI) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body executeBody
	if err := decodeBody(r, &body); err != nil {
		slog.Debug(fmt.Sprintf("%s - execute body: %v", logPrefix, err))
		writeEnvelope(w, dispatcher.InvalidParams(MsgBodyNotObject))
		return
	}

	env, err := a.svc.Execute(r.Context(), &dispatcher.Request{
		Chatop: chi.URLParam(r, "chatop"),
		Params: body.Params,
		User:   body.User,
		RoomID: body.RoomID,
	})
	if err != nil {
		a.writeInternalError(w)
		return
	}
	writeEnvelope(w, env)
}

func (a *httpAPI) handleChat(w http.ResponseWriter, r *http.Request) {
	var body dispatcher.ChatRequest
	if err := decodeBody(r, &body); err != nil {
		slog.Debug(fmt.Sprintf("%s - chat body: %v", logPrefix, err))
		writeEnvelope(w, dispatcher.InvalidParams(MsgBodyNotObject))
		return
	}

	env, err := a.svc.Chat(r.Context(), &body)
	if err != nil {
		var nm *matcher.NoMatchError
		if errors.As(err, &nm) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": nm.Error()})
			return
		}
		a.writeInternalError(w)
		return
	}
	writeEnvelope(w, env)
}

func (a *httpAPI) handleUnknown(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, dispatcher.MethodNotFound())
}

func (a *httpAPI) writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, a.svc.ErrorResponse())
}

// healthOutput is the /health body.
type healthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (a *httpAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.healthTimeout)
	defer cancel()

	out := healthOutput{Status: "healthy", Checks: map[string]bool{}, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	for name, check := range a.checks {
		err := check(ctx)
		out.Checks[name] = err == nil
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - health check %s failed: %v", logPrefix, name, err))
			out.Status = "unhealthy"
		}
	}
	status := http.StatusOK
	if out.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

func (a *httpAPI) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeBody reads a JSON object into v. An empty body decodes as {}.
func decodeBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if data[0] != '{' {
		return fmt.Errorf("%s - body is not an object", logPrefix)
	}
	return json.Unmarshal(data, v)
}

// HTTPStatus maps an envelope to its HTTP status code.
func HTTPStatus(env *dispatcher.Envelope) int {
	if env.Error == nil {
		return http.StatusOK
	}
	switch env.Error.Code {
	case dispatcher.CodeMethodNotFound:
		return http.StatusNotFound
	case dispatcher.CodeInvalidParams:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, env *dispatcher.Envelope) {
	writeJSON(w, HTTPStatus(env), env)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", logPrefix, err))
	}
}
