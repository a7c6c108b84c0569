package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/chatops-rpc/pkg/commsutil"
	"github.com/morezero/chatops-rpc/pkg/dispatcher"
	"github.com/morezero/chatops-rpc/pkg/matcher"
)

// ErrorReply is the payload of replies that carry no envelope.
type ErrorReply struct {
	Error string `json:"error"`
}

// SubscribeParams holds parameters for Subscribe.
type SubscribeParams struct {
	Conn          *comms.Conn
	Service       *Service
	SubjectPrefix string
	Tokens        []string
}

// Subscribe answers list, execute and chat requests for the service
// namespace. Requests must carry an accepted token in the Chatops-Token
// header. Callers unsubscribe the returned subscriptions on shutdown.
func Subscribe(ctx context.Context, params SubscribeParams) ([]*comms.Subscription, error) {
	ns := params.Service.Namespace()
	h := &natsAPI{ctx: ctx, svc: params.Service, tokens: params.Tokens}

	routes := []struct {
		subject string
		handle  func(*comms.Msg) (string, interface{})
	}{
		{commsutil.BuildListSubject(params.SubjectPrefix, ns), h.list},
		{commsutil.BuildExecuteSubject(params.SubjectPrefix, ns), h.execute},
		{commsutil.BuildChatSubject(params.SubjectPrefix, ns), h.chat},
	}

	subs := make([]*comms.Subscription, 0, len(routes))
	for _, route := range routes {
		handle := route.handle
		sub, err := params.Conn.Subscribe(route.subject, func(msg *comms.Msg) {
			h.respond(msg, handle)
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, route.subject, err)
		}
		slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, route.subject))
		subs = append(subs, sub)
	}
	return subs, nil
}

type natsAPI struct {
	ctx    context.Context
	svc    *Service
	tokens []string
}

func (h *natsAPI) respond(msg *comms.Msg, handle func(*comms.Msg) (string, interface{})) {
	var status string
	var payload interface{}
	if tokenAccepted(h.tokens, msg.Header.Get(commsutil.TokenHeader)) {
		status, payload = handle(msg)
	} else {
		slog.Warn(fmt.Sprintf("%s - rejected request on %s", logPrefix, msg.Subject))
		status, payload = commsutil.StatusNotAuthorized, ErrorReply{Error: MsgNotAuthorized}
	}

	reply, err := commsutil.NewReply(status, payload)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode reply on %s: %v", logPrefix, msg.Subject, err))
		return
	}
	if err := msg.RespondMsg(reply); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, msg.Subject, err))
	}
}

func (h *natsAPI) list(*comms.Msg) (string, interface{}) {
	return commsutil.StatusOK, h.svc.Catalog()
}

func (h *natsAPI) execute(msg *comms.Msg) (string, interface{}) {
	var req dispatcher.Request
	if err := decodeMsg(msg, &req); err != nil {
		return commsutil.StatusBadRequest, dispatcher.InvalidParams(MsgBodyNotObject)
	}
	env, err := h.svc.Execute(h.ctx, &req)
	return h.outcome(env, err)
}

func (h *natsAPI) chat(msg *comms.Msg) (string, interface{}) {
	var req dispatcher.ChatRequest
	if err := decodeMsg(msg, &req); err != nil {
		return commsutil.StatusBadRequest, dispatcher.InvalidParams(MsgBodyNotObject)
	}
	env, err := h.svc.Chat(h.ctx, &req)
	return h.outcome(env, err)
}

func (h *natsAPI) outcome(env *dispatcher.Envelope, err error) (string, interface{}) {
	if err != nil {
		if errors.Is(err, matcher.ErrNoMatchingCommand) {
			return commsutil.StatusNoMatch, ErrorReply{Error: err.Error()}
		}
		return commsutil.StatusInternalError, ErrorReply{Error: h.svc.ErrorResponse()}
	}
	return ReplyStatus(env), env
}

// ReplyStatus maps an envelope to its reply status header.
func ReplyStatus(env *dispatcher.Envelope) string {
	if env.Error == nil {
		return commsutil.StatusOK
	}
	switch env.Error.Code {
	case dispatcher.CodeMethodNotFound:
		return commsutil.StatusMethodNotFound
	case dispatcher.CodeInvalidParams:
		return commsutil.StatusInvalidParams
	default:
		return commsutil.StatusInternalError
	}
}

func decodeMsg(msg *comms.Msg, v interface{}) error {
	if len(msg.Data) == 0 {
		return nil
	}
	return commsutil.DecodePayload(msg.Data, v)
}
