// Package client calls a chatops service over NATS.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/chatops-rpc/pkg/commsutil"
	"github.com/morezero/chatops-rpc/pkg/dispatcher"
	"github.com/morezero/chatops-rpc/pkg/matcher"
	"github.com/morezero/chatops-rpc/pkg/registry"
)

const logPrefix = "client:client"

// DefaultTimeout bounds a request when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// ReplyError is a reply whose status is not an envelope status.
type ReplyError struct {
	Status  string
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// NewClientParams holds parameters for NewClient.
type NewClientParams struct {
	Conn          *comms.Conn
	Namespace     string
	SubjectPrefix string
	Token         string
	MatchTimeout  time.Duration
}

// Client routes chat messages locally against the service's catalog and
// invokes the matched command remotely.
type Client struct {
	nc           *comms.Conn
	namespace    string
	prefix       string
	token        string
	matchTimeout time.Duration

	mu      sync.Mutex
	matcher *matcher.Matcher
}

// NewClient creates a Client.
func NewClient(params NewClientParams) *Client {
	return &Client{
		nc:           params.Conn,
		namespace:    params.Namespace,
		prefix:       params.SubjectPrefix,
		token:        params.Token,
		matchTimeout: params.MatchTimeout,
	}
}

// List fetches the service catalog.
func (c *Client) List(ctx context.Context) (*registry.Catalog, error) {
	var catalog registry.Catalog
	if err := c.call(ctx, commsutil.BuildListSubject(c.prefix, c.namespace), nil, &catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Execute invokes a command by name.
func (c *Client) Execute(ctx context.Context, req *dispatcher.Request) (*dispatcher.Envelope, error) {
	var env dispatcher.Envelope
	if err := c.call(ctx, commsutil.BuildExecuteSubject(c.prefix, c.namespace), req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Route resolves message against the cached catalog, fetching it on first use.
func (c *Client) Route(ctx context.Context, message string) (*matcher.Result, error) {
	m, err := c.loadMatcher(ctx)
	if err != nil {
		return nil, err
	}
	return m.Match(message)
}

// Chat routes message and executes the matched command as user in roomID.
func (c *Client) Chat(ctx context.Context, user, roomID, message string) (*dispatcher.Envelope, error) {
	res, err := c.Route(ctx, message)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, &dispatcher.Request{
		Chatop: res.Command,
		Params: res.Params,
		User:   user,
		RoomID: roomID,
	})
}

// Refresh drops the cached catalog.
func (c *Client) Refresh() {
	c.mu.Lock()
	c.matcher = nil
	c.mu.Unlock()
}

func (c *Client) loadMatcher(ctx context.Context) (*matcher.Matcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.matcher != nil {
		return c.matcher, nil
	}
	catalog, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	m, err := matcher.FromCatalog(catalog, c.matchTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s - build matcher: %w", logPrefix, err)
	}
	slog.Debug(fmt.Sprintf("%s - loaded %d commands from %s", logPrefix, len(catalog.Methods), catalog.Namespace))
	c.matcher = m
	return m, nil
}

// envelopeStatuses are reply statuses whose body is an envelope.
var envelopeStatuses = map[string]bool{
	commsutil.StatusOK:             true,
	commsutil.StatusInvalidParams:  true,
	commsutil.StatusMethodNotFound: true,
	commsutil.StatusBadRequest:     true,
}

func (c *Client) call(ctx context.Context, subject string, payload, out interface{}) error {
	msg := comms.NewMsg(subject)
	if c.token != "" {
		msg.Header.Set(commsutil.TokenHeader, c.token)
	}
	if payload != nil {
		data, err := commsutil.EncodePayload(payload)
		if err != nil {
			return fmt.Errorf("%s - encode request: %w", logPrefix, err)
		}
		msg.Data = data
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	reply, err := c.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("%s - request %s: %w", logPrefix, subject, err)
	}

	status := commsutil.Status(reply)
	if !envelopeStatuses[status] {
		var body struct {
			Error string `json:"error"`
		}
		_ = commsutil.DecodePayload(reply.Data, &body)
		return &ReplyError{Status: status, Message: body.Error}
	}
	if err := commsutil.DecodePayload(reply.Data, out); err != nil {
		return fmt.Errorf("%s - decode reply from %s: %w", logPrefix, subject, err)
	}
	return nil
}
