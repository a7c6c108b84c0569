package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/chatops-rpc/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// SubjectPrefix overrides the subject prefix (e.g. from CHATOPS_SUBJECT_PREFIX).
	SubjectPrefix string
}

// CommsPublisher publishes invocation events to COMMS subjects.
type CommsPublisher struct {
	nc     *comms.Conn
	prefix string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	prefix := commsutil.DefaultSubjectPrefix
	if opts != nil && opts.SubjectPrefix != "" {
		prefix = opts.SubjectPrefix
	}
	return &CommsPublisher{nc: nc, prefix: prefix}
}

// PublishInvoked publishes an InvocationEvent to both the per-command
// and namespace-wide invoked subjects. Events without a command (unmatched
// chat messages) go to the namespace subject only.
func (p *CommsPublisher) PublishInvoked(_ context.Context, event *InvocationEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	var subjects []string
	if event.Command != "" {
		subjects = append(subjects, commsutil.BuildCommandInvokedSubject(p.prefix, event.Namespace, event.Command))
	}
	subjects = append(subjects, commsutil.BuildInvokedSubject(p.prefix, event.Namespace))
	for _, subject := range subjects {
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published invocation event for %s.%s", commsPublisherLogPrefix, event.Namespace, event.Command))
	return nil
}
