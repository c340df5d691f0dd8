package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
	"github.com/blackmichael/fedi-relay/internal/relay"
)

// Message is a formatted payload ready to send. Delay postpones the send,
// used to dodge the destination's own link-preview fetch of the original
// post.
type Message struct {
	Body  any
	Delay time.Duration
}

// Formatter renders a status into a destination-specific payload.
type Formatter interface {
	Format(ctx context.Context, status *mastodon.Status) (*Message, error)
}

// Sender implements relay.Deliverer: it dispatches to the formatter for
// the endpoint's kind and performs the outbound send.
type Sender struct {
	client     *Client
	formatters map[relay.Kind]Formatter
	logger     *slog.Logger
}

// NewSender creates a deliverer with the default formatter per endpoint
// kind. localHost is the relay account's host, used by the Discord
// formatter's send-delay policy.
func NewSender(localHost string, logger *slog.Logger) *Sender {
	return &Sender{
		client: NewClient(),
		formatters: map[relay.Kind]Formatter{
			relay.KindGeneric: &GenericFormatter{},
			relay.KindDiscord: NewDiscordFormatter(localHost, NewAccentCache(), logger),
		},
		logger: logger,
	}
}

var _ relay.Deliverer = (*Sender)(nil)

// Deliver formats the status for the endpoint's kind and posts it.
func (s *Sender) Deliver(ctx context.Context, endpoint relay.Endpoint, status *mastodon.Status) error {
	formatter, ok := s.formatters[endpoint.Kind]
	if !ok {
		return fmt.Errorf("no formatter for endpoint kind %q", endpoint.Kind)
	}

	msg, err := formatter.Format(ctx, status)
	if err != nil {
		return fmt.Errorf("format status %s: %w", status.ID, err)
	}

	if msg.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(msg.Delay):
		}
	}

	return s.client.Post(ctx, endpoint.URL, msg.Body)
}

// GenericFormatter passes the status through as-is.
type GenericFormatter struct{}

// Format implements Formatter.
func (f *GenericFormatter) Format(_ context.Context, status *mastodon.Status) (*Message, error) {
	return &Message{Body: status}, nil
}
