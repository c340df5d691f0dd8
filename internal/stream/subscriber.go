package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval      = 30 * time.Second
	writeTimeout      = 10 * time.Second
	initialBackoff    = time.Second
	maxBackoff        = time.Minute
	backoffMultiplier = 2
)

// Subscriber connects to the multiplexed websocket streaming API,
// subscribes to the configured channels, and forwards normalized events
// to the handler.
type Subscriber struct {
	server   string
	token    string
	channels []string
	handler  Handler
	logger   *slog.Logger
}

// NewSubscriber creates a websocket subscriber for the given server base
// URL. Channels is the set of sub-channels to subscribe to on every
// (re)connect, e.g. "user" and "public".
func NewSubscriber(server, token string, channels []string, handler Handler, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		server:   server,
		token:    token,
		channels: channels,
		handler:  handler,
		logger:   logger,
	}
}

// Channels returns the sub-channels this subscriber attaches to.
func (s *Subscriber) Channels() []string {
	return s.channels
}

// Start connects and processes events until the context is cancelled. It
// automatically reconnects on transient errors with capped exponential
// backoff.
func (s *Subscriber) Start(ctx context.Context) error {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		err := s.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("stream connection error, reconnecting", "error", err, "backoff", backoff)

		// A connection that stayed up for a while resets the backoff.
		if time.Since(start) > maxBackoff {
			backoff = initialBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= backoffMultiplier
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Subscriber) buildURL() (string, error) {
	u, err := url.Parse(s.server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/streaming"

	q := u.Query()
	if s.token != "" {
		q.Set("access_token", s.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	wsURL, err := s.buildURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to stream", "channels", s.channels)

	// Re-issue subscriptions on every connect; the server keeps no
	// subscription state across connections.
	for _, ch := range s.channels {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(subscribeFrame{Type: "subscribe", Stream: ch}); err != nil {
			return fmt.Errorf("subscribe to %s: %w", ch, err)
		}
	}

	// Close the connection when the context is cancelled so ReadMessage
	// unblocks; keepalive pings detect half-open connections.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseSocketFrame(message)
		if err != nil {
			s.logger.Error("failed to parse stream frame", "error", err)
			continue
		}

		s.handler.HandleEvent(event)
	}
}
