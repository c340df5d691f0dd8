package stream

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SSESubscriber consumes the single-channel text event stream framing.
// The subscription is implicit in the connection URL, so only the user
// feed is carried and no control messages are sent.
type SSESubscriber struct {
	server  string
	token   string
	handler Handler
	logger  *slog.Logger

	// No overall timeout: the connection is long-lived and heartbeat
	// comments keep it from idling out.
	httpClient *http.Client
}

// NewSSESubscriber creates a subscriber for the text event stream at the
// given server base URL.
func NewSSESubscriber(server, token string, handler Handler, logger *slog.Logger) *SSESubscriber {
	return &SSESubscriber{
		server:     server,
		token:      token,
		handler:    handler,
		logger:     logger,
		httpClient: &http.Client{},
	}
}

// Start connects and processes events until the context is cancelled,
// reconnecting on transient errors with capped exponential backoff.
func (s *SSESubscriber) Start(ctx context.Context) error {
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
		s.logger.Error("event stream error, reconnecting", "error", err, "backoff", backoff)

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

func (s *SSESubscriber) subscribe(ctx context.Context) error {
	url := strings.TrimSuffix(s.server, "/") + "/api/v1/streaming/user"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	s.logger.Info("connected to event stream")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line terminates one event.
			if eventType != "" && data.Len() > 0 {
				s.dispatch(eventType, data.String())
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment, ignored.
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return fmt.Errorf("event stream closed by server")
}

func (s *SSESubscriber) dispatch(eventType, data string) {
	event, err := parseTextEvent(eventType, []byte(data))
	if err != nil {
		s.logger.Error("failed to parse stream event", "type", eventType, "error", err)
		return
	}
	s.handler.HandleEvent(event)
}
