package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingHandler struct {
	mu     sync.Mutex
	events []*Event
}

func (h *collectingHandler) HandleEvent(event *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *collectingHandler) all() []*Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Event(nil), h.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSSESubscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/streaming/user", r.URL.Path)
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, ":thump\n")
		io.WriteString(w, "\n")
		io.WriteString(w, "event: update\n")
		io.WriteString(w, `data: {"id":"101","content":"<p>hi</p>","account":{"id":"1","acct":"alice"}}`+"\n")
		io.WriteString(w, "\n")
		io.WriteString(w, "event: delete\n")
		io.WriteString(w, "data: 101\n")
		io.WriteString(w, "\n")
		io.WriteString(w, "event: bogus\n")
		io.WriteString(w, "data: {}\n")
		io.WriteString(w, "\n")
	}))
	defer srv.Close()

	handler := &collectingHandler{}
	sub := NewSSESubscriber(srv.URL, "token123", handler, testLogger())

	// The server closing the stream ends one subscribe attempt.
	err := sub.subscribe(context.Background())
	require.Error(t, err)

	events := handler.all()
	require.Len(t, events, 2, "heartbeats and unparseable events are dropped")
	assert.Equal(t, EventStatusCreated, events[0].Type)
	assert.Equal(t, "101", events[0].Status.ID)
	assert.Equal(t, ChannelUser, events[0].Channel)
	assert.Equal(t, EventStatusDeleted, events[1].Type)
	assert.Equal(t, "101", events[1].DeletedID)
}

func TestSSESubscribeNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	sub := NewSSESubscriber(srv.URL, "", &collectingHandler{}, testLogger())
	err := sub.subscribe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
