package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blackmichael/fedi-relay/internal/stream"
)

func newTestService(deliverer Deliverer) (*Service, *Cursor) {
	static := []StaticEndpoint{
		{
			Endpoint: Endpoint{Kind: KindDiscord, URL: "https://hooks.example/a"},
			Accts:    []string{"alice@home.example"},
		},
		{
			Endpoint: Endpoint{Kind: KindGeneric, URL: "https://hooks.example/b"},
			Hosts:    []string{"home.example"},
		},
	}
	cursor := NewCursor(&memCursorStore{}, testLogger())
	router := NewRouter(localHost, "self", false, static, nil, testLogger())
	return NewService(router, deliverer, cursor, testLogger()), cursor
}

func TestProcessStatusDeliversToAllMatches(t *testing.T) {
	deliverer := newRecordingDeliverer()
	service, cursor := newTestService(deliverer)

	service.ProcessStatus(context.Background(), status("101", "alice"), "")

	assert.Equal(t, []string{"101"}, deliverer.deliveries("https://hooks.example/a"))
	assert.Equal(t, []string{"101"}, deliverer.deliveries("https://hooks.example/b"))
	assert.Equal(t, "101", cursor.Current())
}

func TestProcessStatusIsolatesEndpointFailures(t *testing.T) {
	deliverer := newRecordingDeliverer()
	deliverer.failFor["https://hooks.example/a"] = assert.AnError
	service, _ := newTestService(deliverer)

	service.ProcessStatus(context.Background(), status("101", "alice"), "")

	assert.Empty(t, deliverer.deliveries("https://hooks.example/a"))
	assert.Equal(t, []string{"101"}, deliverer.deliveries("https://hooks.example/b"),
		"one endpoint failing must not block the others")
}

func TestProcessStatusNoMatchStillAdvancesCursor(t *testing.T) {
	deliverer := newRecordingDeliverer()
	service, cursor := newTestService(deliverer)

	service.ProcessStatus(context.Background(), status("300", "stranger@elsewhere.example"), "")

	assert.Equal(t, "300", cursor.Current())
	assert.Empty(t, deliverer.delivered)
}

func TestHandleEventIgnoresDeletesAndNotifications(t *testing.T) {
	deliverer := newRecordingDeliverer()
	service, cursor := newTestService(deliverer)

	service.HandleEvent(&stream.Event{Type: stream.EventStatusDeleted, DeletedID: "42"})
	service.HandleEvent(&stream.Event{Type: stream.EventNotification})

	assert.Equal(t, "", cursor.Current(), "only status events move the cursor")
}
