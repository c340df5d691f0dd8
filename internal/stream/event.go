package stream

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
)

// EventType identifies a normalized stream event.
type EventType string

const (
	EventStatusCreated EventType = "status.created"
	EventStatusUpdated EventType = "status.updated"
	EventStatusDeleted EventType = "status.deleted"
	EventNotification  EventType = "notification"
)

// Channel names used by the multiplexed streaming API.
const (
	ChannelUser   = "user"
	ChannelPublic = "public"
)

// Event is one normalized stream event. Both wire framings decode into
// this shape. Status is set for created/updated events, DeletedID for
// deletes. Channel records the sub-channel the event arrived on ("user"
// for the single-channel framing, which carries only the user feed).
type Event struct {
	Type      EventType
	Channel   string
	Status    *mastodon.Status
	DeletedID string
}

// Handler consumes normalized events. Implementations must not retain the
// event's Status beyond the call unless they copy it.
type Handler interface {
	HandleEvent(event *Event)
}

// socketFrame is the envelope of the multiplexed websocket framing. The
// payload is usually a JSON-encoded string containing the inner document,
// but some servers send raw JSON; both are accepted.
type socketFrame struct {
	Stream  []string        `json:"stream"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// subscribeFrame is the control message sent once per channel after
// every (re)connect.
type subscribeFrame struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
}

// parseSocketFrame decodes one multiplexed websocket message into a
// normalized event.
func parseSocketFrame(data []byte) (*Event, error) {
	var frame socketFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}

	channel := ""
	if len(frame.Stream) > 0 {
		channel = frame.Stream[0]
	}

	payload := unwrapPayload(frame.Payload)
	return normalize(frame.Event, channel, payload)
}

// parseTextEvent decodes one named server-sent event into a normalized
// event. The single-channel framing carries only the user feed.
func parseTextEvent(eventType string, data []byte) (*Event, error) {
	return normalize(eventType, ChannelUser, data)
}

// unwrapPayload handles the double-encoded payload of the socket framing:
// if the payload is a JSON string, the inner text is the real document.
func unwrapPayload(raw json.RawMessage) []byte {
	if len(raw) == 0 || raw[0] != '"' {
		return raw
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return raw
	}
	return []byte(inner)
}

func normalize(eventType, channel string, payload []byte) (*Event, error) {
	switch eventType {
	case "update", "status.update":
		var status mastodon.Status
		if err := json.Unmarshal(payload, &status); err != nil {
			return nil, fmt.Errorf("unmarshal status payload: %w", err)
		}
		if status.ID == "" {
			return nil, fmt.Errorf("status payload missing id")
		}
		t := EventStatusCreated
		if eventType == "status.update" {
			t = EventStatusUpdated
		}
		return &Event{Type: t, Channel: channel, Status: &status}, nil

	case "delete":
		// The delete payload is the bare status id.
		id := string(payload)
		var quoted string
		if json.Unmarshal(payload, &quoted) == nil {
			id = quoted
		}
		if id == "" {
			return nil, fmt.Errorf("delete payload missing id")
		}
		return &Event{Type: EventStatusDeleted, Channel: channel, DeletedID: id}, nil

	case "notification":
		return &Event{Type: EventNotification, Channel: channel}, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}
