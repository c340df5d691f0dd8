package relay

import (
	"context"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
)

// FilterStore defines the read side of the persisted filter-rule store.
// Rules are written by external tooling; the relay only queries them.
type FilterStore interface {
	// EndpointsFor returns the endpoints with at least one filter rule
	// matching the canonical acct or its host, deduplicated by endpoint.
	EndpointsFor(ctx context.Context, acct, host string) ([]Endpoint, error)
}

// CursorStore persists the last processed status id.
type CursorStore interface {
	// Load returns the persisted cursor, or "" if none has been saved.
	Load(ctx context.Context) (string, error)

	// Save persists the cursor. The write must be atomic so a crash
	// never leaves a corrupt snapshot.
	Save(ctx context.Context, id string) error
}

// Deliverer formats and sends one status to one endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, endpoint Endpoint, status *mastodon.Status) error
}

// TimelineSource provides the paginated timeline fetch used by gap
// recovery. The page must hold the statuses immediately newer than
// minID, not the newest ones overall.
type TimelineSource interface {
	HomeTimeline(ctx context.Context, minID string, limit int) ([]*mastodon.Status, error)
}
