package relay

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFilterStore returns canned endpoints for configured acct/host keys.
type fakeFilterStore struct {
	byAcct map[string][]Endpoint
	byHost map[string][]Endpoint
	err    error
}

func (f *fakeFilterStore) EndpointsFor(_ context.Context, acct, host string) ([]Endpoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	seen := make(map[string]struct{})
	var out []Endpoint
	for _, ep := range append(f.byAcct[acct], f.byHost[host]...) {
		if _, ok := seen[ep.Key()]; ok {
			continue
		}
		seen[ep.Key()] = struct{}{}
		out = append(out, ep)
	}
	return out, nil
}

// memCursorStore is an in-memory CursorStore recording every save.
type memCursorStore struct {
	mu    sync.Mutex
	id    string
	saves []string
	err   error
}

func (m *memCursorStore) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.err
}

func (m *memCursorStore) Save(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.id = id
	m.saves = append(m.saves, id)
	return nil
}

// recordingDeliverer records deliveries and fails for configured URLs.
type recordingDeliverer struct {
	mu        sync.Mutex
	delivered map[string][]string // endpoint URL -> status ids
	failFor   map[string]error
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{
		delivered: make(map[string][]string),
		failFor:   make(map[string]error),
	}
}

func (d *recordingDeliverer) Deliver(_ context.Context, endpoint Endpoint, status *mastodon.Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failFor[endpoint.URL]; ok {
		return err
	}
	d.delivered[endpoint.URL] = append(d.delivered[endpoint.URL], status.ID)
	return nil
}

func (d *recordingDeliverer) deliveries(url string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered[url]...)
}

// fakeTimeline holds a fixed feed (ascending ids) and pages it with the
// server's min_id rules: up to limit statuses immediately newer than
// minID, returned newest-first within the page.
type fakeTimeline struct {
	statuses []*mastodon.Status
	calls    []string
	err      error
}

func (f *fakeTimeline) HomeTimeline(_ context.Context, minID string, limit int) ([]*mastodon.Status, error) {
	f.calls = append(f.calls, minID)
	if f.err != nil {
		return nil, f.err
	}

	var newer []*mastodon.Status
	for _, s := range f.statuses {
		if mastodon.CompareID(s.ID, minID) > 0 {
			newer = append(newer, s)
		}
	}
	if len(newer) > limit {
		newer = newer[:limit]
	}

	page := make([]*mastodon.Status, len(newer))
	for i, s := range newer {
		page[len(newer)-1-i] = s
	}
	return page, nil
}

func status(id, acct string) *mastodon.Status {
	return &mastodon.Status{
		ID:         id,
		Visibility: mastodon.VisibilityPublic,
		Account:    mastodon.Account{ID: "acct-" + acct, Acct: acct},
	}
}
