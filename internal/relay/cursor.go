package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
)

// Cursor tracks the highest observed status id in memory and flushes it
// to the backing store periodically and on shutdown. The cursor only
// moves forward: observing an id smaller than the current value is a
// no-op.
type Cursor struct {
	mu    sync.Mutex
	id    string
	dirty bool

	store  CursorStore
	logger *slog.Logger
}

// NewCursor creates a cursor backed by the given store.
func NewCursor(store CursorStore, logger *slog.Logger) *Cursor {
	return &Cursor{store: store, logger: logger}
}

// Load reads the persisted cursor into memory. Called once at startup.
func (c *Cursor) Load(ctx context.Context) error {
	id, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
	return nil
}

// Observe records a status id. The in-memory value only advances; ids
// arriving out of order never move the cursor backwards.
func (c *Cursor) Observe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id != "" && mastodon.CompareID(id, c.id) <= 0 {
		return
	}
	c.id = id
	c.dirty = true
}

// Current returns the in-memory cursor value, or "" if none.
func (c *Cursor) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Flush persists the cursor if it changed since the last flush.
func (c *Cursor) Flush(ctx context.Context) error {
	c.mu.Lock()
	id, dirty := c.id, c.dirty
	c.dirty = false
	c.mu.Unlock()

	if !dirty {
		return nil
	}
	if err := c.store.Save(ctx, id); err != nil {
		// Mark dirty again so the next flush retries.
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		return err
	}
	return nil
}

// StartFlushLoop flushes the cursor at the given interval until the
// context is cancelled, then performs a final synchronous flush.
func (c *Cursor) StartFlushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.Flush(context.Background()); err != nil {
				c.logger.Error("final cursor flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.logger.Error("cursor flush failed", "error", err)
			}
		}
	}
}
