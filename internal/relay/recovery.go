package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
)

const defaultRecoveryPageSize = 40

// Recoverer replays statuses missed while the relay was down. Starting
// from the persisted cursor it pages the home timeline in ascending id
// order and feeds every status through the normal pipeline, advancing
// the cursor status by status so a crash mid-recovery never causes
// already-advanced ids to be reprocessed.
type Recoverer struct {
	source   TimelineSource
	service  *Service
	cursor   *Cursor
	pageSize int
	logger   *slog.Logger
}

// NewRecoverer creates a gap recoverer. pageSize <= 0 selects the
// default.
func NewRecoverer(source TimelineSource, service *Service, cursor *Cursor, pageSize int, logger *slog.Logger) *Recoverer {
	if pageSize <= 0 {
		pageSize = defaultRecoveryPageSize
	}
	return &Recoverer{
		source:   source,
		service:  service,
		cursor:   cursor,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Run replays all statuses with id greater than the persisted cursor and
// returns the number processed. With no persisted cursor there is
// nothing to recover. A fetch error aborts recovery and is returned to
// the caller; statuses already replayed stay replayed.
func (r *Recoverer) Run(ctx context.Context) (int, error) {
	minID := r.cursor.Current()
	if minID == "" {
		r.logger.Info("no cursor, skipping gap recovery")
		return 0, nil
	}

	r.logger.Info("starting gap recovery", "min_id", minID)

	processed := 0
	for {
		// Each page is anchored at the cursor, so a gap wider than one
		// page is walked in full rather than truncated to the newest.
		statuses, err := r.source.HomeTimeline(ctx, minID, r.pageSize)
		if err != nil {
			return processed, fmt.Errorf("fetch timeline page after %s: %w", minID, err)
		}
		if len(statuses) == 0 {
			break
		}

		// The server returns newest-first within the page; re-sort
		// ascending.
		sort.Slice(statuses, func(i, j int) bool {
			return mastodon.CompareID(statuses[i].ID, statuses[j].ID) < 0
		})

		for _, status := range statuses {
			r.service.ProcessStatus(ctx, status, "")
			processed++
		}
		minID = statuses[len(statuses)-1].ID

		if err := ctx.Err(); err != nil {
			return processed, err
		}
	}

	r.logger.Info("gap recovery complete", "processed", processed, "cursor", r.cursor.Current())
	return processed, nil
}
