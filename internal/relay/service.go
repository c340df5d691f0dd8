package relay

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
	"github.com/blackmichael/fedi-relay/internal/stream"
)

// Service is the core pipeline: it consumes normalized stream events,
// advances the cursor, routes each status, and fans delivery out to the
// matched endpoints. Deliveries on the live path are fire-and-forget and
// isolated from each other; replayed statuses are delivered with
// ProcessStatus, which awaits completion.
type Service struct {
	router    *Router
	deliverer Deliverer
	cursor    *Cursor
	logger    *slog.Logger
}

// NewService wires the pipeline together.
func NewService(router *Router, deliverer Deliverer, cursor *Cursor, logger *slog.Logger) *Service {
	return &Service{
		router:    router,
		deliverer: deliverer,
		cursor:    cursor,
		logger:    logger,
	}
}

var _ stream.Handler = (*Service)(nil)

// HandleEvent implements stream.Handler for the live path.
func (s *Service) HandleEvent(event *stream.Event) {
	switch event.Type {
	case stream.EventStatusCreated, stream.EventStatusUpdated:
		s.cursor.Observe(event.Status.ID)
		s.dispatch(context.Background(), event.Status, event.Channel)
	case stream.EventStatusDeleted:
		// Deletions are not propagated; delivered payloads are
		// point-in-time snapshots.
		s.logger.Debug("status deleted upstream", "status_id", event.DeletedID)
	case stream.EventNotification:
		s.logger.Debug("notification received")
	}
}

// ProcessStatus routes and delivers one status, awaiting every delivery
// attempt before returning. Used by gap recovery, which trades
// throughput for a crash-safe cursor.
func (s *Service) ProcessStatus(ctx context.Context, status *mastodon.Status, channel string) {
	s.cursor.Observe(status.ID)

	endpoints := s.route(ctx, status, channel)
	var g errgroup.Group
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			s.deliverOne(ctx, ep, status)
			return nil
		})
	}
	g.Wait()
}

// dispatch routes and delivers one status without awaiting the sends.
func (s *Service) dispatch(ctx context.Context, status *mastodon.Status, channel string) {
	endpoints := s.route(ctx, status, channel)
	for _, ep := range endpoints {
		go s.deliverOne(ctx, ep, status)
	}
}

func (s *Service) route(ctx context.Context, status *mastodon.Status, channel string) []Endpoint {
	endpoints, err := s.router.Route(ctx, status, channel)
	if err != nil {
		// A store failure still leaves the static matches usable.
		s.logger.Error("routing error", "status_id", status.ID, "error", err)
	}
	if len(endpoints) == 0 {
		s.logger.Debug("no endpoint matched", "status_id", status.ID, "acct", status.Account.Acct)
	}
	return endpoints
}

// deliverOne performs one delivery attempt. Failures are logged and
// never affect the other endpoints receiving the same status.
func (s *Service) deliverOne(ctx context.Context, endpoint Endpoint, status *mastodon.Status) {
	if err := s.deliverer.Deliver(ctx, endpoint, status); err != nil {
		s.logger.Error("delivery failed",
			"status_id", status.ID,
			"endpoint_kind", endpoint.Kind,
			"endpoint_url", endpoint.URL,
			"error", err,
		)
		return
	}
	s.logger.Info("delivered status",
		"status_id", status.ID,
		"endpoint_kind", endpoint.Kind,
		"endpoint_url", endpoint.URL,
	)
}
