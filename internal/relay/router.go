package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
	"github.com/blackmichael/fedi-relay/internal/stream"
)

// CanonicalizeAcct qualifies a bare local handle with the given host.
// Handles that already contain a host are returned unchanged.
func CanonicalizeAcct(acct, localHost string) string {
	if strings.Contains(acct, "@") {
		return acct
	}
	return acct + "@" + localHost
}

// AcctHost returns the host portion of a canonical acct.
func AcctHost(acct string) string {
	if i := strings.LastIndex(acct, "@"); i >= 0 {
		return acct[i+1:]
	}
	return ""
}

// Router decides which endpoints receive a given status. It consults the
// static endpoint configuration and the persisted filter store, applying
// the visibility and duplicate-suppression gates first.
type Router struct {
	localHost        string
	selfAccountID    string
	publicSubscribed bool
	static           []StaticEndpoint
	store            FilterStore
	logger           *slog.Logger
}

// NewRouter creates a router. localHost canonicalizes bare local handles,
// selfAccountID is the relay account's own id (used by the private-status
// mention gate), and publicSubscribed must be true when the stream client
// also subscribes to the public sub-channel. store may be nil when no
// persisted filter store is configured.
func NewRouter(localHost, selfAccountID string, publicSubscribed bool, static []StaticEndpoint, store FilterStore, logger *slog.Logger) *Router {
	return &Router{
		localHost:        localHost,
		selfAccountID:    selfAccountID,
		publicSubscribed: publicSubscribed,
		static:           static,
		store:            store,
		logger:           logger,
	}
}

// Route returns the deduplicated set of endpoints that should receive the
// status. channel is the stream sub-channel the status arrived on, or
// empty for replayed statuses. An empty result is valid and means no
// endpoint matched or a gate discarded the status.
func (r *Router) Route(ctx context.Context, status *mastodon.Status, channel string) ([]Endpoint, error) {
	acct := CanonicalizeAcct(status.Account.Acct, r.localHost)
	host := AcctHost(acct)

	if !r.passesGates(status, channel) {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var matched []Endpoint

	for i := range r.static {
		ep := &r.static[i]
		if !ep.Matches(acct, host) {
			continue
		}
		if _, ok := seen[ep.Key()]; ok {
			continue
		}
		seen[ep.Key()] = struct{}{}
		matched = append(matched, ep.Endpoint)
	}

	if r.store != nil {
		stored, err := r.store.EndpointsFor(ctx, acct, host)
		if err != nil {
			return matched, fmt.Errorf("query filter store: %w", err)
		}
		for _, ep := range stored {
			if _, ok := seen[ep.Key()]; ok {
				continue
			}
			seen[ep.Key()] = struct{}{}
			matched = append(matched, ep)
		}
	}

	return matched, nil
}

func (r *Router) passesGates(status *mastodon.Status, channel string) bool {
	// Followers-only posts from approval-required accounts are dropped
	// unless they mention the relay account directly.
	if status.Visibility == mastodon.VisibilityPrivate &&
		status.Account.Locked &&
		!status.MentionsAccount(r.selfAccountID) {
		r.logger.Debug("dropping private status from locked account", "status_id", status.ID)
		return false
	}

	// When the public sub-channel is subscribed alongside the personal
	// one, a discoverable public status arrives on both; the personal
	// copy is discarded.
	if r.publicSubscribed &&
		channel == stream.ChannelUser &&
		isDiscoverable(status) {
		r.logger.Debug("dropping duplicate of public-channel status", "status_id", status.ID)
		return false
	}

	return true
}

// isDiscoverable reports whether the status is delivered on the public
// sub-channel: public, not a repost, and either not a reply or a reply to
// the author's own prior post.
func isDiscoverable(status *mastodon.Status) bool {
	if status.Visibility != mastodon.VisibilityPublic {
		return false
	}
	if status.Reblog != nil {
		return false
	}
	return status.InReplyToID == "" || status.InReplyToAccountID == status.Account.ID
}
