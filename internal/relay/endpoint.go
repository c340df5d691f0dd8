package relay

import "strings"

// Kind selects the delivery format for an endpoint.
type Kind string

const (
	// KindGeneric delivers the status re-serialized as-is.
	KindGeneric Kind = "generic"

	// KindDiscord delivers a rendered Discord embed message.
	KindDiscord Kind = "discord"
)

// ParseKind validates an endpoint kind string.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindGeneric, KindDiscord:
		return Kind(s), true
	}
	return "", false
}

// Endpoint is a configured delivery target. Identity is (Kind, URL); ID
// is the persisted row id for store-backed endpoints and zero for
// statically configured ones.
type Endpoint struct {
	ID   int64
	Kind Kind
	URL  string
}

// Key returns the identity key used for dedup across the static config
// and the persisted store.
func (e Endpoint) Key() string {
	return string(e.Kind) + "\x00" + e.URL
}

// StaticEndpoint is an endpoint from the static configuration with its
// inline match predicate: the status is delivered when the author's
// canonical acct is in Accts or the author's host is in Hosts.
type StaticEndpoint struct {
	Endpoint
	Accts []string
	Hosts []string
}

// Matches reports whether the predicate accepts the canonicalized acct
// and its host portion.
func (e *StaticEndpoint) Matches(acct, host string) bool {
	for _, a := range e.Accts {
		if strings.EqualFold(a, acct) {
			return true
		}
	}
	for _, h := range e.Hosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}
