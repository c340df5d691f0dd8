package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/blackmichael/fedi-relay/internal/relay"
)

// Config holds all configuration for the relay.
type Config struct {
	// Server is the base URL of the home Mastodon instance.
	Server string

	// AccessToken is the bearer credential for the relay account.
	AccessToken string

	// LocalHost canonicalizes bare local handles. Derived from Server
	// when not set explicitly.
	LocalHost string

	// Transport selects the stream framing: "websocket" or "sse".
	Transport string

	// SubscribePublic also subscribes the public sub-channel on the
	// multiplexed transport.
	SubscribePublic bool

	// DatabaseURL is the Postgres connection string for the filter
	// store. Empty disables the store; only static endpoints match.
	DatabaseURL string

	// CursorPath is the JSON file holding the last processed status id.
	CursorPath string

	// Port is the admin HTTP server port.
	Port int

	// RecoveryPageSize is the timeline page size during gap recovery.
	RecoveryPageSize int

	// StaticEndpoints are the config-defined delivery targets.
	StaticEndpoints []relay.StaticEndpoint
}

// staticEndpointJSON is the RELAY_ENDPOINTS wire format.
type staticEndpointJSON struct {
	Kind  string   `json:"kind"`
	URL   string   `json:"url"`
	Accts []string `json:"accts"`
	Hosts []string `json:"hosts"`
}

// Load reads configuration from the environment, consulting a .env file
// when present.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	server := os.Getenv("MASTODON_SERVER")
	if server == "" {
		return nil, fmt.Errorf("MASTODON_SERVER is required")
	}

	localHost := os.Getenv("RELAY_LOCAL_HOST")
	if localHost == "" {
		u, err := url.Parse(server)
		if err != nil || u.Hostname() == "" {
			return nil, fmt.Errorf("cannot derive local host from MASTODON_SERVER %q, set RELAY_LOCAL_HOST", server)
		}
		localHost = u.Hostname()
	}

	transport := os.Getenv("RELAY_TRANSPORT")
	if transport == "" {
		transport = "websocket"
	}
	if transport != "websocket" && transport != "sse" {
		return nil, fmt.Errorf("invalid RELAY_TRANSPORT %q: must be websocket or sse", transport)
	}

	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
	}

	pageSize := 0
	if p := os.Getenv("RELAY_RECOVERY_PAGE_SIZE"); p != "" {
		var err error
		pageSize, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_RECOVERY_PAGE_SIZE: %w", err)
		}
	}

	cursorPath := os.Getenv("RELAY_CURSOR_PATH")
	if cursorPath == "" {
		cursorPath = "data/cursor.json"
	}

	endpoints, err := parseStaticEndpoints(os.Getenv("RELAY_ENDPOINTS"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:           server,
		AccessToken:      os.Getenv("MASTODON_ACCESS_TOKEN"),
		LocalHost:        localHost,
		Transport:        transport,
		SubscribePublic:  os.Getenv("RELAY_SUBSCRIBE_PUBLIC") == "true",
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		CursorPath:       cursorPath,
		Port:             port,
		RecoveryPageSize: pageSize,
		StaticEndpoints:  endpoints,
	}, nil
}

func parseStaticEndpoints(raw string) ([]relay.StaticEndpoint, error) {
	if raw == "" {
		return nil, nil
	}

	var entries []staticEndpointJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parse RELAY_ENDPOINTS: %w", err)
	}

	endpoints := make([]relay.StaticEndpoint, 0, len(entries))
	for i, e := range entries {
		kind, ok := relay.ParseKind(e.Kind)
		if !ok {
			return nil, fmt.Errorf("RELAY_ENDPOINTS[%d]: unknown kind %q", i, e.Kind)
		}
		if e.URL == "" {
			return nil, fmt.Errorf("RELAY_ENDPOINTS[%d]: url is required", i)
		}
		endpoints = append(endpoints, relay.StaticEndpoint{
			Endpoint: relay.Endpoint{Kind: kind, URL: e.URL},
			Accts:    e.Accts,
			Hosts:    e.Hosts,
		})
	}
	return endpoints, nil
}
