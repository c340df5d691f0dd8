package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blackmichael/fedi-relay/internal/relay"
	_ "github.com/lib/pq"
)

// FilterStore implements relay.FilterStore using PostgreSQL, plus the
// mutation operations used by operator tooling. The relay core only
// reads; endpoints and rules are created and removed out of band.
type FilterStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS webhooks (
	id   BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	url  TEXT NOT NULL,
	UNIQUE (kind, url)
);
CREATE TABLE IF NOT EXISTS acct_filters (
	webhook_id BIGINT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
	acct       TEXT NOT NULL,
	UNIQUE (webhook_id, acct)
);
CREATE TABLE IF NOT EXISTS host_filters (
	webhook_id BIGINT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
	host       TEXT NOT NULL,
	UNIQUE (webhook_id, host)
);`

// NewFilterStore connects to PostgreSQL at the given URL, verifies the
// connection, and ensures the schema exists. The caller should call
// Close when the store is no longer needed.
func NewFilterStore(databaseURL string) (*FilterStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &FilterStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *FilterStore) Close() error {
	return s.db.Close()
}

// EndpointsFor returns the endpoints with at least one rule matching the
// canonical acct or its host. An endpoint matched by both rule kinds
// appears once.
func (s *FilterStore) EndpointsFor(ctx context.Context, acct, host string) ([]relay.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, url FROM webhooks
		WHERE id IN (
			SELECT webhook_id FROM acct_filters WHERE acct = $1
			UNION
			SELECT webhook_id FROM host_filters WHERE host = $2
		)`,
		acct, host,
	)
	if err != nil {
		return nil, fmt.Errorf("query matching webhooks (acct=%s, host=%s): %w", acct, host, err)
	}
	defer rows.Close()

	var endpoints []relay.Endpoint
	for rows.Next() {
		var ep relay.Endpoint
		var kind string
		if err := rows.Scan(&ep.ID, &kind, &ep.URL); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		ep.Kind = relay.Kind(kind)
		endpoints = append(endpoints, ep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return endpoints, nil
}

// EnsureEndpoint creates the endpoint if it does not exist and returns
// its id. Identity is (kind, url).
func (s *FilterStore) EnsureEndpoint(ctx context.Context, kind relay.Kind, url string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhooks (kind, url) VALUES ($1, $2)
		ON CONFLICT (kind, url) DO UPDATE SET url = EXCLUDED.url
		RETURNING id`,
		string(kind), url,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure webhook (%s, %s): %w", kind, url, err)
	}
	return id, nil
}

// GetEndpoint looks up an endpoint by identity. Returns sql.ErrNoRows
// when absent.
func (s *FilterStore) GetEndpoint(ctx context.Context, kind relay.Kind, url string) (relay.Endpoint, error) {
	ep := relay.Endpoint{Kind: kind, URL: url}
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM webhooks WHERE kind = $1 AND url = $2`,
		string(kind), url,
	).Scan(&ep.ID)
	if err != nil {
		return relay.Endpoint{}, err
	}
	return ep, nil
}

// AddAcctFilter attaches an acct rule to the endpoint.
func (s *FilterStore) AddAcctFilter(ctx context.Context, webhookID int64, acct string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acct_filters (webhook_id, acct) VALUES ($1, $2)
		ON CONFLICT (webhook_id, acct) DO NOTHING`,
		webhookID, acct,
	)
	return err
}

// AddHostFilter attaches a host rule to the endpoint.
func (s *FilterStore) AddHostFilter(ctx context.Context, webhookID int64, host string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO host_filters (webhook_id, host) VALUES ($1, $2)
		ON CONFLICT (webhook_id, host) DO NOTHING`,
		webhookID, host,
	)
	return err
}

// RemoveAcctFilter detaches an acct rule from the endpoint.
func (s *FilterStore) RemoveAcctFilter(ctx context.Context, webhookID int64, acct string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM acct_filters WHERE webhook_id = $1 AND acct = $2`,
		webhookID, acct,
	)
	return err
}

// RemoveHostFilter detaches a host rule from the endpoint.
func (s *FilterStore) RemoveHostFilter(ctx context.Context, webhookID int64, host string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM host_filters WHERE webhook_id = $1 AND host = $2`,
		webhookID, host,
	)
	return err
}

// DeleteOrphans removes endpoints with no remaining filter rules and
// returns how many were deleted.
func (s *FilterStore) DeleteOrphans(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhooks WHERE id NOT IN (
			SELECT webhook_id FROM acct_filters
			UNION
			SELECT webhook_id FROM host_filters
		)`,
	)
	if err != nil {
		return 0, fmt.Errorf("delete orphaned webhooks: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
