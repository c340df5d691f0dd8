// Command relayctl manages the relay's persisted webhook endpoints and
// filter rules, and performs one-off account lookups against the home
// instance. The relay daemon itself only reads the filter store; all
// mutations go through this tool.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
	"github.com/blackmichael/fedi-relay/internal/relay"
	"github.com/blackmichael/fedi-relay/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		databaseURL string
		kind        string
		webhookURL  string
		filterAcct  string
		filterHost  string
		remove      bool
		prune       bool
		lookup      string
		server      string
		token       string
	)

	flag.StringVar(&databaseURL, "database-url", envOrDefault("DATABASE_URL", ""), "Postgres connection string for the filter store")
	flag.StringVar(&kind, "kind", "discord", "Endpoint kind: generic or discord")
	flag.StringVar(&webhookURL, "url", "", "Webhook endpoint URL")
	flag.StringVar(&filterAcct, "acct", "", "Acct filter to attach or detach (user@host)")
	flag.StringVar(&filterHost, "host", "", "Host filter to attach or detach")
	flag.BoolVar(&remove, "remove", false, "Detach the given filter instead of attaching it")
	flag.BoolVar(&prune, "prune", false, "Delete endpoints left with no filter rules")
	flag.StringVar(&lookup, "lookup", "", "Look up an account by handle and exit")
	flag.StringVar(&server, "server", envOrDefault("MASTODON_SERVER", ""), "Mastodon server base URL (for -lookup)")
	flag.StringVar(&token, "token", envOrDefault("MASTODON_ACCESS_TOKEN", ""), "Access token (for -lookup)")
	flag.Parse()

	ctx := context.Background()

	if lookup != "" {
		return lookupAccount(ctx, server, token, lookup)
	}

	if databaseURL == "" {
		return fmt.Errorf("-database-url is required (or set DATABASE_URL)")
	}

	store, err := storage.NewFilterStore(databaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if prune {
		deleted, err := store.DeleteOrphans(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d orphaned endpoint(s)\n", deleted)
		return nil
	}

	endpointKind, ok := relay.ParseKind(kind)
	if !ok {
		return fmt.Errorf("unknown endpoint kind %q", kind)
	}
	if webhookURL == "" {
		return fmt.Errorf("-url is required")
	}
	if filterAcct == "" && filterHost == "" {
		return fmt.Errorf("one of -acct or -host is required")
	}

	if remove {
		endpoint, err := store.GetEndpoint(ctx, endpointKind, webhookURL)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no such endpoint (%s, %s)", endpointKind, webhookURL)
		}
		if err != nil {
			return err
		}
		if filterAcct != "" {
			if err := store.RemoveAcctFilter(ctx, endpoint.ID, filterAcct); err != nil {
				return err
			}
			fmt.Printf("Removed acct filter %s from endpoint %d\n", filterAcct, endpoint.ID)
		}
		if filterHost != "" {
			if err := store.RemoveHostFilter(ctx, endpoint.ID, filterHost); err != nil {
				return err
			}
			fmt.Printf("Removed host filter %s from endpoint %d\n", filterHost, endpoint.ID)
		}
		return nil
	}

	id, err := store.EnsureEndpoint(ctx, endpointKind, webhookURL)
	if err != nil {
		return err
	}
	if filterAcct != "" {
		if err := store.AddAcctFilter(ctx, id, filterAcct); err != nil {
			return err
		}
		fmt.Printf("Added acct filter %s to endpoint %d\n", filterAcct, id)
	}
	if filterHost != "" {
		if err := store.AddHostFilter(ctx, id, filterHost); err != nil {
			return err
		}
		fmt.Printf("Added host filter %s to endpoint %d\n", filterHost, id)
	}
	return nil
}

func lookupAccount(ctx context.Context, server, token, handle string) error {
	if server == "" {
		return fmt.Errorf("-server is required for -lookup (or set MASTODON_SERVER)")
	}

	client := mastodon.NewClient(server, token)
	account, err := client.LookupAccount(ctx, handle)
	if errors.Is(err, mastodon.ErrNotFound) {
		// Fall back to search, which resolves remote handles the
		// server has not seen yet.
		account, err = client.SearchAccount(ctx, handle)
	}
	if errors.Is(err, mastodon.ErrNotFound) {
		return fmt.Errorf("account %s not found", handle)
	}
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	fmt.Printf("id:           %s\n", account.ID)
	fmt.Printf("acct:         %s\n", account.Acct)
	fmt.Printf("display name: %s\n", account.DisplayName)
	fmt.Printf("url:          %s\n", account.URL)
	fmt.Printf("locked:       %v\n", account.Locked)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
