package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNotFound is returned by lookup operations when the server reports
// that the requested account or status does not exist, as opposed to an
// upstream failure.
var ErrNotFound = errors.New("mastodon: not found")

// APIError is a non-2xx response from the Mastodon API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Client is a minimal Mastodon REST API client covering the timeline,
// account, and status operations the relay needs.
type Client struct {
	server     string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given server base URL (e.g.
// https://mastodon.example). The access token may be empty for
// unauthenticated use, in which case the home timeline is unavailable.
func NewClient(server, token string) *Client {
	return &Client{
		server: server,
		token:  token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// VerifyCredentials returns the account the access token belongs to.
func (c *Client) VerifyCredentials(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.get(ctx, "/api/v1/accounts/verify_credentials", nil, &account); err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	return &account, nil
}

// HomeTimeline fetches up to limit statuses immediately newer than
// minID from the home timeline. min_id anchors pagination at the cursor
// (the page holds the oldest matching statuses), unlike since_id, which
// anchors at the newest and drops everything in between once the gap
// exceeds one page. The server returns newest-first within the page;
// callers that need ascending order must re-sort with CompareID.
func (c *Client) HomeTimeline(ctx context.Context, minID string, limit int) ([]*Status, error) {
	params := url.Values{}
	if minID != "" {
		params.Set("min_id", minID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var statuses []*Status
	if err := c.get(ctx, "/api/v1/timelines/home", params, &statuses); err != nil {
		return nil, fmt.Errorf("fetch home timeline: %w", err)
	}
	return statuses, nil
}

// GetStatus fetches a single status by id.
func (c *Client) GetStatus(ctx context.Context, id string) (*Status, error) {
	var status Status
	if err := c.get(ctx, "/api/v1/statuses/"+url.PathEscape(id), nil, &status); err != nil {
		return nil, fmt.Errorf("get status %s: %w", id, err)
	}
	return &status, nil
}

// LookupAccount resolves an acct (bare or user@host) to an account.
func (c *Client) LookupAccount(ctx context.Context, acct string) (*Account, error) {
	params := url.Values{}
	params.Set("acct", acct)

	var account Account
	if err := c.get(ctx, "/api/v1/accounts/lookup", params, &account); err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", acct, err)
	}
	return &account, nil
}

// SearchAccount searches for accounts matching the query, resolving
// remote handles when the server supports it. Returns the first match.
func (c *Client) SearchAccount(ctx context.Context, query string) (*Account, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "accounts")
	params.Set("resolve", "true")
	params.Set("limit", "1")

	var result struct {
		Accounts []*Account `json:"accounts"`
	}
	if err := c.get(ctx, "/api/v2/search", params, &result); err != nil {
		return nil, fmt.Errorf("search account %s: %w", query, err)
	}
	if len(result.Accounts) == 0 {
		return nil, fmt.Errorf("search account %s: %w", query, ErrNotFound)
	}
	return result.Accounts[0], nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	u := c.server + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
