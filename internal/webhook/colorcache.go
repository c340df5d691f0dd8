package webhook

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	// Avatar formats served by Mastodon instances.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/sync/singleflight"
)

// AccentCache computes an embed accent color from an account's avatar.
// Concurrent lookups for the same (server, account, avatar) triple share
// one in-flight fetch; once the computation settles the entry is gone
// and a later call fetches fresh.
type AccentCache struct {
	group      singleflight.Group
	httpClient *http.Client
}

// NewAccentCache creates a cache with its own short-timeout HTTP client.
func NewAccentCache() *AccentCache {
	return &AccentCache{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup returns the accent color for the avatar as 0xRRGGBB.
func (c *AccentCache) Lookup(ctx context.Context, server, accountID, avatarURL string) (int, error) {
	key := server + "|" + accountID + "|" + avatarURL
	v, err, _ := c.group.Do(key, func() (any, error) {
		// The result is shared with every waiter on this key; the first
		// caller cancelling must not fail them all. The HTTP client's
		// own timeout still bounds the fetch.
		return c.fetchColor(context.WithoutCancel(ctx), avatarURL)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// fetchColor downloads the avatar and averages its pixels.
func (c *AccentCache) fetchColor(ctx context.Context, avatarURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("fetch avatar: status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("decode avatar: %w", err)
	}

	return averageColor(img), nil
}

// averageColor samples the image on a coarse grid and averages the RGB
// channels.
func averageColor(img image.Image) int {
	bounds := img.Bounds()
	step := bounds.Dx() / 32
	if step < 1 {
		step = 1
	}

	var r, g, b, n uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += uint64(pr >> 8)
			g += uint64(pg >> 8)
			b += uint64(pb >> 8)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(r/n)<<16 | int(g/n)<<8 | int(b/n)
}
