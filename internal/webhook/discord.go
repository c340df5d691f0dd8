package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
	"github.com/blackmichael/fedi-relay/internal/relay"
	"github.com/blackmichael/fedi-relay/internal/webhook/discordfmt"
)

const (
	// maxRepostDepth bounds the reblog chain walk; a well-formed feed
	// never nests reposts this deep.
	maxRepostDepth = 10

	// sameOriginSendDelay gives Discord's own link-preview fetch of the
	// original post a head start, so an image hosted on the status's
	// origin is not double-posted.
	sameOriginSendDelay = 5 * time.Second

	// brandName is the destination platform's own name; author display
	// names colliding with it get replaced to avoid impersonation-looking
	// messages.
	brandName = "discord"

	fallbackAuthorName = "Fediverse user"
)

var shortcodeRe = regexp.MustCompile(`:[a-zA-Z0-9_]+:`)

// discordMessage is the webhook payload Discord accepts.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Author      *discordAuthor `json:"author,omitempty"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Image       *discordImage  `json:"image,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// DiscordFormatter renders a status as a Discord webhook message with
// one embed per repost level.
type DiscordFormatter struct {
	localHost string
	colors    *AccentCache
	logger    *slog.Logger
}

// NewDiscordFormatter creates a Discord formatter. colors may be nil to
// disable the accent-color lookup.
func NewDiscordFormatter(localHost string, colors *AccentCache, logger *slog.Logger) *DiscordFormatter {
	return &DiscordFormatter{
		localHost: localHost,
		colors:    colors,
		logger:    logger,
	}
}

var _ Formatter = (*DiscordFormatter)(nil)

// Format implements Formatter. It flattens the repost chain into ordered
// embeds, outermost status first, and joins each level's permalink into
// the message content.
func (f *DiscordFormatter) Format(ctx context.Context, status *mastodon.Status) (*Message, error) {
	msg := &discordMessage{}
	var links []string
	var delay time.Duration

	// The reblog pointer comes from untrusted upstream data: walk with
	// a visited-id guard and a depth cap rather than following it blindly.
	visited := make(map[string]struct{})
	for level := status; level != nil; level = level.Reblog {
		if _, ok := visited[level.ID]; ok {
			f.logger.Warn("reblog chain cycle detected", "status_id", level.ID)
			break
		}
		visited[level.ID] = struct{}{}
		if len(msg.Embeds) >= maxRepostDepth {
			break
		}

		embed, hasImage := f.buildEmbed(ctx, level)
		msg.Embeds = append(msg.Embeds, embed)
		if link := level.Permalink(); link != "" {
			links = append(links, link)
		}
		if hasImage && f.sameOrigin(level) {
			delay = sameOriginSendDelay
		}
	}

	msg.Content = strings.Join(links, "\n")
	return &Message{Body: msg, Delay: delay}, nil
}

// buildEmbed renders one repost level. The second return reports whether
// an image preview was attached.
func (f *DiscordFormatter) buildEmbed(ctx context.Context, status *mastodon.Status) (discordEmbed, bool) {
	embed := discordEmbed{
		URL: status.Permalink(),
		Author: &discordAuthor{
			Name:    f.authorName(&status.Account),
			URL:     status.Account.URL,
			IconURL: status.Account.Avatar,
		},
		Description: f.description(status),
	}

	hasImage := f.attachImages(status, &embed)

	if f.colors != nil && status.Account.Avatar != "" {
		color, err := f.colors.Lookup(ctx, f.localHost, status.Account.ID, status.Account.Avatar)
		if err != nil {
			f.logger.Debug("accent color lookup failed", "account", status.Account.Acct, "error", err)
		} else {
			embed.Color = color
		}
	}

	return embed, hasImage
}

// description renders the status body. A content warning is shown
// plainly while the body itself is wrapped as Discord spoiler text.
func (f *DiscordFormatter) description(status *mastodon.Status) string {
	body := discordfmt.Render(status.Content)
	if status.SpoilerText == "" {
		return body
	}
	if body == "" {
		return status.SpoilerText
	}
	return status.SpoilerText + "\n||" + body + "||"
}

// attachImages applies the attachment policy: first image as preview only
// when the status is neither spoilered nor sensitive, with a footer
// summarizing whatever is not shown.
func (f *DiscordFormatter) attachImages(status *mastodon.Status, embed *discordEmbed) bool {
	total := len(status.MediaAttachments)
	if total == 0 {
		return false
	}

	var images []mastodon.MediaAttachment
	for _, m := range status.MediaAttachments {
		if m.IsImage() {
			images = append(images, m)
		}
	}
	nonImages := total - len(images)
	suppressed := status.Sensitive || status.SpoilerText != ""

	attached := false
	if len(images) > 0 && !suppressed {
		embed.Image = &discordImage{URL: images[0].URL}
		attached = true
	}

	var footer string
	switch {
	case nonImages > 0:
		footer = fmt.Sprintf("%d %s", total, plural(total, "attachment", "attachments"))
	case len(images) > 0 && suppressed:
		footer = fmt.Sprintf("%d %s", len(images), plural(len(images), "image", "images"))
	case len(images) > 1:
		extra := len(images) - 1
		footer = fmt.Sprintf("+%d more %s", extra, plural(extra, "image", "images"))
	}
	if footer != "" {
		embed.Footer = &discordFooter{Text: footer}
	}

	return attached
}

// authorName sanitizes the display name for use as an embed author. Custom
// emoji shortcodes are stripped and whitespace collapsed; names colliding
// with the platform's own brand fall back to the canonical handle.
func (f *DiscordFormatter) authorName(account *mastodon.Account) string {
	name := shortcodeRe.ReplaceAllString(account.DisplayName, "")
	name = strings.Join(strings.Fields(name), " ")

	if name == "" || strings.EqualFold(name, brandName) {
		name = relay.CanonicalizeAcct(account.Acct, f.localHost)
		username, _, _ := strings.Cut(name, "@")
		if strings.EqualFold(username, brandName) {
			name = fallbackAuthorName
		}
	}
	return name
}

// sameOrigin reports whether the status permalink points at the relay's
// home server.
func (f *DiscordFormatter) sameOrigin(status *mastodon.Status) bool {
	u, err := url.Parse(status.Permalink())
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), f.localHost)
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
