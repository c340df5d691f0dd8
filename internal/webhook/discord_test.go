package webhook

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/fedi-relay/internal/mastodon"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFormatter() *DiscordFormatter {
	return NewDiscordFormatter("home.example", nil, testLogger())
}

func makeStatus(id, acct string) *mastodon.Status {
	return &mastodon.Status{
		ID:         id,
		URL:        "https://remote.example/@" + acct + "/" + id,
		Visibility: mastodon.VisibilityPublic,
		Content:    "<p>status " + id + "</p>",
		Account: mastodon.Account{
			ID:          "a-" + id,
			Acct:        acct,
			DisplayName: "Author of " + id,
			Avatar:      "https://remote.example/avatar.png",
			URL:         "https://remote.example/@" + acct,
		},
	}
}

func mustFormat(t *testing.T, f *DiscordFormatter, s *mastodon.Status) (*discordMessage, time.Duration) {
	t.Helper()
	msg, err := f.Format(context.Background(), s)
	require.NoError(t, err)
	body, ok := msg.Body.(*discordMessage)
	require.True(t, ok)
	return body, msg.Delay
}

func TestFormatRepostChain(t *testing.T) {
	inner := makeStatus("1", "origin")
	middle := makeStatus("2", "booster1")
	middle.Reblog = inner
	outer := makeStatus("3", "booster2")
	outer.Reblog = middle

	body, _ := mustFormat(t, newTestFormatter(), outer)

	require.Len(t, body.Embeds, 3, "one embed per repost level")
	assert.Equal(t, "Author of 3", body.Embeds[0].Author.Name, "outermost status first")
	assert.Equal(t, "Author of 2", body.Embeds[1].Author.Name)
	assert.Equal(t, "Author of 1", body.Embeds[2].Author.Name)

	assert.Contains(t, body.Content, outer.URL)
	assert.Contains(t, body.Content, middle.URL)
	assert.Contains(t, body.Content, inner.URL)
}

func TestFormatReblogCycleTerminates(t *testing.T) {
	a := makeStatus("1", "alice")
	b := makeStatus("2", "bob")
	a.Reblog = b
	b.Reblog = a

	body, _ := mustFormat(t, newTestFormatter(), a)
	assert.Len(t, body.Embeds, 2, "cycle must stop at the first revisited id")
}

func TestFormatSelfReferentialReblogTerminates(t *testing.T) {
	s := makeStatus("1", "alice")
	s.Reblog = s

	body, _ := mustFormat(t, newTestFormatter(), s)
	assert.Len(t, body.Embeds, 1)
}

func TestFormatSpoilerRedaction(t *testing.T) {
	s := makeStatus("1", "alice")
	s.SpoilerText = "lottery results"
	s.Content = "<p>the numbers are 4 8 15 16</p>"

	body, _ := mustFormat(t, newTestFormatter(), s)
	desc := body.Embeds[0].Description
	assert.Contains(t, desc, "lottery results\n||")
	assert.Contains(t, desc, "the numbers are 4 8 15 16")
	assert.Equal(t, byte('|'), desc[len(desc)-1])
}

func TestAttachmentPolicy(t *testing.T) {
	image := func(url string) mastodon.MediaAttachment {
		return mastodon.MediaAttachment{Type: "image", URL: url}
	}
	video := mastodon.MediaAttachment{Type: "video", URL: "https://m.example/v.mp4"}

	tests := []struct {
		name        string
		attachments []mastodon.MediaAttachment
		sensitive   bool
		spoiler     string
		wantImage   string
		wantFooter  string
	}{
		{
			name:        "one non-image attachment",
			attachments: []mastodon.MediaAttachment{video},
			wantFooter:  "1 attachment",
		},
		{
			name:        "two non-image attachments",
			attachments: []mastodon.MediaAttachment{video, video},
			wantFooter:  "2 attachments",
		},
		{
			name:        "mixed attachments show total count",
			attachments: []mastodon.MediaAttachment{image("https://m.example/1.png"), video},
			wantImage:   "https://m.example/1.png",
			wantFooter:  "2 attachments",
		},
		{
			name:        "one sensitive image suppressed",
			attachments: []mastodon.MediaAttachment{image("https://m.example/1.png")},
			sensitive:   true,
			wantFooter:  "1 image",
		},
		{
			name: "spoilered images suppressed",
			attachments: []mastodon.MediaAttachment{
				image("https://m.example/1.png"), image("https://m.example/2.png"),
			},
			spoiler:    "cw",
			wantFooter: "2 images",
		},
		{
			name: "extra images beyond the preview",
			attachments: []mastodon.MediaAttachment{
				image("https://m.example/1.png"), image("https://m.example/2.png"), image("https://m.example/3.png"),
			},
			wantImage:  "https://m.example/1.png",
			wantFooter: "+2 more images",
		},
		{
			name:        "single image no footer",
			attachments: []mastodon.MediaAttachment{image("https://m.example/1.png")},
			wantImage:   "https://m.example/1.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := makeStatus("1", "alice")
			s.MediaAttachments = tt.attachments
			s.Sensitive = tt.sensitive
			s.SpoilerText = tt.spoiler

			body, _ := mustFormat(t, newTestFormatter(), s)
			embed := body.Embeds[0]

			if tt.wantImage == "" {
				assert.Nil(t, embed.Image)
			} else {
				require.NotNil(t, embed.Image)
				assert.Equal(t, tt.wantImage, embed.Image.URL)
			}
			if tt.wantFooter == "" {
				assert.Nil(t, embed.Footer)
			} else {
				require.NotNil(t, embed.Footer)
				assert.Equal(t, tt.wantFooter, embed.Footer.Text)
			}
		})
	}
}

func TestAuthorNameSanitization(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		acct        string
		want        string
	}{
		{"emoji shortcodes stripped", ":blobcat: Alice :wave:", "alice", "Alice"},
		{"whitespace collapsed", "Bob   the\t Builder", "bob", "Bob the Builder"},
		{"empty falls back to handle", ":only_emoji:", "carol", "carol@home.example"},
		{"brand collision falls back to handle", "Discord", "dave@remote.example", "dave@remote.example"},
		{"plain name unchanged", "Eve", "eve", "Eve"},
	}

	f := newTestFormatter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &mastodon.Account{DisplayName: tt.displayName, Acct: tt.acct}
			assert.Equal(t, tt.want, f.authorName(account))
		})
	}
}

func TestAuthorNameDoubleCollision(t *testing.T) {
	// A handle that itself collides with the brand gets the placeholder.
	f := newTestFormatter()
	account := &mastodon.Account{DisplayName: "Discord", Acct: "discord@remote.example"}
	assert.Equal(t, fallbackAuthorName, f.authorName(account))
}

func TestSameOriginImageDelaysSend(t *testing.T) {
	f := newTestFormatter()

	local := makeStatus("1", "alice")
	local.URL = "https://home.example/@alice/1"
	local.MediaAttachments = []mastodon.MediaAttachment{{Type: "image", URL: "https://home.example/media/1.png"}}

	_, delay := mustFormat(t, f, local)
	assert.Equal(t, sameOriginSendDelay, delay)

	remote := makeStatus("2", "bob@remote.example")
	remote.MediaAttachments = []mastodon.MediaAttachment{{Type: "image", URL: "https://remote.example/media/2.png"}}

	_, delay = mustFormat(t, f, remote)
	assert.Zero(t, delay, "remote-origin images do not race the link preview")

	suppressed := makeStatus("3", "alice")
	suppressed.URL = "https://home.example/@alice/3"
	suppressed.Sensitive = true
	suppressed.MediaAttachments = []mastodon.MediaAttachment{{Type: "image", URL: "https://home.example/media/3.png"}}

	_, delay = mustFormat(t, f, suppressed)
	assert.Zero(t, delay, "no preview attached means nothing to race")
}
