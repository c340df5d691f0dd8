package mastodon

// Account is a Mastodon account as returned by the API.
type Account struct {
	ID          string `json:"id"`
	Acct        string `json:"acct"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	URL         string `json:"url"`
	Locked      bool   `json:"locked"`
}

// MediaAttachment is a single piece of media attached to a status.
type MediaAttachment struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // image, video, gifv, audio, unknown
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url"`
	Description string `json:"description"`
}

// IsImage reports whether the attachment can be rendered as an inline image.
func (m *MediaAttachment) IsImage() bool {
	return m.Type == "image"
}

// Mention is a reference to another account within a status.
type Mention struct {
	ID       string `json:"id"`
	Acct     string `json:"acct"`
	Username string `json:"username"`
	URL      string `json:"url"`
}

// Visibility values as used by the Mastodon API.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
	VisibilityDirect   = "direct"
)

// Status is an immutable snapshot of one post. Reblog points at the wrapped
// status when this status is a repost; the chain is expected to be acyclic
// but consumers must not rely on that when following it.
type Status struct {
	ID                 string            `json:"id"`
	URI                string            `json:"uri"`
	URL                string            `json:"url"`
	Account            Account           `json:"account"`
	Content            string            `json:"content"`
	SpoilerText        string            `json:"spoiler_text"`
	Sensitive          bool              `json:"sensitive"`
	Visibility         string            `json:"visibility"`
	CreatedAt          string            `json:"created_at"`
	InReplyToID        string            `json:"in_reply_to_id"`
	InReplyToAccountID string            `json:"in_reply_to_account_id"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`
	Mentions           []Mention         `json:"mentions"`
	Reblog             *Status           `json:"reblog"`
}

// MentionsAccount reports whether the status mentions the given account id.
func (s *Status) MentionsAccount(id string) bool {
	for _, m := range s.Mentions {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Permalink returns the best public link for the status, preferring the
// HTML URL over the ActivityPub URI.
func (s *Status) Permalink() string {
	if s.URL != "" {
		return s.URL
	}
	return s.URI
}
