// Package discordfmt converts the rich-text HTML of a status into the
// lightweight markup Discord renders in embed descriptions.
package discordfmt

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var collapseNewlines = regexp.MustCompile(`\n{3,}`)

// Render converts status HTML to Discord markdown. Unparseable input
// falls back to the raw text with tags stripped naively, never an error:
// a status body must always render to something.
func Render(content string) string {
	if content == "" {
		return ""
	}

	nodes, err := html.ParseFragment(strings.NewReader(content), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return strings.TrimSpace(stripTags(content))
	}

	var b strings.Builder
	for _, n := range nodes {
		renderNode(&b, n)
	}

	out := collapseNewlines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out)
}

func renderNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		// fall through
	default:
		renderChildren(b, n)
		return
	}

	switch n.DataAtom {
	case atom.Br:
		b.WriteByte('\n')
	case atom.P:
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		renderChildren(b, n)
	case atom.A:
		renderAnchor(b, n)
	case atom.B, atom.Strong:
		wrap(b, n, "**")
	case atom.I, atom.Em:
		wrap(b, n, "*")
	case atom.Del, atom.S:
		wrap(b, n, "~~")
	case atom.U:
		wrap(b, n, "__")
	case atom.Code:
		wrap(b, n, "`")
	case atom.Pre:
		b.WriteString("```\n")
		b.WriteString(textContent(n))
		b.WriteString("\n```")
	case atom.Blockquote:
		var inner strings.Builder
		renderChildren(&inner, n)
		for _, line := range strings.Split(strings.TrimSpace(inner.String()), "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	case atom.Li:
		b.WriteString("\n- ")
		renderChildren(b, n)
	case atom.Span:
		// Mastodon marks scheme and tail portions of shortened links
		// with class="invisible"; they are not part of the visible text.
		if hasClass(n, "invisible") {
			return
		}
		renderChildren(b, n)
	default:
		renderChildren(b, n)
	}
}

// renderAnchor writes a markdown link, or just the bare target when the
// visible text already is the link (Mastodon's shortened external links
// and its hashtag/mention anchors).
func renderAnchor(b *strings.Builder, n *html.Node) {
	href := attr(n, "href")

	var text strings.Builder
	renderChildren(&text, n)
	label := strings.TrimSpace(text.String())

	if href == "" {
		b.WriteString(label)
		return
	}
	// Hashtags and mentions keep their visible text; Discord would
	// otherwise render a wall of tracking-looking links.
	if strings.HasPrefix(label, "#") || strings.HasPrefix(label, "@") {
		b.WriteString(label)
		return
	}
	if label == "" || label == href || strings.HasPrefix(href, "https://"+label) || strings.HasPrefix(href, "http://"+label) {
		b.WriteString(href)
		return
	}
	b.WriteString("[")
	b.WriteString(label)
	b.WriteString("](")
	b.WriteString(href)
	b.WriteString(")")
}

func renderChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c)
	}
}

func wrap(b *strings.Builder, n *html.Node, marker string) {
	var inner strings.Builder
	renderChildren(&inner, n)
	text := inner.String()
	if strings.TrimSpace(text) == "" {
		b.WriteString(text)
		return
	}
	b.WriteString(marker)
	b.WriteString(text)
	b.WriteString(marker)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}
