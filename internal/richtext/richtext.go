// Package richtext converts and cleans contract body content. Bodies are
// stored as sanitized HTML; generated text arrives as markdown.
package richtext

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy

	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
)

// Policy returns the shared sanitizer policy. It allows the formatting a
// rich-text editor produces and strips scripts, styles and event handlers.
// Images must be inline data URLs; any other src is blanked so rendering a
// body never fetches a remote resource.
func Policy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowElements("u", "s", "mark", "hr", "br")
		p.AllowAttrs("class").Matching(regexp.MustCompile(`^(ql|clause|align)-[a-z0-9-]+$`)).Globally()
		p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("td", "th")
		p.RequireNoFollowOnLinks(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
		p.AllowDataURIImages()
		p.RewriteSrc(func(u *url.URL) {
			if u.Scheme != "data" {
				*u = url.URL{}
			}
		})
		policy = p
	})
	return policy
}

// Sanitize strips anything not allowed by Policy.
func Sanitize(s string) string {
	return strings.TrimSpace(Policy().Sanitize(s))
}

// MarkdownToHTML renders markdown with GitHub extensions and sanitizes it.
func MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return Sanitize(buf.String()), nil
}

// LooksLikeHTML reports whether s appears to already be HTML markup.
func LooksLikeHTML(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "<") && strings.Contains(t, ">")
}

// Normalize turns user input into stored body HTML: markup is sanitized,
// anything else is treated as markdown.
func Normalize(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	if LooksLikeHTML(s) {
		return Sanitize(s), nil
	}
	return MarkdownToHTML(s)
}
