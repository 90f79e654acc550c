// Package fetch retrieves short plain-text excerpts of web pages so url
// feedback can be analyzed with the page content alongside the link.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	defaultTimeout  = 10 * time.Second
	maxBodyBytes    = 5 << 20
	maxExcerptRunes = 4000
	maxDepth        = 64
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// Fetcher downloads pages over HTTP.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

func New() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  "Mozilla/5.0 (compatible; apex/1.0)",
	}
}

// Excerpt returns the page title, meta description and visible text of url,
// truncated to maxExcerptRunes.
func (f *Fetcher) Excerpt(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("unsupported URL %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		b, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", url, err)
		}
		return truncate(collapse(string(b))), nil
	}

	doc, err := html.Parse(body)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", url, err)
	}
	return truncate(ExtractText(doc)), nil
}

// ExtractText renders the readable parts of an HTML document.
func ExtractText(doc *html.Node) string {
	var title, description string
	var text strings.Builder

	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		if depth > maxDepth {
			return
		}
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				text.WriteString(s)
				text.WriteByte(' ')
			}
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg", "template":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "meta":
				name := strings.ToLower(attr(n, "name"))
				if name == "" {
					name = strings.ToLower(attr(n, "property"))
				}
				if (name == "description" || name == "og:description") && description == "" {
					description = strings.TrimSpace(attr(n, "content"))
				}
				return
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				text.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth+1)
		}
	}
	walk(doc, 0)

	var sb strings.Builder
	if title != "" {
		sb.WriteString("Title: " + title + "\n")
	}
	if description != "" {
		sb.WriteString("Description: " + description + "\n")
	}
	if body := collapse(text.String()); body != "" {
		sb.WriteString(body)
	}
	return strings.TrimSpace(sb.String())
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(multiSpace.ReplaceAllString(l, " "))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxExcerptRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxExcerptRunes])
}
