package search

import (
	"context"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/vinayprograms/blogcrew/errors"
)

// DuckDuckGoEndpoint is the HTML lite search page.
const DuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

var (
	ddgLinkRe    = regexp.MustCompile(`<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.*?)</a>`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
)

// DuckDuckGo scrapes DuckDuckGo's HTML lite endpoint. No key is needed.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo client.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		endpoint: DuckDuckGoEndpoint,
		client:   defaultClient(),
	}
}

// WithEndpoint points the client at another URL.
func (d *DuckDuckGo) WithEndpoint(endpoint string) *DuckDuckGo {
	d.endpoint = endpoint
	return d
}

// Name implements Provider.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements Provider.
func (d *DuckDuckGo) Search(ctx context.Context, query string, count int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.InvalidInput("search query is empty")
	}
	count = ClampCount(count)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "building duckduckgo request")
	}
	// Mimic a simple text browser
	req.Header.Set("User-Agent", "Lynx/2.8.9rel.1 libwww-FM/2.14")
	req.Header.Set("Accept", "text/html")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, transportError("duckduckgo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("duckduckgo", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("duckduckgo", err)
	}

	return parseDuckDuckGoHTML(string(body), count), nil
}

// parseDuckDuckGoHTML pairs result links with their snippets by position.
func parseDuckDuckGoHTML(page string, count int) []Result {
	links := ddgLinkRe.FindAllStringSubmatch(page, -1)
	snippets := ddgSnippetRe.FindAllStringSubmatch(page, -1)

	var results []Result
	for i := 0; i < len(links) && len(results) < count; i++ {
		target := unwrapRedirect(html.UnescapeString(links[i][1]))
		if !strings.HasPrefix(target, "http") {
			continue
		}

		snippet := ""
		if i < len(snippets) {
			snippet = cleanText(snippets[i][1])
		}

		results = append(results, Result{
			Title:   cleanText(links[i][2]),
			URL:     target,
			Snippet: snippet,
		})
	}
	return results
}

// unwrapRedirect extracts the target from DuckDuckGo's /l/?uddg= links.
func unwrapRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(s, "")))
}
