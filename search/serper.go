package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vinayprograms/blogcrew/errors"
)

// SerperEndpoint is the Google search endpoint of serper.dev.
const SerperEndpoint = "https://google.serper.dev/search"

// Serper searches Google through the serper.dev API.
type Serper struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewSerper creates a Serper client.
func NewSerper(apiKey string) *Serper {
	return &Serper{
		apiKey:   apiKey,
		endpoint: SerperEndpoint,
		client:   defaultClient(),
	}
}

// WithEndpoint points the client at another URL.
func (s *Serper) WithEndpoint(endpoint string) *Serper {
	s.endpoint = endpoint
	return s
}

// WithHTTPClient replaces the HTTP client.
func (s *Serper) WithHTTPClient(c *http.Client) *Serper {
	s.client = c
	return s
}

// Name implements Provider.
func (s *Serper) Name() string { return "serper" }

// Search implements Provider.
func (s *Serper) Search(ctx context.Context, query string, count int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.InvalidInput("search query is empty")
	}
	count = ClampCount(count)

	payload, err := json.Marshal(map[string]interface{}{"q": query, "num": count})
	if err != nil {
		return nil, errors.Wrap(err, "encoding serper request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "building serper request")
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transportError("serper", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("serper", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("serper", err)
	}

	return parseSerper(body, count)
}

// parseSerper reads organic results, falling back to the answer box when
// there are none.
func parseSerper(body []byte, count int) ([]Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.Unavailable("serper returned malformed JSON")
	}

	results := make([]Result, 0, count)
	gjson.GetBytes(body, "organic").ForEach(func(_, item gjson.Result) bool {
		link := item.Get("link").String()
		if link == "" {
			return true
		}
		results = append(results, Result{
			Title:   item.Get("title").String(),
			URL:     link,
			Snippet: item.Get("snippet").String(),
		})
		return len(results) < count
	})

	if len(results) == 0 {
		if box := gjson.GetBytes(body, "answerBox"); box.Exists() {
			snippet := box.Get("answer").String()
			if snippet == "" {
				snippet = box.Get("snippet").String()
			}
			if snippet != "" {
				results = append(results, Result{
					Title:   box.Get("title").String(),
					URL:     box.Get("link").String(),
					Snippet: snippet,
				})
			}
		}
	}

	return results, nil
}
