package tools

import (
	"context"
	"fmt"

	"github.com/vinayprograms/blogcrew/logging"
	"github.com/vinayprograms/blogcrew/notes"
	"github.com/vinayprograms/blogcrew/search"
)

// webSearchTool implements the web_search tool.
type webSearchTool struct {
	provider     search.Provider
	defaultCount int
	notes        NotesStore
	logger       *logging.Logger
}

func (t *webSearchTool) Name() string { return "web_search" }

func (t *webSearchTool) External() bool { return true }

func (t *webSearchTool) Description() string {
	return "Search the web for current information. Returns titles, URLs and short snippets. Run several focused queries rather than one broad one."
}

func (t *webSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query",
			},
			"count": map[string]interface{}{
				"type":        "integer",
				"description": fmt.Sprintf("Number of results (1-%d, default %d)", search.MaxCount, t.defaultCount),
			},
		},
		"required": []string{"query"},
	}
}

func (t *webSearchTool) Execute(ctx context.Context, args Args) (interface{}, error) {
	query, err := args.String("query")
	if err != nil {
		return nil, err
	}
	count := search.ClampCount(args.IntOr("count", t.defaultCount))

	results, err := t.provider.Search(ctx, query, count)
	if err != nil {
		return nil, err
	}

	if t.notes != nil {
		task := TaskFrom(ctx)
		for _, res := range results {
			// A lost note only weakens search_notes; the results still stand.
			_, err := t.notes.Add(ctx, notes.Note{
				Title:   res.Title,
				Content: res.Snippet,
				URL:     res.URL,
				Source:  t.Name() + ":" + query,
				Task:    task,
			})
			if err != nil {
				t.logger.Warn("note_dropped", logging.Fields{
					"tool":  t.Name(),
					"url":   res.URL,
					"error": err.Error(),
				})
			}
		}
	}

	if len(results) == 0 {
		return fmt.Sprintf("No results for %q.", query), nil
	}
	return results, nil
}

// searchNotesTool implements the search_notes tool.
type searchNotesTool struct {
	store NotesStore
}

func (t *searchNotesTool) Name() string { return "search_notes" }

func (t *searchNotesTool) External() bool { return true }

func (t *searchNotesTool) Description() string {
	return "Search the research notes gathered so far in this run. Use it to recall sources and facts found by earlier searches instead of searching the web again."
}

func (t *searchNotesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to look for; empty returns the most recent notes",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum notes to return (default 5)",
			},
		},
	}
}

// noteResult is the model-facing view of a note.
type noteResult struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content"`
}

func (t *searchNotesTool) Execute(ctx context.Context, args Args) (interface{}, error) {
	query := args.StringOr("query", "")
	limit := args.IntOr("limit", notes.DefaultLimit)
	if limit > 20 {
		limit = 20
	}

	hits, err := t.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return "No matching notes.", nil
	}

	out := make([]noteResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, noteResult{Title: h.Title, URL: h.URL, Content: h.Content})
	}
	return out, nil
}
