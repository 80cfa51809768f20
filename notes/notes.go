// Package notes keeps the research gathered during a run in an in-memory
// BM25 index so agents can look it up again. Nothing is written to disk;
// the index is discarded when the store is closed.
package notes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/vinayprograms/blogcrew/errors"
)

// DefaultLimit is the number of hits returned when none is requested.
const DefaultLimit = 5

// Note is one piece of research.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source"` // tool or agent that produced it
	URL       string    `json:"url"`
	Task      string    `json:"task"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is a note matched by Search with its relevance score.
type Hit struct {
	Note
	Score float64 `json:"score"`
}

// Store is an in-memory notes index. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	index bleve.Index
	byURL map[string]string
	count int
}

// NewStore creates an empty in-memory store.
func NewStore() (*Store, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, errors.Wrap(err, "creating notes index")
	}
	return &Store{
		index: index,
		byURL: make(map[string]string),
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	noteMapping := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	keyword := bleve.NewKeywordFieldMapping()
	keyword.IncludeInAll = false

	date := bleve.NewDateTimeFieldMapping()
	date.IncludeInAll = false

	noteMapping.AddFieldMappingsAt("title", text)
	noteMapping.AddFieldMappingsAt("content", text)
	noteMapping.AddFieldMappingsAt("source", keyword)
	noteMapping.AddFieldMappingsAt("url", keyword)
	noteMapping.AddFieldMappingsAt("task", keyword)
	noteMapping.AddFieldMappingsAt("created_at", date)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = noteMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Add indexes a note and returns its ID. A note whose URL was already
// recorded is not indexed again; the existing ID is returned.
func (s *Store) Add(ctx context.Context, n Note) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "adding note")
	}
	if strings.TrimSpace(n.Content) == "" && strings.TrimSpace(n.Title) == "" {
		return "", errors.InvalidInput("note has no content")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return "", errors.Internal("notes store is closed")
	}
	if n.URL != "" {
		if id, ok := s.byURL[n.URL]; ok {
			return id, nil
		}
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	if err := s.index.Index(n.ID, n); err != nil {
		return "", errors.Wrap(err, "indexing note")
	}
	if n.URL != "" {
		s.byURL[n.URL] = n.ID
	}
	s.count++
	return n.ID, nil
}

// Search returns up to limit notes matching q, best first. An empty q
// returns the most recent notes.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "searching notes")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index == nil {
		return nil, errors.Internal("notes store is closed")
	}

	var bq query.Query
	if strings.TrimSpace(q) == "" {
		bq = bleve.NewMatchAllQuery()
	} else {
		bq = bleve.NewMatchQuery(q)
	}

	req := bleve.NewSearchRequest(bq)
	req.Size = limit
	req.Fields = []string{"*"}
	if strings.TrimSpace(q) == "" {
		req.SortBy([]string{"-created_at"})
	}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "searching notes")
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		note := Note{ID: h.ID}
		note.Title, _ = h.Fields["title"].(string)
		note.Content, _ = h.Fields["content"].(string)
		note.Source, _ = h.Fields["source"].(string)
		note.URL, _ = h.Fields["url"].(string)
		note.Task, _ = h.Fields["task"].(string)
		if ts, ok := h.Fields["created_at"].(string); ok {
			note.CreatedAt, _ = time.Parse(time.RFC3339, ts)
		}
		hits = append(hits, Hit{Note: note, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of notes indexed.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Close releases the index. Further calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}
