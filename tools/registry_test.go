package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/logging"
	"github.com/vinayprograms/blogcrew/notes"
	"github.com/vinayprograms/blogcrew/search"
)

type fakeSearch struct {
	results []search.Result
	err     error
	queries []string
	counts  []int
}

func (f *fakeSearch) Name() string { return "fake" }

func (f *fakeSearch) Search(ctx context.Context, query string, count int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	f.counts = append(f.counts, count)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > count {
		return f.results[:count], nil
	}
	return f.results, nil
}

type echoTool struct{}

func (echoTool) Name() string                       { return "echo" }
func (echoTool) Description() string                { return "Echo the text argument" }
func (echoTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (echoTool) Execute(ctx context.Context, args Args) (interface{}, error) {
	return args.String("text")
}

func newStore(t *testing.T) *notes.Store {
	t.Helper()
	s, err := notes.NewStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var goResults = []search.Result{
	{Title: "Generics", URL: "https://go.dev/generics", Snippet: "Type parameters in Go."},
	{Title: "Scheduler", URL: "https://go.dev/sched", Snippet: "Goroutines on threads."},
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{})

	if !reg.Has("echo") || reg.Get("echo") == nil {
		t.Fatal("expected echo to be registered")
	}
	if reg.Has("nonexistent") || reg.Get("nonexistent") != nil {
		t.Error("unexpected tool found")
	}

	var nilReg *Registry
	if nilReg.Has("echo") || nilReg.Names() != nil || nilReg.Definitions() != nil {
		t.Error("nil registry should be empty")
	}
}

func TestRegistry_NamesAndDefinitions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{})
	reg.SetSearch(&fakeSearch{}, 5)
	reg.SetNotes(newStore(t))

	names := reg.Names()
	want := []string{"echo", "search_notes", "web_search"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", names, want)
	}

	defs := reg.Definitions("web_search", "missing", "echo")
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "echo" || defs[1].Name != "web_search" {
		t.Errorf("definitions should be sorted, got %s, %s", defs[0].Name, defs[1].Name)
	}
	for _, d := range defs {
		if d.Description == "" || d.Parameters == nil {
			t.Errorf("%s: incomplete definition", d.Name)
		}
	}

	if len(reg.Definitions()) != 3 {
		t.Error("no filter should return every tool")
	}
}

func TestRegistry_Execute(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool{})

	out, err := reg.Execute(context.Background(), "echo", map[string]interface{}{"text": "hi"})
	if err != nil || out != "hi" {
		t.Errorf("Execute = %q, %v", out, err)
	}

	_, err = reg.Execute(context.Background(), "echo", map[string]interface{}{})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("missing arg should be INVALID_INPUT, got %v", err)
	}

	_, err = reg.Execute(context.Background(), "nope", nil)
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown tool should be INVALID_INPUT, got %v", err)
	}
}

func TestWebSearch_EncodesResults(t *testing.T) {
	fake := &fakeSearch{results: goResults}
	reg := NewRegistry()
	reg.SetSearch(fake, 3)

	out, err := reg.Execute(context.Background(), "web_search", map[string]interface{}{"query": "go"})
	if err != nil {
		t.Fatal(err)
	}

	var got []search.Result
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("result should be JSON: %v", err)
	}
	if len(got) != 2 || got[0].URL != "https://go.dev/generics" {
		t.Errorf("unexpected results %+v", got)
	}
	if fake.counts[0] != 3 {
		t.Errorf("default count not applied: %d", fake.counts[0])
	}
}

func TestWebSearch_CountArgument(t *testing.T) {
	fake := &fakeSearch{results: goResults}
	reg := NewRegistry()
	reg.SetSearch(fake, 5)

	reg.Execute(context.Background(), "web_search", map[string]interface{}{"query": "go", "count": float64(1)})
	reg.Execute(context.Background(), "web_search", map[string]interface{}{"query": "go", "count": float64(99)})

	if fake.counts[0] != 1 || fake.counts[1] != search.MaxCount {
		t.Errorf("counts = %v", fake.counts)
	}
}

func TestWebSearch_RecordsNotes(t *testing.T) {
	store := newStore(t)
	reg := NewRegistry()
	// Order must not matter: notes attached after search.
	reg.SetSearch(&fakeSearch{results: goResults}, 5)
	reg.SetNotes(store)

	ctx := WithTask(context.Background(), "research")
	if _, err := reg.Execute(ctx, "web_search", map[string]interface{}{"query": "go"}); err != nil {
		t.Fatal(err)
	}
	if store.Count() != 2 {
		t.Fatalf("expected 2 notes, got %d", store.Count())
	}

	hits, _ := store.Search(context.Background(), "goroutines", 1)
	if len(hits) != 1 || hits[0].Task != "research" || hits[0].Source != "web_search:go" {
		t.Errorf("unexpected note %+v", hits)
	}
}

type brokenNotes struct{}

func (brokenNotes) Add(ctx context.Context, n notes.Note) (string, error) {
	return "", errors.Internal("index closed")
}

func (brokenNotes) Search(ctx context.Context, q string, limit int) ([]notes.Hit, error) {
	return nil, nil
}

func TestWebSearch_LogsDroppedNotes(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(&buf)

	reg := NewRegistry()
	reg.SetSearch(&fakeSearch{results: goResults}, 5)
	reg.SetNotes(brokenNotes{})
	reg.SetLogger(logger)

	out, err := reg.Execute(context.Background(), "web_search", map[string]interface{}{"query": "go"})
	if err != nil {
		t.Fatalf("search should survive note failures: %v", err)
	}
	if !strings.Contains(out, "https://go.dev/generics") {
		t.Errorf("results missing: %s", out)
	}

	logs := buf.String()
	if strings.Count(logs, "note_dropped") != 2 {
		t.Errorf("expected one warning per result, got: %s", logs)
	}
	if !strings.Contains(logs, "WARN") || !strings.Contains(logs, "index closed") {
		t.Errorf("unexpected log output: %s", logs)
	}
}

func TestWebSearch_NoResults(t *testing.T) {
	reg := NewRegistry()
	reg.SetSearch(&fakeSearch{}, 5)

	out, err := reg.Execute(context.Background(), "web_search", map[string]interface{}{"query": "zzz"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No results") {
		t.Errorf("out = %q", out)
	}
}

func TestWebSearch_ErrorPassesThrough(t *testing.T) {
	reg := NewRegistry()
	reg.SetSearch(&fakeSearch{err: errors.RateLimited("429")}, 5)

	_, err := reg.Execute(context.Background(), "web_search", map[string]interface{}{"query": "go"})
	if !errors.Is(err, errors.ErrCodeRateLimit) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
}

func TestSearchNotes(t *testing.T) {
	store := newStore(t)
	store.Add(context.Background(), notes.Note{Title: "Ownership", Content: "Rust borrow checker", URL: "https://rust-lang.org"})

	reg := NewRegistry()
	reg.SetNotes(store)

	out, err := reg.Execute(context.Background(), "search_notes", map[string]interface{}{"query": "borrow"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "https://rust-lang.org") {
		t.Errorf("out = %s", out)
	}

	out, _ = reg.Execute(context.Background(), "search_notes", map[string]interface{}{"query": "kubernetes"})
	if out != "No matching notes." {
		t.Errorf("out = %q", out)
	}
}

func TestTaskFrom(t *testing.T) {
	if TaskFrom(context.Background()) != "" {
		t.Error("expected empty task")
	}
	if TaskFrom(WithTask(context.Background(), "write")) != "write" {
		t.Error("task not carried")
	}
}

func TestRegistry_IsExternal(t *testing.T) {
	store, err := notes.NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	r := NewRegistry()
	r.SetNotes(store)
	r.SetSearch(&fakeSearch{}, 5)
	r.Register(echoTool{})

	for name, want := range map[string]bool{
		"web_search":   true,
		"search_notes": true,
		"echo":         false,
		"missing":      false,
	} {
		if got := r.IsExternal(name); got != want {
			t.Errorf("IsExternal(%q) = %v, want %v", name, got, want)
		}
	}
}
