package blog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/blogcrew/config"
	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/llm"
	"github.com/vinayprograms/blogcrew/notes"
	"github.com/vinayprograms/blogcrew/search"
)

type fakeSearch struct {
	queries []string
}

func (f *fakeSearch) Name() string { return "fake" }

func (f *fakeSearch) Search(ctx context.Context, query string, count int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	return []search.Result{
		{Title: "Go 1.24 released", URL: "https://go.dev/blog/go1.24", Snippet: "Generic type aliases land."},
		{Title: "Swiss tables in Go", URL: "https://go.dev/blog/swisstable", Snippet: "Faster maps."},
	}, nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func testConfig(crewEnabled bool) *config.Config {
	cfg := config.Default()
	cfg.Crew.Enabled = crewEnabled
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.Delay = config.Duration(5 * time.Second)
	return cfg
}

func TestRun_EmptyTopic(t *testing.T) {
	completion := llm.NewMockProvider()
	p, err := New(testConfig(false), Deps{Completion: completion})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, topic := range []string{"", "   \t"} {
		_, err := p.Run(context.Background(), topic)
		if !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("Run(%q) = %v, want INVALID_INPUT", topic, err)
		}
	}
	if completion.CallCount() != 0 {
		t.Error("completion called for an empty topic")
	}
}

func TestRun_WithoutCrew(t *testing.T) {
	completion := llm.NewMockProvider()
	completion.SetResponse("# Go in 2026\n\nBody.")

	p, err := New(testConfig(false), Deps{Completion: completion})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	post, err := p.Run(context.Background(), "  Go in 2026 ")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if post.Topic != "Go in 2026" || post.Draft != "" || post.Attempts != 1 {
		t.Errorf("post = %+v", post)
	}
	if post.Body != "# Go in 2026\n\nBody." {
		t.Errorf("Body = %q", post.Body)
	}
	if post.RunID == "" {
		t.Error("RunID should be set")
	}

	req := completion.LastRequest()
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "Write a complete") {
		t.Errorf("user prompt = %q", req.Messages[1].Content)
	}
}

func TestRun_WithCrew(t *testing.T) {
	researcher := llm.NewMockProvider()
	researcher.SetToolCall("web_search", map[string]interface{}{"query": "go 1.24"})
	researcher.SetResponse("- Go 1.24 adds generic type aliases (https://go.dev/blog/go1.24)")

	writer := llm.NewMockProvider()
	writer.SetResponse("# Draft\n\nGo 1.24 is out.")

	completion := llm.NewMockProvider()
	completion.QueueError(errors.RateLimited("429 slow down"))
	completion.QueueResponse(&llm.ChatResponse{Content: "# Final\n\nGo 1.24 is out."})

	store, err := notes.NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	web := &fakeSearch{}
	sleeper := &sleepRecorder{}
	p, err := New(testConfig(true), Deps{
		Researcher: researcher,
		Writer:     writer,
		Completion: completion,
		Search:     web,
		Notes:      store,
	}, WithSleeper(sleeper.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	post, err := p.Run(context.Background(), "Go 1.24")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if post.Draft != "# Draft\n\nGo 1.24 is out." {
		t.Errorf("Draft = %q", post.Draft)
	}
	if post.Body != "# Final\n\nGo 1.24 is out." {
		t.Errorf("Body = %q", post.Body)
	}
	if post.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", post.Attempts)
	}
	if len(sleeper.waits) != 1 || sleeper.waits[0] != 5*time.Second {
		t.Errorf("waits = %v", sleeper.waits)
	}

	if len(web.queries) != 1 || web.queries[0] != "go 1.24" {
		t.Errorf("search queries = %v", web.queries)
	}
	if store.Count() != 2 {
		t.Errorf("notes recorded = %d, want 2", store.Count())
	}

	researchReq := researcher.Requests()[0]
	var offered []string
	for _, d := range researchReq.Tools {
		offered = append(offered, d.Name)
	}
	if strings.Join(offered, ",") != "search_notes,web_search" {
		t.Errorf("researcher tools = %v", offered)
	}
	if got := writer.LastRequest(); len(got.Tools) != 1 || got.Tools[0].Name != "search_notes" {
		t.Errorf("writer tools = %+v", got.Tools)
	}
	if !strings.Contains(writer.LastRequest().Messages[1].Content, "generic type aliases") {
		t.Error("writer did not receive research as context")
	}

	final := completion.LastRequest().Messages
	if !strings.Contains(final[len(final)-1].Content, "# Draft") {
		t.Errorf("completion prompt missing draft: %q", final[len(final)-1].Content)
	}
}

func TestRun_CrewWithoutNotes(t *testing.T) {
	researcher := llm.NewMockProvider()
	researcher.SetResponse("findings")
	writer := llm.NewMockProvider()
	writer.SetResponse("draft")
	completion := llm.NewMockProvider()
	completion.SetResponse("post")

	p, err := New(testConfig(true), Deps{
		Researcher: researcher,
		Writer:     writer,
		Completion: completion,
		Search:     &fakeSearch{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Run(context.Background(), "topic"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tools := researcher.LastRequest().Tools; len(tools) != 1 || tools[0].Name != "web_search" {
		t.Errorf("researcher tools = %+v", tools)
	}
	if tools := writer.LastRequest().Tools; len(tools) != 0 {
		t.Errorf("writer tools = %+v", tools)
	}
}

func TestRun_CrewFailureSkipsCompletion(t *testing.T) {
	researcher := llm.NewMockProvider()
	researcher.SetError(errors.Unauthorized("invalid api key"))
	completion := llm.NewMockProvider()

	p, err := New(testConfig(true), Deps{
		Researcher: researcher,
		Writer:     llm.NewMockProvider(),
		Completion: completion,
		Search:     &fakeSearch{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	post, err := p.Run(context.Background(), "topic")
	if !errors.Is(err, errors.ErrCodeTaskFailed) {
		t.Fatalf("err = %v, want TASK_FAILED", err)
	}
	if !errors.Is(errors.Cause(err), errors.ErrCodeUnauthorized) {
		t.Errorf("cause = %v", errors.Cause(err))
	}
	if completion.CallCount() != 0 || post.Attempts != 0 {
		t.Error("completion ran after the crew failed")
	}
}

func TestRun_CrewRetryCalls(t *testing.T) {
	tests := []struct {
		name         string
		retryCalls   bool
		wantErr      bool
		wantAttempts int
	}{
		{"retried when enabled", true, false, 2},
		{"single attempt by default", false, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			researcher := llm.NewMockProvider()
			researcher.QueueError(errors.Unavailable("503 service unavailable"))
			researcher.SetResponse("findings")
			writer := llm.NewMockProvider()
			writer.SetResponse("draft")
			completion := llm.NewMockProvider()
			completion.SetResponse("post")

			cfg := testConfig(true)
			cfg.Crew.RetryCalls = tt.retryCalls
			sleeper := &sleepRecorder{}
			p, err := New(cfg, Deps{
				Researcher: researcher,
				Writer:     writer,
				Completion: completion,
				Search:     &fakeSearch{},
			}, WithSleeper(sleeper.sleep))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			_, err = p.Run(context.Background(), "topic")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := researcher.CallCount(); got != tt.wantAttempts {
				t.Errorf("researcher calls = %d, want %d", got, tt.wantAttempts)
			}
			if tt.retryCalls && (len(sleeper.waits) != 1 || sleeper.waits[0] != 5*time.Second) {
				t.Errorf("waits = %v", sleeper.waits)
			}
		})
	}
}

func TestRun_CompletionRetry(t *testing.T) {
	tests := []struct {
		name         string
		script       func(m *llm.MockProvider)
		wantCode     errors.ErrorCode
		wantCause    errors.ErrorCode
		wantAttempts int
		wantWaits    int
	}{
		{
			name:         "success first try",
			script:       func(m *llm.MockProvider) { m.SetResponse("post") },
			wantAttempts: 1,
		},
		{
			name: "transient then success",
			script: func(m *llm.MockProvider) {
				m.QueueError(errors.Unavailable("503"))
				m.QueueError(errors.Timeout("deadline"))
				m.SetResponse("post")
			},
			wantAttempts: 3,
			wantWaits:    2,
		},
		{
			name: "empty reply is retried",
			script: func(m *llm.MockProvider) {
				m.QueueResponse(&llm.ChatResponse{Content: "  "})
				m.SetResponse("post")
			},
			wantAttempts: 2,
			wantWaits:    1,
		},
		{
			name:         "non-transient fails fast",
			script:       func(m *llm.MockProvider) { m.SetError(errors.Unauthorized("401")) },
			wantCode:     errors.ErrCodeUnauthorized,
			wantAttempts: 1,
		},
		{
			name:         "quota is not retried",
			script:       func(m *llm.MockProvider) { m.SetError(errors.New(errors.ErrCodeQuotaExceeded, "billing")) },
			wantCode:     errors.ErrCodeQuotaExceeded,
			wantAttempts: 1,
		},
		{
			name:         "exhausted",
			script:       func(m *llm.MockProvider) { m.SetError(errors.RateLimited("429")) },
			wantCode:     errors.ErrCodeRetryExhausted,
			wantCause:    errors.ErrCodeRateLimit,
			wantAttempts: 3,
			wantWaits:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completion := llm.NewMockProvider()
			tt.script(completion)
			sleeper := &sleepRecorder{}

			p, err := New(testConfig(false), Deps{Completion: completion}, WithSleeper(sleeper.sleep))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			post, err := p.Run(context.Background(), "topic")
			if post.Attempts != tt.wantAttempts || completion.CallCount() != tt.wantAttempts {
				t.Errorf("attempts = %d, calls = %d, want %d", post.Attempts, completion.CallCount(), tt.wantAttempts)
			}
			if len(sleeper.waits) != tt.wantWaits {
				t.Errorf("waits = %v, want %d", sleeper.waits, tt.wantWaits)
			}

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				if post.Body != "post" {
					t.Errorf("Body = %q", post.Body)
				}
				return
			}
			if !errors.Is(err, tt.wantCode) {
				t.Fatalf("err = %v, want %s", err, tt.wantCode)
			}
			if tt.wantCause != "" && !errors.Is(errors.Cause(err), tt.wantCause) {
				t.Errorf("cause = %v, want %s", errors.Cause(err), tt.wantCause)
			}
		})
	}
}

func TestRun_InterruptedDuringWait(t *testing.T) {
	completion := llm.NewMockProvider()
	completion.SetError(errors.Unavailable("503"))

	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	p, err := New(testConfig(false), Deps{Completion: completion}, WithSleeper(sleeper))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	post, err := p.Run(ctx, "topic")
	if !errors.Is(err, errors.ErrCodeCanceled) {
		t.Fatalf("err = %v, want CANCELED", err)
	}
	if post.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", post.Attempts)
	}
}

func TestNew_MissingDeps(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		deps Deps
	}{
		{"nil config", nil, Deps{Completion: llm.NewMockProvider()}},
		{"no completion", testConfig(false), Deps{}},
		{"crew without researcher", testConfig(true), Deps{
			Completion: llm.NewMockProvider(), Writer: llm.NewMockProvider(), Search: &fakeSearch{},
		}},
		{"crew without search", testConfig(true), Deps{
			Completion: llm.NewMockProvider(), Researcher: llm.NewMockProvider(), Writer: llm.NewMockProvider(),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.deps); !errors.Is(err, errors.ErrCodeConfig) {
				t.Errorf("New() = %v, want CONFIG", err)
			}
		})
	}

	bad := testConfig(false)
	bad.Retry.MaxAttempts = 0
	if _, err := New(bad, Deps{Completion: llm.NewMockProvider()}); !errors.Is(err, errors.ErrCodeConfig) {
		t.Errorf("invalid retry policy accepted: %v", err)
	}
}

func TestCompletionMessages(t *testing.T) {
	msgs := CompletionMessages("", "Go", "")
	if len(msgs) != 1 || msgs[0].Role != llm.RoleUser {
		t.Fatalf("messages = %+v", msgs)
	}

	msgs = CompletionMessages("be terse", "Go", "the draft")
	if len(msgs) != 2 || msgs[0].Content != "be terse" {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[1].Content, "Edit the draft") || !strings.HasSuffix(msgs[1].Content, "the draft") {
		t.Errorf("user prompt = %q", msgs[1].Content)
	}
}

func TestBuildDeps(t *testing.T) {
	t.Run("crew disabled", func(t *testing.T) {
		cfg := testConfig(false)
		cfg.Keys = config.Keys{"groq": "gk"}

		deps, closeFn, err := BuildDeps(cfg, nil)
		if err != nil {
			t.Fatalf("BuildDeps: %v", err)
		}
		defer closeFn()
		if deps.Completion == nil {
			t.Error("completion provider not built")
		}
		if deps.Researcher != nil || deps.Search != nil || deps.Notes != nil {
			t.Errorf("crew deps built while disabled: %+v", deps)
		}
	})

	t.Run("crew enabled", func(t *testing.T) {
		cfg := testConfig(true)
		cfg.Keys = config.Keys{"groq": "gk", "openai": "ok", "serper": "sk"}

		deps, closeFn, err := BuildDeps(cfg, nil)
		if err != nil {
			t.Fatalf("BuildDeps: %v", err)
		}
		if deps.Researcher == nil || deps.Writer == nil || deps.Search == nil || deps.Notes == nil {
			t.Errorf("deps = %+v", deps)
		}
		if deps.Search.Name() != "serper" {
			t.Errorf("search = %s", deps.Search.Name())
		}
		if err := closeFn(); err != nil {
			t.Errorf("close: %v", err)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		cfg := testConfig(true)
		cfg.Keys = config.Keys{"groq": "gk", "openai": "ok"}

		if _, _, err := BuildDeps(cfg, nil); !errors.Is(err, errors.ErrCodeConfig) {
			t.Errorf("err = %v, want CONFIG", err)
		}
	})
}
