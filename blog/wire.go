package blog

import (
	"time"

	"github.com/vinayprograms/blogcrew/config"
	"github.com/vinayprograms/blogcrew/llm"
	"github.com/vinayprograms/blogcrew/notes"
	"github.com/vinayprograms/blogcrew/search"
	"github.com/vinayprograms/blogcrew/telemetry"
)

// BuildDeps constructs the providers, search backend and notes store a
// validated configuration asks for. The returned close func releases the
// notes index. A nil tracer means the global one.
func BuildDeps(cfg *config.Config, tracer *telemetry.Tracer) (Deps, func() error, error) {
	var deps Deps
	noop := func() error { return nil }

	completion, err := newProvider(cfg.Completion.Provider, cfg.Completion.Model, cfg.Completion.MaxTokens, cfg, tracer)
	if err != nil {
		return deps, noop, err
	}
	deps.Completion = completion

	if !cfg.Crew.Enabled {
		return deps, noop, nil
	}

	if deps.Researcher, err = newProvider(cfg.Researcher.Provider, cfg.Researcher.Model, cfg.Researcher.MaxTokens, cfg, tracer); err != nil {
		return deps, noop, err
	}
	if deps.Writer, err = newProvider(cfg.Writer.Provider, cfg.Writer.Model, cfg.Writer.MaxTokens, cfg, tracer); err != nil {
		return deps, noop, err
	}

	backend, err := search.New(cfg.Search.Provider, cfg.Keys.For(cfg.Search.Provider))
	if err != nil {
		return deps, noop, err
	}
	deps.Search = search.NewThrottled(backend, time.Duration(cfg.Search.MinInterval))

	store, err := notes.NewStore()
	if err != nil {
		return deps, noop, err
	}
	deps.Notes = store
	return deps, store.Close, nil
}

func newProvider(name, model string, maxTokens int, cfg *config.Config, tracer *telemetry.Tracer) (llm.Provider, error) {
	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider:  name,
		Model:     model,
		APIKey:    cfg.Keys.For(name),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return llm.WithTracing(p, name, tracer), nil
}
