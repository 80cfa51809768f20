// Package blog runs the research-and-write pipeline: an optional crew of
// a researcher and a writer produces a draft, and a single retry-wrapped
// completion call turns it into the published post.
package blog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/blogcrew/config"
	"github.com/vinayprograms/blogcrew/crew"
	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/llm"
	"github.com/vinayprograms/blogcrew/logging"
	"github.com/vinayprograms/blogcrew/retry"
	"github.com/vinayprograms/blogcrew/search"
	"github.com/vinayprograms/blogcrew/telemetry"
	"github.com/vinayprograms/blogcrew/tools"
)

// Deps are the collaborators a pipeline runs against.
type Deps struct {
	// Researcher and Writer drive the crew agents. Both are required when
	// the crew is enabled.
	Researcher llm.Provider
	Writer     llm.Provider

	// Completion serves the retry-wrapped completion call.
	Completion llm.Provider

	// Search backs the web_search tool. Required when the crew is enabled.
	Search search.Provider

	// Notes records search results for later lookup. Optional.
	Notes tools.NotesStore
}

// Post is a finished blog post.
type Post struct {
	Topic string
	// Draft is the crew's output, empty when the crew is disabled.
	Draft string
	Body  string
	RunID string
	// Attempts counts completion calls, including the successful one.
	Attempts int
	Duration time.Duration
}

// Pipeline produces blog posts.
type Pipeline struct {
	cfg      *config.Config
	deps     Deps
	registry *tools.Registry
	logger   *logging.Logger
	tracer   *telemetry.Tracer
	sleeper  retry.Sleeper
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracer sets the tracer. The global tracer is used otherwise.
func WithTracer(t *telemetry.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

// WithSleeper replaces the wait between completion attempts.
func WithSleeper(s retry.Sleeper) Option {
	return func(p *Pipeline) {
		p.sleeper = s
	}
}

// New checks that deps cover cfg and builds the tool registry.
func New(cfg *config.Config, deps Deps, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.Config("pipeline needs a configuration")
	}

	var missing []string
	if deps.Completion == nil {
		missing = append(missing, "completion provider")
	}
	if cfg.Crew.Enabled {
		if deps.Researcher == nil {
			missing = append(missing, "researcher provider")
		}
		if deps.Writer == nil {
			missing = append(missing, "writer provider")
		}
		if deps.Search == nil {
			missing = append(missing, "search provider")
		}
	}
	if len(missing) > 0 {
		return nil, errors.Config("pipeline is missing dependencies", missing...)
	}
	if err := cfg.RetryPolicy().Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		deps:     deps,
		registry: tools.NewRegistry(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.registry.SetLogger(p.logger.WithComponent("tools"))
	if deps.Notes != nil {
		p.registry.SetNotes(deps.Notes)
	}
	if deps.Search != nil {
		p.registry.SetSearch(deps.Search, cfg.Search.Count)
	}
	return p, nil
}

func (p *Pipeline) getTracer() *telemetry.Tracer {
	if p.tracer != nil {
		return p.tracer
	}
	return telemetry.GetTracer()
}

// Run writes a post about topic. Crew failures are returned as
// TASK_FAILED; completion failures as returned by retry.Do.
func (p *Pipeline) Run(ctx context.Context, topic string) (post *Post, err error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.InvalidInput("topic must not be empty")
	}

	start := time.Now()
	post = &Post{Topic: topic, RunID: uuid.New().String()}

	tracer := p.getTracer()
	ctx, span := tracer.StartRunSpan(ctx, post.RunID, topic)
	logger := p.logger.WithRunID(post.RunID)
	logger.RunStart(topic, p.cfg.Crew.Enabled)

	defer func() {
		post.Duration = time.Since(start)
		status := "ok"
		if err != nil {
			status = string(errors.Code(err))
			if status == "" {
				status = "error"
			}
		}
		logger.RunComplete(post.Duration, status)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if p.cfg.Crew.Enabled {
		draft, err := p.runCrew(ctx, logger, topic)
		if err != nil {
			return post, err
		}
		post.Draft = draft
	}

	body, attempts, err := p.complete(ctx, logger, topic, post.Draft)
	post.Attempts = attempts
	if err != nil {
		return post, err
	}
	post.Body = body
	return post, nil
}

func (p *Pipeline) runCrew(ctx context.Context, logger *logging.Logger, topic string) (string, error) {
	researcher := NewResearcher(p.deps.Researcher, p.cfg.Researcher.Model)
	researcher.MaxTokens = p.cfg.Researcher.MaxTokens
	researcher.MaxIterations = p.cfg.Researcher.MaxIterations
	researcher.Tools = p.available(researcher.Tools)

	writer := NewWriter(p.deps.Writer, p.cfg.Writer.Model)
	writer.MaxTokens = p.cfg.Writer.MaxTokens
	writer.MaxIterations = p.cfg.Writer.MaxIterations
	writer.Tools = p.available(writer.Tools)

	opts := []crew.Option{
		crew.WithRegistry(p.registry),
		crew.WithLogger(logger.WithComponent("crew")),
		crew.WithTracer(p.tracer),
	}
	if p.cfg.Crew.RetryCalls {
		opts = append(opts, crew.WithRetry(p.cfg.RetryPolicy()))
		if p.sleeper != nil {
			opts = append(opts, crew.WithSleeper(p.sleeper))
		}
	}
	c := crew.New(
		[]*crew.Agent{researcher, writer},
		[]*crew.Task{ResearchTask(researcher), WriteTask(writer)},
		opts...,
	)

	res, err := c.Kickoff(ctx, map[string]string{"topic": topic})
	if err != nil {
		return "", err
	}
	logger.Info("crew_complete", logging.Fields{
		"crew_run_id":   res.RunID,
		"tasks":         len(res.Tasks),
		"input_tokens":  res.InputTokens,
		"output_tokens": res.OutputTokens,
	})
	return res.Output, nil
}

// available drops tools the registry does not carry.
func (p *Pipeline) available(names []string) []string {
	var out []string
	for _, name := range names {
		if p.registry.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// complete performs the retry-wrapped completion call and reports how many
// attempts it took.
func (p *Pipeline) complete(ctx context.Context, logger *logging.Logger, topic, draft string) (string, int, error) {
	messages := CompletionMessages(p.cfg.Completion.SystemPrompt, topic, draft)
	policy := p.cfg.RetryPolicy()
	tracer := p.getTracer()

	attempts := 0
	op := func(ctx context.Context) (string, error) {
		attempts++
		ctx, span := tracer.StartAttemptSpan(ctx, "completion", attempts, policy.MaxAttempts)
		text, err := llm.Complete(ctx, p.deps.Completion, messages)
		tracer.EndAttemptSpan(span, llm.IsTransient(err), err)
		return text, err
	}

	opts := []retry.Option{
		retry.WithName("completion"),
		retry.WithClassifier(llm.IsTransient),
		retry.WithLogger(logger.WithComponent("retry")),
	}
	if p.sleeper != nil {
		opts = append(opts, retry.WithSleeper(p.sleeper))
	}

	body, err := retry.Do(ctx, policy, op, opts...)
	return body, attempts, err
}

// CompletionMessages builds the completion request. With a draft the model
// edits it; without one it writes from the topic alone.
func CompletionMessages(systemPrompt, topic, draft string) []llm.Message {
	var messages []llm.Message
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}

	var user string
	if strings.TrimSpace(draft) == "" {
		user = fmt.Sprintf("Write a complete, engaging blog post in Markdown about %q. "+
			"Include a title, an introduction, at least three sections and a conclusion.", topic)
	} else {
		user = fmt.Sprintf("Edit the draft below into a polished blog post about %q. "+
			"Fix errors, tighten the prose and keep every supported fact and source link. "+
			"Return only the final post in Markdown.\n\n---\n%s", topic, draft)
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: user})
}
