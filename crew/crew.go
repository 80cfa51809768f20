// Package crew runs agents through an ordered list of tasks.
//
// A crew executes its tasks sequentially. Each task is handled by its
// agent in a tool loop: the model is called with the tools the agent may
// use, requested tool calls are executed through the registry and their
// results fed back, until the model answers without tool calls or the
// agent's iteration budget is spent. The output of every finished task is
// passed to later tasks as context, and the last task's output is the
// crew's result.
package crew

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/llm"
	"github.com/vinayprograms/blogcrew/logging"
	"github.com/vinayprograms/blogcrew/retry"
	"github.com/vinayprograms/blogcrew/security"
	"github.com/vinayprograms/blogcrew/telemetry"
	"github.com/vinayprograms/blogcrew/tools"
)

// Process selects how tasks are scheduled.
type Process string

// Sequential runs tasks one after another in declaration order.
const Sequential Process = "sequential"

// Crew is a set of agents and the tasks they perform.
type Crew struct {
	Agents  []*Agent
	Tasks   []*Task
	Process Process

	registry *tools.Registry
	logger   *logging.Logger
	tracer   *telemetry.Tracer
	retry    *retry.Policy
	sleeper  retry.Sleeper
}

// Option configures a Crew.
type Option func(*Crew)

// WithRegistry sets the registry agent tools are resolved against.
func WithRegistry(r *tools.Registry) Option {
	return func(c *Crew) {
		c.registry = r
	}
}

// WithLogger sets the crew logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Crew) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer sets the tracer for task and tool spans. The global tracer
// is used otherwise.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *Crew) {
		c.tracer = t
	}
}

// WithRetry retries each model call under p on transient failures.
func WithRetry(p retry.Policy) Option {
	return func(c *Crew) {
		c.retry = &p
	}
}

// WithSleeper replaces the wait between retried model calls.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Crew) {
		c.sleeper = s
	}
}

// New creates a sequential crew.
func New(agents []*Agent, tasks []*Task, opts ...Option) *Crew {
	c := &Crew{
		Agents:  agents,
		Tasks:   tasks,
		Process: Sequential,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TaskOutput is the result of one task.
type TaskOutput struct {
	Task         string
	Agent        string
	Output       string
	Iterations   int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Result is the outcome of a crew run.
type Result struct {
	RunID        string
	Output       string
	Tasks        []TaskOutput
	InputTokens  int
	OutputTokens int
}

// Validate checks every agent and task, and that each task's agent
// belongs to the crew.
func (c *Crew) Validate() error {
	if c.Process != "" && c.Process != Sequential {
		return errors.Newf(errors.ErrCodeConfig, "unsupported process: %s", c.Process)
	}
	if len(c.Agents) == 0 {
		return errors.Config("crew has no agents")
	}
	if len(c.Tasks) == 0 {
		return errors.Config("crew has no tasks")
	}
	if c.retry != nil {
		if err := c.retry.Validate(); err != nil {
			return err
		}
	}

	members := make(map[*Agent]bool, len(c.Agents))
	for _, a := range c.Agents {
		if err := a.Validate(c.registry); err != nil {
			return err
		}
		members[a] = true
	}

	names := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if names[t.Name] {
			return errors.Newf(errors.ErrCodeConfig, "duplicate task name: %s", t.Name)
		}
		names[t.Name] = true
		if !members[t.Agent] {
			return errors.Newf(errors.ErrCodeConfig, "task %q is assigned to agent %q outside the crew",
				t.Name, t.Agent.DisplayName())
		}
	}
	return nil
}

// Kickoff validates the crew and runs every task in order. inputs fill
// {placeholders} in agent and task descriptors.
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]string) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.New().String()}
	logger := c.logger.WithRunID(result.RunID)

	for _, task := range c.Tasks {
		if err := ctx.Err(); err != nil {
			return result, errors.TaskFailed(task.Name, task.Agent.DisplayName(), errors.Wrap(err, "crew interrupted"))
		}

		out, err := c.runTask(ctx, logger, task, inputs, result.Tasks)
		result.InputTokens += out.InputTokens
		result.OutputTokens += out.OutputTokens
		if err != nil {
			return result, errors.TaskFailed(task.Name, task.Agent.DisplayName(), err)
		}
		result.Tasks = append(result.Tasks, out)
		result.Output = out.Output
	}
	return result, nil
}

func (c *Crew) getTracer() *telemetry.Tracer {
	if c.tracer != nil {
		return c.tracer
	}
	return telemetry.GetTracer()
}

func (c *Crew) runTask(ctx context.Context, logger *logging.Logger, task *Task, inputs map[string]string, prior []TaskOutput) (out TaskOutput, err error) {
	agent := task.Agent
	out = TaskOutput{Task: task.Name, Agent: agent.DisplayName()}
	start := time.Now()

	tracer := c.getTracer()
	ctx, span := tracer.StartTaskSpan(ctx, task.Name, out.Agent)
	defer func() {
		out.Duration = time.Since(start)
		tracer.EndTaskSpan(span, telemetry.TaskSpanOptions{
			Iterations: out.Iterations,
			TokensIn:   out.InputTokens,
			TokensOut:  out.OutputTokens,
			Output:     out.Output,
		}, err)
	}()

	logger.TaskStart(task.Name, out.Agent)
	ctx = tools.WithTask(ctx, task.Name)

	system, err := agent.systemPrompt(inputs)
	if err != nil {
		return out, err
	}
	user, err := task.prompt(inputs, prior)
	if err != nil {
		return out, err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
	defs := toolDefs(c.registry, agent.Tools)

	for out.Iterations < agent.maxIterations() {
		out.Iterations++

		resp, err := c.chat(ctx, logger, task, llm.ChatRequest{
			Messages:  messages,
			Tools:     defs,
			MaxTokens: agent.MaxTokens,
		})
		if err != nil {
			return out, err
		}
		out.InputTokens += resp.InputTokens
		out.OutputTokens += resp.OutputTokens

		if len(resp.ToolCalls) == 0 {
			return c.finish(logger, out, resp.Content, start)
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return out, errors.Wrap(err, "tool loop interrupted")
			}
			out.ToolCalls++
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    c.execTool(ctx, logger, agent, call),
				ToolCallID: call.ID,
			})
		}
	}

	// Budget spent: one more turn without tools for the final answer.
	logger.Warn("max_iterations_reached", logging.Fields{
		"task":       task.Name,
		"agent":      out.Agent,
		"iterations": out.Iterations,
	})
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "You have reached the maximum number of tool calls. Give your best final answer now using the information you already have.",
	})
	resp, err := c.chat(ctx, logger, task, llm.ChatRequest{
		Messages:  messages,
		MaxTokens: agent.MaxTokens,
	})
	if err != nil {
		return out, err
	}
	out.InputTokens += resp.InputTokens
	out.OutputTokens += resp.OutputTokens
	return c.finish(logger, out, resp.Content, start)
}

func (c *Crew) finish(logger *logging.Logger, out TaskOutput, content string, start time.Time) (TaskOutput, error) {
	out.Output = strings.TrimSpace(content)
	if out.Output == "" {
		return out, errors.Unavailable("agent returned no output")
	}
	logger.TaskComplete(out.Task, out.Agent, time.Since(start), out.Iterations)
	return out, nil
}

// chat makes one model call, retried under the crew policy when set.
func (c *Crew) chat(ctx context.Context, logger *logging.Logger, task *Task, req llm.ChatRequest) (*llm.ChatResponse, error) {
	call := func(ctx context.Context) (*llm.ChatResponse, error) {
		return task.Agent.Provider.Chat(ctx, req)
	}
	if c.retry == nil {
		return call(ctx)
	}

	opts := []retry.Option{
		retry.WithName("llm." + task.Name),
		retry.WithClassifier(llm.IsTransient),
		retry.WithLogger(logger),
	}
	if c.sleeper != nil {
		opts = append(opts, retry.WithSleeper(c.sleeper))
	}
	return retry.Do(ctx, *c.retry, call, opts...)
}

// execTool runs one tool call. Failures become the tool result so the
// model can recover.
func (c *Crew) execTool(ctx context.Context, logger *logging.Logger, agent *Agent, call llm.ToolCall) string {
	tracer := c.getTracer()
	ctx, span := tracer.StartToolSpan(ctx, call.Name)

	logger.ToolCall(call.Name, call.Args)
	start := time.Now()

	var (
		result string
		err    error
	)
	if !agent.allows(call.Name) {
		err = errors.InvalidInput(fmt.Sprintf("tool %s is not available to %s", call.Name, agent.DisplayName()),
			errors.WithMetadata("tool", call.Name))
	} else {
		result, err = c.registry.Execute(ctx, call.Name, call.Args)
	}

	logger.ToolResult(call.Name, time.Since(start), err)
	tracer.EndToolSpan(span, telemetry.ToolSpanOptions{
		Tool:   call.Name,
		Args:   call.Args,
		Result: result,
	}, err)

	if err != nil {
		return "error: " + err.Error()
	}
	if strings.TrimSpace(result) == "" {
		return "(no results)"
	}
	if !c.registry.IsExternal(call.Name) {
		return result
	}

	block := security.Untrusted(call.Name, result)
	if block.Suspicious() {
		logger.Warn("suspicious_tool_result", logging.Fields{
			"tool":     call.Name,
			"findings": strings.Join(block.FindingNames(), ","),
		})
	}
	return block.Render()
}

func toolDefs(reg *tools.Registry, names []string) []llm.ToolDef {
	if reg == nil || len(names) == 0 {
		return nil
	}
	var defs []llm.ToolDef
	for _, d := range reg.Definitions(names...) {
		defs = append(defs, llm.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return defs
}
