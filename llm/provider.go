// Package llm provides LLM provider interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vinayprograms/blogcrew/errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents an LLM message.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
}

// ToolDef represents a tool definition for the LLM.
type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall represents a tool call requested by the LLM.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ChatRequest represents a chat request to the LLM.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	Tools     []ToolDef `json:"tools,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// ChatResponse represents a chat response from the LLM.
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	StopReason   string     `json:"stop_reason"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	Model        string     `json:"model"`
}

// Provider is the interface for LLM providers. Implementations make a
// single attempt per call and return errors classified by Classify.
type Provider interface {
	// Chat sends a chat request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ProviderConfig holds configuration for NewProvider.
type ProviderConfig struct {
	Provider  string `json:"provider"` // openai, groq, anthropic, google
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	MaxTokens int    `json:"max_tokens"`
	BaseURL   string `json:"base_url"` // Custom endpoint for OpenAI-compatible servers
}

var knownProviders = []string{"openai", "groq", "anthropic", "google"}

// KnownProviders lists the provider names NewProvider accepts.
func KnownProviders() []string {
	return append([]string(nil), knownProviders...)
}

// IsKnownProvider reports whether name is a supported provider.
func IsKnownProvider(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range knownProviders {
		if p == name {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *ProviderConfig) Validate() error {
	var missing []string
	if c.Provider == "" {
		missing = append(missing, "provider")
	}
	if c.Model == "" {
		missing = append(missing, "model")
	}
	if c.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.MaxTokens <= 0 {
		missing = append(missing, "max_tokens")
	}
	if len(missing) > 0 {
		return errors.Config(fmt.Sprintf("%s provider is missing settings", c.Provider), missing...)
	}
	if !IsKnownProvider(c.Provider) {
		return errors.Newf(errors.ErrCodeConfig, "unsupported provider: %s", c.Provider)
	}
	return nil
}

// --- Mock Provider for Testing ---

// MockProvider is a mock LLM provider for testing. Scripted responses and
// errors are consumed in order; once the script runs out the fixed
// response is returned.
type MockProvider struct {
	mu           sync.Mutex
	response     string
	toolCalls    []ToolCall
	stopReason   string
	inputTokens  int
	outputTokens int
	err          error
	script       []mockStep
	requests     []ChatRequest

	// ChatFunc can be overridden for custom behavior
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type mockStep struct {
	resp *ChatResponse
	err  error
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{stopReason: "end_turn"}
}

// SetResponse sets the response content.
func (p *MockProvider) SetResponse(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = content
}

// SetToolCall sets a single tool call response, returned until a tool
// result appears in the conversation.
func (p *MockProvider) SetToolCall(name string, args map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolCalls = []ToolCall{{ID: "tc-1", Name: name, Args: args}}
}

// SetTokenCounts sets the token counts.
func (p *MockProvider) SetTokenCounts(input, output int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputTokens = input
	p.outputTokens = output
}

// SetError sets an error returned on every call.
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// QueueResponse appends a scripted response.
func (p *MockProvider) QueueResponse(resp *ChatResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, mockStep{resp: resp})
}

// QueueError appends a scripted failure.
func (p *MockProvider) QueueError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, mockStep{err: err})
}

// LastRequest returns the last request, or nil.
func (p *MockProvider) LastRequest() *ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	req := p.requests[len(p.requests)-1]
	return &req
}

// Requests returns every request received.
func (p *MockProvider) Requests() []ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChatRequest(nil), p.requests...)
}

// CallCount returns the number of Chat calls made.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Chat implements the Provider interface.
func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	fn := p.ChatFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, Classify("mock", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.script) > 0 {
		step := p.script[0]
		p.script = p.script[1:]
		if step.err != nil {
			return nil, step.err
		}
		return step.resp, nil
	}

	if p.err != nil {
		return nil, p.err
	}

	resp := &ChatResponse{
		Content:      p.response,
		StopReason:   p.stopReason,
		InputTokens:  p.inputTokens,
		OutputTokens: p.outputTokens,
		Model:        "mock",
	}

	// Tool calls are returned until a tool result comes back.
	for _, msg := range req.Messages {
		if msg.Role == RoleTool {
			return resp, nil
		}
	}
	resp.ToolCalls = p.toolCalls
	return resp, nil
}
