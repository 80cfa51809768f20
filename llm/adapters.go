package llm

import (
	"context"
	"strings"

	"github.com/vinayprograms/blogcrew/errors"
)

// NewProvider creates a provider based on the configuration.
// If Provider is empty, it will be inferred from the Model name.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" && cfg.Model != "" {
		cfg.Provider = InferProviderFromModel(cfg.Model)
		if cfg.Provider == "" {
			return nil, errors.Newf(errors.ErrCodeConfig,
				"cannot determine provider for model %q; set provider explicitly", cfg.Model)
		}
	}
	cfg.Provider = strings.ToLower(cfg.Provider)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "groq":
		return NewGroqProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "google":
		return NewGoogleProvider(GoogleConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		return nil, errors.Newf(errors.ErrCodeConfig, "unsupported provider: %s", cfg.Provider)
	}
}

// InferProviderFromModel returns the provider name based on model name patterns.
func InferProviderFromModel(model string) string {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "chatgpt"):
		return "openai"
	case strings.HasPrefix(model, "gemini"),
		strings.HasPrefix(model, "gemma"):
		return "google"
	case strings.HasPrefix(model, "llama"),
		strings.HasPrefix(model, "mixtral"),
		strings.HasPrefix(model, "qwen"),
		strings.HasPrefix(model, "deepseek-r1-distill"):
		return "groq"
	}
	return ""
}

// Complete sends messages in a single request and returns the text of the
// reply. An empty reply is an UNAVAILABLE error so callers may retry it.
func Complete(ctx context.Context, p Provider, messages []Message) (string, error) {
	resp, err := p.Chat(ctx, ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.Unavailable("completion returned no content",
			errors.WithMetadata("model", resp.Model))
	}
	return text, nil
}
