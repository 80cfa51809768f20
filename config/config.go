// Package config assembles the blogcrew configuration from an optional
// TOML file, a credentials file and the process environment. The result
// is built once in main and handed to every component; nothing below main
// reads the environment.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/blogcrew/credentials"
	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/llm"
	"github.com/vinayprograms/blogcrew/logging"
	"github.com/vinayprograms/blogcrew/retry"
)

// DefaultPath is read when no config file is named and it exists.
const DefaultPath = "blogcrew.toml"

// RequiredServices are the services whose keys must always be present.
var RequiredServices = []string{"openai", "serper", "groq"}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Duration is a time.Duration that decodes from TOML strings like "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the complete run configuration.
type Config struct {
	Topic      string           `toml:"topic"`
	Researcher AgentConfig      `toml:"researcher"`
	Writer     AgentConfig      `toml:"writer"`
	Completion CompletionConfig `toml:"completion"`
	Retry      RetryConfig      `toml:"retry"`
	Search     SearchConfig     `toml:"search"`
	Crew       CrewConfig       `toml:"crew"`
	Log        LogConfig        `toml:"log"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`

	// Keys are resolved from credentials and environment, never from the
	// config file.
	Keys Keys `toml:"-"`
}

// AgentConfig binds a crew agent to a model.
type AgentConfig struct {
	Provider      string `toml:"provider"`
	Model         string `toml:"model"`
	MaxTokens     int    `toml:"max_tokens"`
	MaxIterations int    `toml:"max_iterations"`
}

// CompletionConfig binds the retry-wrapped completion call to a model.
type CompletionConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	MaxTokens    int    `toml:"max_tokens"`
	SystemPrompt string `toml:"system_prompt"`
}

// RetryConfig is the TOML form of retry.Policy.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	Delay       Duration `toml:"delay"`
}

// SearchConfig selects the web search backend for the researcher.
type SearchConfig struct {
	Provider    string   `toml:"provider"` // serper | duckduckgo
	Count       int      `toml:"count"`
	MinInterval Duration `toml:"min_interval"`
}

// CrewConfig toggles the research-and-write crew.
type CrewConfig struct {
	Enabled bool `toml:"enabled"`

	// RetryCalls retries the agents' model calls under the retry policy.
	RetryCalls bool `toml:"retry_calls"`
}

// LogConfig sets the console log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Protocol    string `toml:"protocol"` // grpc | http
	Insecure    bool   `toml:"insecure"`
	Debug       bool   `toml:"debug"`
	ServiceName string `toml:"service_name"`

	// Headers go with every export, e.g. a collector auth token.
	Headers       map[string]string `toml:"headers"`
	BatchTimeout  Duration          `toml:"batch_timeout"`
	ExportTimeout Duration          `toml:"export_timeout"`
}

// Keys holds resolved secrets keyed by service name.
type Keys map[string]string

// For returns the key for a service, or "".
func (k Keys) For(service string) string {
	return k[strings.ToLower(service)]
}

// OpenAI returns the OpenAI API key.
func (k Keys) OpenAI() string { return k.For("openai") }

// Serper returns the Serper API key.
func (k Keys) Serper() string { return k.For("serper") }

// Groq returns the Groq API key.
func (k Keys) Groq() string { return k.For("groq") }

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Researcher: AgentConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			MaxTokens:     2048,
			MaxIterations: 8,
		},
		Writer: AgentConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			MaxTokens:     4096,
			MaxIterations: 4,
		},
		Completion: CompletionConfig{
			Provider:     "groq",
			Model:        "llama-3.1-8b-instant",
			MaxTokens:    4096,
			SystemPrompt: "You are a meticulous blog editor. Return only the finished post in Markdown.",
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			Delay:       Duration(retry.DefaultDelay),
		},
		Search: SearchConfig{
			Provider:    "serper",
			Count:       5,
			MinInterval: Duration(500 * time.Millisecond),
		},
		Crew: CrewConfig{Enabled: true},
		Log:  LogConfig{Level: string(logging.LevelInfo)},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "blogcrew",
		},
		Keys: Keys{},
	}
}

// Load builds a Config. path names a TOML file; "" means DefaultPath if it
// exists. Secrets come from creds first, then from env. The result is not
// validated; call Validate before using it.
func Load(path string, env LookupFunc, creds *credentials.Credentials) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, fmt.Sprintf("parsing %s", path))
		}
	} else if explicit {
		return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, fmt.Sprintf("reading %s", path))
	}

	cfg.Keys = resolveKeys(cfg.services(), env, creds)
	return cfg, nil
}

// services lists every service that needs a key under this configuration.
func (c *Config) services() []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] || !needsKey(s) {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range RequiredServices {
		add(s)
	}
	add(c.Completion.Provider)
	if c.Crew.Enabled {
		add(c.Researcher.Provider)
		add(c.Writer.Provider)
		add(c.Search.Provider)
	}
	return out
}

func needsKey(service string) bool {
	switch service {
	case "duckduckgo", "ollama":
		return false
	default:
		return true
	}
}

func resolveKeys(services []string, env LookupFunc, creds *credentials.Credentials) Keys {
	keys := Keys{}
	for _, s := range services {
		if key, ok := creds.Lookup(s); ok && key != "" {
			keys[s] = key
			continue
		}
		if env == nil {
			continue
		}
		if key, ok := env(credentials.EnvVar(s)); ok && strings.TrimSpace(key) != "" {
			keys[s] = strings.TrimSpace(key)
		}
	}
	return keys
}

// Validate reports every missing secret and invalid field as a single
// CONFIG error. Missing secrets are named by their environment variable.
func (c *Config) Validate() error {
	var missing, problems []string

	for _, s := range c.services() {
		if c.Keys.For(s) == "" {
			missing = append(missing, credentials.EnvVar(s))
		}
	}

	if err := c.RetryPolicy().Validate(); err != nil {
		problems = append(problems, errors.AsError(err).Message())
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}

	checkModel := func(section, provider, model string, maxTokens int) {
		if !llm.IsKnownProvider(provider) {
			problems = append(problems, fmt.Sprintf("%s.provider %q is not supported", section, provider))
		}
		if strings.TrimSpace(model) == "" {
			problems = append(problems, fmt.Sprintf("%s.model is required", section))
		}
		if maxTokens <= 0 {
			problems = append(problems, fmt.Sprintf("%s.max_tokens must be positive", section))
		}
	}
	checkModel("completion", c.Completion.Provider, c.Completion.Model, c.Completion.MaxTokens)

	if c.Crew.Enabled {
		checkModel("researcher", c.Researcher.Provider, c.Researcher.Model, c.Researcher.MaxTokens)
		checkModel("writer", c.Writer.Provider, c.Writer.Model, c.Writer.MaxTokens)

		switch c.Search.Provider {
		case "serper", "duckduckgo":
		default:
			problems = append(problems, fmt.Sprintf("search.provider %q is not supported", c.Search.Provider))
		}
		if c.Search.Count < 1 || c.Search.Count > 10 {
			problems = append(problems, "search.count must be between 1 and 10")
		}
		if c.Search.MinInterval < 0 {
			problems = append(problems, "search.min_interval must not be negative")
		}
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			problems = append(problems, fmt.Sprintf("telemetry.protocol %q is not supported", c.Telemetry.Protocol))
		}
		if c.Telemetry.BatchTimeout < 0 || c.Telemetry.ExportTimeout < 0 {
			problems = append(problems, "telemetry timeouts must not be negative")
		}
	}

	if len(missing) == 0 && len(problems) == 0 {
		return nil
	}

	sort.Strings(missing)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required secrets: "+strings.Join(missing, ", "))
	}
	parts = append(parts, problems...)

	opts := []errors.Option{}
	if len(missing) > 0 {
		opts = append(opts, errors.WithMetadata("missing", strings.Join(missing, ", ")))
	}
	return errors.New(errors.ErrCodeConfig, "invalid configuration: "+strings.Join(parts, "; "), opts...)
}

// RetryPolicy returns the policy for the completion call.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Delay:       time.Duration(c.Retry.Delay),
	}
}

// LogLevel returns the parsed log level, defaulting to INFO when invalid.
func (c *Config) LogLevel() logging.Level {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}
