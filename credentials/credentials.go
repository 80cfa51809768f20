// Package credentials loads API keys from a credentials.toml file.
//
// The file holds one table per service:
//
//	[openai]
//	api_key = "sk-..."
//
//	[serper]
//	api_key = "..."
//
//	[groq]
//	api_key = "gsk_..."
//
// An optional [llm] table supplies a fallback key for any LLM provider.
// Environment variables are not read here; see EnvVar for the names the
// config package falls back to.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when the credentials file is readable
// or writable by anyone but its owner, or writable by the owner.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// llmSection is the table consulted when a provider has no table of its own.
const llmSection = "llm"

// searchServices never fall back to the [llm] key.
var searchServices = map[string]bool{
	"serper":     true,
	"brave":      true,
	"tavily":     true,
	"duckduckgo": true,
}

// Credentials holds API keys keyed by service name.
type Credentials struct {
	keys map[string]string
	path string
}

// ProviderCreds is a single table in the credentials file.
type ProviderCreds struct {
	APIKey string `toml:"api_key"`
}

// New builds credentials from a service -> key map. Used by tests and by
// callers that source keys elsewhere.
func New(keys map[string]string) *Credentials {
	c := &Credentials{keys: make(map[string]string, len(keys))}
	for k, v := range keys {
		c.keys[normalize(k)] = v
	}
	return c
}

// StandardPaths returns the credential file locations in priority order.
func StandardPaths() []string {
	paths := []string{"credentials.toml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "blogcrew", "credentials.toml"),
			filepath.Join(home, ".blogcrew", "credentials.toml"),
		)
	}

	return paths
}

// Load loads credentials from the first standard location that exists.
// No file is not an error: it returns nil credentials and an empty path.
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return nil, "", nil
}

// LoadFile loads credentials from path. On Unix the file must be mode 0400.
func LoadFile(path string) (*Credentials, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var sections map[string]ProviderCreds
	if _, err := toml.DecodeFile(path, &sections); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	creds := &Credentials{
		keys: make(map[string]string, len(sections)),
		path: path,
	}
	for name, section := range sections {
		if key := strings.TrimSpace(section.APIKey); key != "" {
			creds.keys[normalize(name)] = key
		}
	}

	return creds, nil
}

// Path returns the file the credentials were loaded from, if any.
func (c *Credentials) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// GetAPIKey returns the key for a service, or "" when none is configured.
// Priority: [service] table, then [llm] for LLM providers.
func (c *Credentials) GetAPIKey(service string) string {
	key, _ := c.Lookup(service)
	return key
}

// Lookup is GetAPIKey with a found flag. Safe on a nil receiver.
func (c *Credentials) Lookup(service string) (string, bool) {
	if c == nil {
		return "", false
	}
	name := normalize(service)
	if key, ok := c.keys[name]; ok {
		return key, true
	}
	if searchServices[name] {
		return "", false
	}
	if key, ok := c.keys[llmSection]; ok {
		return key, true
	}
	return "", false
}

// EnvVar returns the environment variable conventionally holding the key
// for service.
func EnvVar(service string) string {
	switch normalize(service) {
	case "openai":
		return "OPENAI_API_KEY"
	case "serper":
		return "SERPER_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return strings.ToUpper(strings.ReplaceAll(service, "-", "_")) + "_API_KEY"
	}
}

func normalize(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}
