// Package tools provides the tool registry and the research tools agents
// can call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/logging"
	"github.com/vinayprograms/blogcrew/notes"
	"github.com/vinayprograms/blogcrew/search"
)

// Tool represents an executable tool.
type Tool interface {
	// Name returns the tool name.
	Name() string
	// Description returns a description for the LLM.
	Description() string
	// Parameters returns the JSON schema for parameters.
	Parameters() map[string]interface{}
	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args Args) (interface{}, error)
}

// ExternalContent is implemented by tools whose results come from outside
// the process and must be handed to the model as untrusted data.
type ExternalContent interface {
	External() bool
}

// ToolDefinition is the LLM-facing tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// NotesStore records and looks up research notes.
type NotesStore interface {
	Add(ctx context.Context, n notes.Note) (string, error)
	Search(ctx context.Context, q string, limit int) ([]notes.Hit, error)
}

// Registry holds all registered tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	notes  NotesStore
	logger *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), logger: logging.Discard()}
}

// SetLogger sets the logger tools report side-channel failures to.
func (r *Registry) SetLogger(l *logging.Logger) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
	if ws, ok := r.tools["web_search"].(*webSearchTool); ok {
		ws.logger = l
	}
}

// SetSearch registers web_search backed by p. defaultCount applies when
// the model does not ask for a count.
func (r *Registry) SetSearch(p search.Provider, defaultCount int) {
	r.mu.RLock()
	store, logger := r.notes, r.logger
	r.mu.RUnlock()
	r.Register(&webSearchTool{
		provider:     p,
		defaultCount: search.ClampCount(defaultCount),
		notes:        store,
		logger:       logger,
	})
}

// SetNotes registers search_notes and makes web_search record its results.
func (r *Registry) SetNotes(store NotesStore) {
	r.mu.Lock()
	r.notes = store
	if ws, ok := r.tools["web_search"].(*webSearchTool); ok {
		ws.notes = store
	}
	r.mu.Unlock()
	r.Register(&searchNotesTool{store: store})
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if the registry has a tool with the given name.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns LLM-facing definitions sorted by name. With names
// given, only those tools are included; unknown names are skipped.
func (r *Registry) Definitions(names ...string) []ToolDefinition {
	if r == nil {
		return nil
	}
	if len(names) == 0 {
		names = r.Names()
	} else {
		names = append([]string(nil), names...)
		sort.Strings(names)
	}

	var defs []ToolDefinition
	for _, name := range names {
		t := r.Get(name)
		if t == nil {
			continue
		}
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// IsExternal reports whether the named tool returns external content.
func (r *Registry) IsExternal(name string) bool {
	ext, ok := r.Get(name).(ExternalContent)
	return ok && ext.External()
}

// Execute runs a tool and renders its result as text for the model.
// Strings pass through; anything else is encoded as JSON.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", errors.InvalidInput(fmt.Sprintf("unknown tool: %s", name),
			errors.WithMetadata("tool", name))
	}

	out, err := t.Execute(ctx, Args(args))
	if err != nil {
		return "", err
	}

	switch v := out.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", errors.Wrap(err, fmt.Sprintf("encoding %s result", name))
		}
		return string(data), nil
	}
}

type taskKey struct{}

// WithTask tags ctx with the task running the tool, for note provenance.
func WithTask(ctx context.Context, task string) context.Context {
	return context.WithValue(ctx, taskKey{}, task)
}

// TaskFrom returns the task set by WithTask, or "".
func TaskFrom(ctx context.Context) string {
	task, _ := ctx.Value(taskKey{}).(string)
	return task
}
