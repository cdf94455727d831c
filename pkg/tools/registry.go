// Package tools provides the auxiliary text operations the agent can invoke
// and the registry that looks them up by name.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"codeqa/pkg/agent/llm"
)

// ErrUnknownTool is returned when a name has no registered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is one named operation.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	Exec(ctx context.Context, args map[string]any) (any, error)
}

// Results maps result keys to tool output. Entries are only ever added.
type Results map[string]any

// Keys returns the result keys in sorted order.
func (r Results) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the string result stored under key.
func (r Results) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Registry holds the tools available to the agent. It is read-only once sealed.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type Registry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewDefaultRegistry registers the built-in tools and seals the registry.
// generator backs llm_summarize.
func NewDefaultRegistry(generator llm.TextGenerator) *Registry {
	r := NewRegistry()
	r.Register(NewSummarizeTool(generator))
	r.Register(&KeyPointsTool{})
	r.Register(&ChangesTool{})
	r.Register(&CompareTool{})
	r.Register(&UncertaintyTool{})
	r.Seal()
	return r
}

// Register adds a tool. Panics if called after the registry is sealed.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", tool.Name()))
	}
	r.tools[tool.Name()] = tool
}

// Seal prevents further tool registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the definitions of all registered tools, sorted by name.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool.Definition())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Invoke validates args against the tool's schema and runs it.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if err := validateArgs(tool.Definition(), args); err != nil {
		return nil, fmt.Errorf("tool '%s': %w", name, err)
	}
	out, err := tool.Exec(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool '%s': %w", name, err)
	}
	return out, nil
}

// GenerateToolDocumentation creates markdown documentation for the registered tools.
func (r *Registry) GenerateToolDocumentation() string {
	defs := r.List()
	if len(defs) == 0 {
		return "No tools available"
	}

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for i := range defs {
		doc.WriteString(fmt.Sprintf("- **%s** - %s\n", defs[i].Name, defs[i].Description))
	}
	return doc.String()
}
