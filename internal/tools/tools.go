// Package tools defines the shared [Tool] type used by the built-in tool
// packages, and the [Registry] the responder executes them through. Each
// sub-package exports a constructor returning a slice of [Tool] values ready
// for registration.
package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/glydways/clyde/internal/observe"
	"github.com/glydways/clyde/pkg/types"
)

// Tool carries an LLM-facing schema together with the handler invoked when
// the model calls it.
type Tool struct {
	// Definition is the tool's schema: name, description, and JSON Schema
	// parameters.
	Definition types.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result string on success, or a descriptive error.
	// Implementations must be safe for concurrent use and must respect
	// context cancellation.
	Handler func(ctx context.Context, args string) (string, error)
}

// Registry holds the assembled tool set for a session.
type Registry struct {
	byName  map[string]Tool
	metrics *observe.Metrics
}

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*Registry)

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry assembles a Registry from tool slices. A duplicate tool name
// is a programming error and panics at startup.
func NewRegistry(toolSets [][]Tool, opts ...RegistryOption) *Registry {
	r := &Registry{byName: make(map[string]Tool)}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	for _, set := range toolSets {
		for _, t := range set {
			if _, dup := r.byName[t.Definition.Name]; dup {
				panic(fmt.Sprintf("tools: duplicate tool name %q", t.Definition.Name))
			}
			r.byName[t.Definition.Name] = t
		}
	}
	return r
}

// Definitions returns the schemas of all registered tools, sorted by name
// for a stable prompt.
func (r *Registry) Definitions() []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(r.byName))
	for _, t := range r.byName {
		defs = append(defs, t.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool with JSON-encoded args.
func (r *Registry) Execute(ctx context.Context, name, args string) (string, error) {
	t, ok := r.byName[name]
	if !ok {
		r.metrics.RecordToolCall(ctx, name, "unknown")
		return "", fmt.Errorf("tools: unknown tool %q", name)
	}

	start := time.Now()
	out, err := t.Handler(ctx, args)
	r.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordToolCall(ctx, name, "error")
		return "", fmt.Errorf("tools: %s: %w", name, err)
	}
	r.metrics.RecordToolCall(ctx, name, "ok")
	return out, nil
}
