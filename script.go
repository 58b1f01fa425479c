package graft

import (
	"context"

	"github.com/jward/graft/internal/script"
)

// RunScript evaluates a Risor script file against the graph's query
// surface and returns its final value. Scripts are read-only; they see
// a consistent graph for their whole run.
func (e *Engine) RunScript(ctx context.Context, path string) (any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return script.NewRuntime(e.store).RunScript(ctx, path)
}

// RunSource evaluates Risor source directly, for one-liners and tests.
func (e *Engine) RunSource(ctx context.Context, source string) (any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return script.NewRuntime(e.store).RunSource(ctx, source)
}
