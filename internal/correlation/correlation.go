// Package correlation propagates a per-request correlation id across the
// synchronous tool-invocation path and across the worker-pool boundary that
// the async batch job engine crosses.
//
// Go has no ambient thread-local to carry this implicitly, so the id is
// threaded through an explicit context.Context argument: New binds one scope
// that the dispatcher enters once per tool call, and Snapshot/Restore carry
// it across a goroutine boundary where the context itself doesn't survive.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// New returns a context carrying a correlation id. If ctx already carries
// one, that id is kept unchanged — nested scopes never overwrite an
// existing id. The returned id is always the one now bound to the context.
func New(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, contextKey{}, id), id
}

// With binds an explicit correlation id to ctx, overwriting any existing one.
// Used to restore a snapshot on the worker side of an async boundary.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the bound correlation id, or "" if none is bound.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
