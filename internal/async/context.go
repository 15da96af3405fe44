// Package async models the two execution contexts of an ASGI-style server.
//
// Handlers wrapped by Middleware run as event-loop tasks. Blocking operations
// call EnsureSync first and are refused inside a task. Work that needs to block
// is handed to an Executor, whose single worker goroutine is the synchronous-safe
// boundary.
package async

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type eventLoopKey struct{}

var ErrSynchronousOnly = errors.New("synchronous-only operation")

// SynchronousOnlyError is returned when a blocking operation is attempted from an event-loop task.
type SynchronousOnlyError struct {
	Operation string
}

func (e *SynchronousOnlyError) Error() string {
	return fmt.Sprintf(
		"SynchronousOnlyOperation: You cannot call this from an async context - use a thread or SyncToAsync. (operation: %s)",
		e.Operation,
	)
}

func (e *SynchronousOnlyError) Is(target error) bool {
	return target == ErrSynchronousOnly
}

// WithEventLoop marks ctx as running inside an event-loop task.
func WithEventLoop(ctx context.Context) context.Context {
	return context.WithValue(ctx, eventLoopKey{}, true)
}

func withoutEventLoop(ctx context.Context) context.Context {
	return context.WithValue(ctx, eventLoopKey{}, false)
}

func InEventLoop(ctx context.Context) bool {
	inLoop, _ := ctx.Value(eventLoopKey{}).(bool)
	return inLoop
}

// EnsureSync returns a *SynchronousOnlyError when ctx belongs to an event-loop task.
func EnsureSync(ctx context.Context, operation string) error {
	if InEventLoop(ctx) {
		return &SynchronousOnlyError{Operation: operation}
	}
	return nil
}

// Middleware runs next as an async view.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithEventLoop(r.Context())))
	})
}
