// Package trace carries the request-correlation id from the HTTP boundary
// into the services so log lines and error bodies can be matched up.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// Header is the request/response header holding the correlation id.
const Header = "X-Request-ID"

type requestIDKey struct{}

// NewID returns a fresh correlation id.
func NewID() string {
	return uuid.NewString()
}

// WithRequestID returns a child context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// FromContext extracts the correlation id from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
