package requestctx

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// Key is the typed context key used for storing the RequestContext.
var Key contextKey = "asr-gateway/requestctx"

// Context carries the caller-supplied credential through one request. The
// credential is opaque to the gateway and forwarded verbatim to whichever
// backend is selected; it is never stored beyond the request.
type Context struct {
	RequestID     uuid.UUID
	Authorization string
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok
}

// Credential returns the caller credential, or empty when no request
// context is attached.
func Credential(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok && rc != nil {
		return rc.Authorization
	}
	return ""
}
