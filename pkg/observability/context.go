package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDCtxKey contextKey = "correlation_id"
	requestIDCtxKey     contextKey = "request_id"
)

// Attribute keys shared between the request middleware and log records, so
// dashboards can filter on one spelling.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
	DurationKey      = "duration_ms"
	StatusKey        = "status"
)

// WithCorrelationID stores a correlation ID on the context, minting one
// when the caller has none to propagate.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, correlationIDCtxKey, id)
}

// CorrelationIDFromContext returns the correlation ID, or "" if unset.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, correlationIDCtxKey)
}

// WithRequestID stores a request ID on the context, minting one when empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext returns the request ID, or "" if unset.
func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDCtxKey)
}

// NewRequestContext stamps a fresh request ID and either adopts the
// caller-supplied correlation ID or mints one. Every inbound HTTP request
// passes through here before any handler logging happens.
func NewRequestContext(ctx context.Context, callerCorrelationID string) context.Context {
	ctx = WithRequestID(ctx, "")
	return WithCorrelationID(ctx, callerCorrelationID)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
