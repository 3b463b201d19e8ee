package testutil

import (
	"context"
	"net/http"
	"time"

	"medisupply/pkg/requestcontext"
)

// WithRequestTime pins the request clock, simulating the request-time
// middleware.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithRequestID adds a correlation ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// FixedContext returns a background context with a pinned clock.
func FixedContext(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}
