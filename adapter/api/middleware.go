package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/subtrackhq/subtrack/pkg/observability"
)

// TokenVerifier checks a bearer token and returns the authenticated user ID.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

type contextKey string

const userIDKey contextKey = "userID"

// requireAuth returns a middleware that rejects requests without a valid
// bearer token and stores the user ID in the request context.
func requireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("rejected bearer token", "error", err)
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next(w, r.WithContext(ctx))
		}
	}
}

// authenticatedUser returns the user ID stored by requireAuth.
func authenticatedUser(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestContext assigns request and correlation IDs to every request
// and writes an access log line when it completes. An X-Correlation-ID
// header from the caller is propagated; otherwise one is generated.
func withRequestContext(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.NewRequestContext(r.Context(), r.Header.Get("X-Correlation-ID"))

			correlationID := observability.CorrelationIDFromContext(ctx)
			w.Header().Set("X-Correlation-ID", correlationID)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(recorder, r.WithContext(ctx))

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				observability.StatusKey, recorder.status,
				observability.DurationKey, time.Since(start).Milliseconds(),
				observability.CorrelationIDKey, correlationID,
				observability.RequestIDKey, observability.RequestIDFromContext(ctx),
			)
		})
	}
}
