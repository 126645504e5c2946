package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/flowry/internal/metrics"
)

type ctxKey int

const ownerKey ctxKey = iota

// OwnerFromContext returns the authenticated owner of a request
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

func withOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware resolves the bearer token or X-API-Key to an owner
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			token = r.Header.Get("X-API-Key")
		}
		token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))

		owner, err := s.deps.Auth.Authenticate(token)
		if err != nil {
			if !errors.Is(err, ErrMissingToken) {
				s.logger.Warn("unauthorized API request",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
			}
			sendError(w, http.StatusUnauthorized, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), owner)))
	})
}

// rateLimitMiddleware applies the AI request quota of the authenticated owner
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		owner := OwnerFromContext(r.Context())
		result, err := s.deps.Limiter.Allow(r.Context(), owner)
		if err != nil {
			// fail open
			s.logger.Error("rate limit check failed", "owner", owner, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			metrics.IncRateLimitExceeded(string(result.DeniedBy))
			s.logger.Warn("rate limit exceeded",
				"owner", owner,
				"level", result.DeniedBy,
				"retry_after", result.RetryAfter,
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			sendError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if result.Remaining >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		next.ServeHTTP(w, r)
	})
}
