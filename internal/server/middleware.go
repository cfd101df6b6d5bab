package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/iotfleet/usergate/internal/api"
	"github.com/iotfleet/usergate/internal/appctx"
	"github.com/iotfleet/usergate/internal/identity"
)

// requestLoggerMiddleware attaches a request-scoped logger to the context.
// The attached fields are inherited by the access log and by any handler
// using appctx.GetLogger.
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := s.logger.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path, // path only, no query string
			"client_ip", s.trustedProxies.GetClientIPString(r),
		)

		ctx := appctx.WithLogger(r.Context(), reqLogger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLogMiddleware logs one line per completed request.
func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			appctx.GetLogger(r.Context()).Info("request",
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// keyAuthMiddleware enforces function-key authentication on the command
// endpoint. Auth mode "off" admits every caller.
func (s *Server) keyAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.KeyAuth.Verify(r.Header.Get(identity.KeyHeader)); err != nil {
			appctx.GetLogger(r.Context()).Warn("rejected unauthenticated request")
			api.WriteError(w, http.StatusUnauthorized, api.ReasonUnauthenticated,
				"invalid or missing function key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// simpleRateLimiter is an in-memory fixed-window rate limiter per key.
type simpleRateLimiter struct {
	mu       sync.Mutex
	counters map[string]*limitCounter
	limit    int
	burst    int
	window   time.Duration
}

type limitCounter struct {
	count   int
	resetAt time.Time
}

func newSimpleRateLimiter(requestsPerMinute, burst int) *simpleRateLimiter {
	return &simpleRateLimiter{
		counters: make(map[string]*limitCounter),
		limit:    requestsPerMinute,
		burst:    burst,
		window:   time.Minute,
	}
}

func (l *simpleRateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	counter, exists := l.counters[key]
	if !exists || now.After(counter.resetAt) {
		l.counters[key] = &limitCounter{
			count:   1,
			resetAt: now.Add(l.window),
		}
		return true
	}

	if counter.count < l.limit+l.burst {
		counter.count++
		return true
	}
	return false
}

// rateLimitMiddleware limits requests per client IP on the wrapped routes.
func (s *Server) rateLimitMiddleware(requestsPerMinute, burst int) func(next http.Handler) http.Handler {
	limiter := newSimpleRateLimiter(requestsPerMinute, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := s.trustedProxies.GetClientIPString(r)
			if !limiter.allow(clientIP) {
				s.logger.Warn("rate limit exceeded",
					"path", r.URL.Path,
					"client_ip", clientIP,
				)
				w.Header().Set("Retry-After", "60")
				api.WriteError(w, http.StatusTooManyRequests, api.ReasonRateLimited,
					"too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
