package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Khrees2412/provepoc/internal/ratelimit/models"
	"github.com/Khrees2412/provepoc/pkg/platform/httputil"
	"github.com/Khrees2412/provepoc/pkg/requestcontext"
)

// Store counts requests per key within a window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// Middleware limits requests per client IP. A failing primary store falls
// back to the in-memory store and marks responses as degraded.
type Middleware struct {
	primary  Store
	fallback Store
	breaker  *breaker
	limit    int
	window   time.Duration
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithFallback sets the store used while the primary is failing.
func WithFallback(s Store) Option {
	return func(m *Middleware) {
		m.fallback = s
	}
}

// WithDisabled disables rate limiting entirely (for local demos).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithBreakerThresholds overrides how many failures open the circuit and
// how many successes close it.
func WithBreakerThresholds(failures, successes int) Option {
	return func(m *Middleware) {
		m.breaker = newBreaker(failures, successes)
	}
}

func New(primary Store, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		breaker: newBreaker(5, 3),
		limit:   limit,
		window:  window,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.limit <= 0 {
		m.disabled = true
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit returns middleware enforcing the limit for one scope, such as
// "initiate". Limiter errors fail open.
func (m *Middleware) RateLimit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			result, degraded, err := m.check(ctx, models.Key(scope, ip))
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"request_id", requestcontext.RequestID(ctx),
					"scope", scope,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}
			if !result.Allowed {
				m.logger.InfoContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"scope", scope,
					"client_ip", ip,
				)
				writeRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) check(ctx context.Context, key string) (*models.Result, bool, error) {
	result, err := m.primary.Allow(ctx, key, m.limit, m.window)
	trusted, changed := m.breaker.observe(err)
	if changed {
		if trusted {
			m.logger.InfoContext(ctx, "rate limit store recovered")
		} else {
			m.logger.WarnContext(ctx, "rate limit store failing, using in-memory fallback", "error", err)
		}
	}
	if trusted {
		return result, false, nil
	}
	if m.fallback == nil {
		return result, false, err
	}
	fb, fbErr := m.fallback.Allow(ctx, key, m.limit, m.window)
	return fb, true, fbErr
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests from this IP address. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
