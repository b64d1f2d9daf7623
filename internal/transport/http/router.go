// Package httptransport assembles the chi router: shared middleware, health
// and metrics endpoints, and the verification routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Khrees2412/provepoc/internal/platform/metrics"
	"github.com/Khrees2412/provepoc/internal/platform/middleware"
	ratelimit "github.com/Khrees2412/provepoc/internal/ratelimit/middleware"
	"github.com/Khrees2412/provepoc/internal/verification/handler"
	"github.com/Khrees2412/provepoc/pkg/platform/httputil"
	"github.com/Khrees2412/provepoc/pkg/platform/middleware/metadata"
	"github.com/Khrees2412/provepoc/pkg/platform/middleware/request"
	"github.com/Khrees2412/provepoc/pkg/platform/middleware/requesttime"
)

// InitiateScope names the rate limit bucket for POST /verify.
const InitiateScope = "initiate"

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps carries everything the router mounts.
type Deps struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Verification *handler.Handler
	RateLimit    *ratelimit.Middleware
	Operator     middleware.TokenValidator
	HealthChecks map[string]HealthCheck

	// TrustedProxies may set the client IP through X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// NewRouter wires all endpoints behind the shared middleware chain.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(d.TrustedProxies...))
	r.Use(request.Logger(d.Logger, d.Metrics))

	r.Get("/health", health(d.HealthChecks))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	var verifyMiddleware []func(http.Handler) http.Handler
	if d.RateLimit != nil {
		verifyMiddleware = append(verifyMiddleware, d.RateLimit.RateLimit(InitiateScope))
	}
	d.Verification.Register(r, verifyMiddleware...)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOperator(d.Operator, d.Logger))
		d.Verification.RegisterOperator(r)
	})
	return r
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		body := map[string]any{"status": "ok", "checks": results}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		httputil.WriteJSON(w, status, body)
	}
}
