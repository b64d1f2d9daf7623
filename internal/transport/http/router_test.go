package httptransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khrees2412/provepoc/internal/jwt_token"
	"github.com/Khrees2412/provepoc/internal/platform/metrics"
	ratelimit "github.com/Khrees2412/provepoc/internal/ratelimit/middleware"
	"github.com/Khrees2412/provepoc/internal/ratelimit/store/bucket"
	"github.com/Khrees2412/provepoc/internal/verification/handler"
	"github.com/Khrees2412/provepoc/internal/verification/service"
	"github.com/Khrees2412/provepoc/internal/verification/store"
	"github.com/Khrees2412/provepoc/internal/verification/webhook"
	"github.com/Khrees2412/provepoc/pkg/platform/middleware/request"
	"github.com/Khrees2412/provepoc/pkg/testutil"
)

func newTestRouter(t *testing.T, checks map[string]HealthCheck, trusted ...netip.Prefix) (http.Handler, *jwttoken.JWTService) {
	t.Helper()
	logger := testutil.DiscardLogger()
	reg := prometheus.NewRegistry()
	svc := service.New(store.NewInMemoryStore(), nil, service.WithLogger(logger))
	jwtSvc := jwttoken.NewJWTService("operator-signing-key", "provepoc", "provepoc-operators")

	return NewRouter(Deps{
		Logger:         logger,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		Verification:   handler.New(svc, webhook.HMACVerifier{Secret: "whsec"}, logger, nil),
		RateLimit:      ratelimit.New(bucket.NewInMemoryBucketStore(), 2, time.Minute, logger),
		Operator:       jwtSvc,
		HealthChecks:   checks,
		TrustedProxies: trusted,
	}), jwtSvc
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		r, _ := newTestRouter(t, map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/health"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, rr.Header().Get(request.HeaderRequestID))
	})

	t.Run("dependency down", func(t *testing.T) {
		r, _ := newTestRouter(t, map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
		})
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/health"))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), `"redis":"unavailable"`)
		assert.NotContains(t, rr.Body.String(), "refused")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/health"))

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "provepoc_http_requests_total")
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	r, jwtSvc := newTestRouter(t, nil)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/verifications"))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")

	token, err := jwtSvc.GenerateOperatorToken("ops-1", time.Hour)
	require.NoError(t, err)
	req := testutil.NewRequest(t, http.MethodGet, "/verifications")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(r, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestVerifyIsRateLimited(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	for range 2 {
		rr := testutil.DoRequest(r, testutil.NewRequestWithBody(t, http.MethodPost, "/verify", "{}"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}
	rr := testutil.DoRequest(r, testutil.NewRequestWithBody(t, http.MethodPost, "/verify", "{}"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Other routes share no bucket with /verify.
	rr = testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/status/loan-request-unknown"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func verifyFrom(t *testing.T, peer, forwardedFor string) *http.Request {
	t.Helper()
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/verify", "{}")
	req.RemoteAddr = peer
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	return req
}

func TestVerifyRateLimitKeysOnPeer(t *testing.T) {
	t.Run("rotating X-Forwarded-For does not reset the limit", func(t *testing.T) {
		r, _ := newTestRouter(t, nil)

		limited := 0
		for i := range 20 {
			rr := testutil.DoRequest(r, verifyFrom(t, "203.0.113.7:41000", fmt.Sprintf("10.0.0.%d", i)))
			if rr.Code == http.StatusTooManyRequests {
				limited++
			}
		}
		assert.Equal(t, 18, limited)
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		r, _ := newTestRouter(t, nil, netip.MustParsePrefix("10.0.0.0/8"))

		for i := range 5 {
			rr := testutil.DoRequest(r, verifyFrom(t, "10.0.0.2:41000", fmt.Sprintf("198.51.100.%d", i)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		}

		// A spoofed leftmost hop is ignored; the proxy-appended hop is the key.
		for range 2 {
			rr := testutil.DoRequest(r, verifyFrom(t, "10.0.0.2:41000", "1.1.1.1, 198.51.100.200"))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		}
		rr := testutil.DoRequest(r, verifyFrom(t, "10.0.0.2:41000", "9.9.9.9, 198.51.100.200"))
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	})
}
