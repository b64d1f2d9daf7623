//go:build integration

package verification

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khrees2412/provepoc/internal/platform/metrics"
	"github.com/Khrees2412/provepoc/internal/provider/mono"
	ratelimit "github.com/Khrees2412/provepoc/internal/ratelimit/middleware"
	"github.com/Khrees2412/provepoc/internal/ratelimit/store/bucket"
	httptransport "github.com/Khrees2412/provepoc/internal/transport/http"
	"github.com/Khrees2412/provepoc/internal/verification/handler"
	verificationMetrics "github.com/Khrees2412/provepoc/internal/verification/metrics"
	"github.com/Khrees2412/provepoc/internal/verification/models"
	"github.com/Khrees2412/provepoc/internal/verification/service"
	"github.com/Khrees2412/provepoc/internal/verification/store"
	"github.com/Khrees2412/provepoc/internal/verification/webhook"
	"github.com/Khrees2412/provepoc/pkg/testutil"
	"github.com/Khrees2412/provepoc/pkg/testutil/containers"
)

const (
	webhookSecret = "whsec_integration"
	monoSecretKey = "live_sk_integration"
)

// fakeMono answers the initiate endpoint the way Mono does and records what
// it was sent.
func fakeMono(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, monoSecretKey, r.Header.Get(mono.SecretKeyHeader))
		if r.URL.Path != "/v1/prove/initiate" {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		var req mono.InitiateRequest
		if err != nil || json.Unmarshal(body, &req) != nil {
			http.Error(w, `{"status":"failed","message":"bad request"}`, http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "successful",
			"message":   "Request completed successfully",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"data": map[string]any{
				"id":             "prv_" + req.Reference,
				"customer":       "cus_integration",
				"mono_url":       "https://prove.mono.co/" + req.Reference,
				"reference":      req.Reference,
				"redirect_url":   req.RedirectURL,
				"bank_accounts":  req.BankAccounts,
				"kyc_level":      req.KYCLevel,
				"is_blacklisted": false,
			},
		})
	}))
}

func newRouter(t *testing.T, policy models.TieBreak) (http.Handler, *store.PostgresStore) {
	t.Helper()
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateTables(t.Context(), "verifications"))

	monoServer := fakeMono(t)
	t.Cleanup(monoServer.Close)

	logger := testutil.DiscardLogger()
	reg := prometheus.NewRegistry()
	vm := verificationMetrics.New(reg)
	st := store.NewPostgres(pg.DB)
	svc := service.New(st, mono.NewClient(monoServer.URL, monoSecretKey),
		service.WithLogger(logger),
		service.WithMetrics(vm),
		service.WithTieBreak(policy),
	)
	return httptransport.NewRouter(httptransport.Deps{
		Logger:       logger,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		Verification: handler.New(svc, webhook.HMACVerifier{Secret: webhookSecret}, logger, vm),
		RateLimit:    ratelimit.New(bucket.NewInMemoryBucketStore(), 100, time.Minute, logger),
	}), st
}

func initiate(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/verify", map[string]any{
		"kyc_level":     "tier_2",
		"bank_accounts": false,
		"customer": map[string]any{
			"name":     "Chidi Okafor",
			"email":    "chidi@example.com",
			"address":  "12 Allen Avenue, Ikeja",
			"identity": map[string]any{"type": "bvn", "number": "22222222222"},
		},
		"loan_amount": 150_000_000,
	}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.UnmarshalResponse[struct {
		Data handler.VerifyData `json:"data"`
	}](t, rr)
	require.NotEmpty(t, resp.Data.Reference)
	return resp.Data.Reference
}

func deliver(t *testing.T, router http.Handler, event, reference string) int {
	t.Helper()
	body := `{"event":"` + event + `","data":{"reference":"` + reference + `","customer":{"id":"cus_integration"}}}`
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/webhooks/mono", body)
	req.Header.Set(webhook.SignatureHeader, webhook.SignHex(webhookSecret, []byte(body)))
	return testutil.DoRequest(router, req).Code
}

func TestInitiateWebhookStatus(t *testing.T) {
	router, st := newRouter(t, models.LastDeliveredWins)
	reference := initiate(t, router)

	v, err := st.FindByReference(t.Context(), reference)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, v.Status)
	assert.Equal(t, "cus_integration", v.CustomerID)

	require.Equal(t, http.StatusOK, deliver(t, router, webhook.EventSuccessful, reference))

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/status/"+reference))
	require.Equal(t, http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[struct {
		Data handler.StatusData `json:"data"`
	}](t, rr)
	assert.Equal(t, "Your application for a loan of 1500000 naira has been Approved", resp.Data.LoanDecision)
}

func TestConcurrentConflictingWebhooks(t *testing.T) {
	router, st := newRouter(t, models.FirstTerminalWins)
	reference := initiate(t, router)

	events := []string{webhook.EventSuccessful, webhook.EventCancelled, webhook.EventExpired}
	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, http.StatusOK, deliver(t, router, events[i%len(events)], reference))
		}()
	}
	wg.Wait()

	v, err := st.FindByReference(t.Context(), reference)
	require.NoError(t, err)
	require.True(t, v.Status.IsTerminal())

	// The first terminal status sticks; later deliveries only confirm it.
	for _, ev := range events {
		require.Equal(t, http.StatusOK, deliver(t, router, ev, reference))
	}
	after, err := st.FindByReference(t.Context(), reference)
	require.NoError(t, err)
	assert.Equal(t, v.Status, after.Status)
	assert.JSONEq(t, string(v.RawResponse), string(after.RawResponse))
}

func TestRejectedWebhookLeavesRecordUntouched(t *testing.T) {
	router, st := newRouter(t, models.LastDeliveredWins)
	reference := initiate(t, router)

	body := `{"event":"` + webhook.EventCancelled + `","data":{"reference":"` + reference + `"}}`
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/webhooks/mono", body)
	req.Header.Set(webhook.SignatureHeader, webhook.SignHex("wrong-secret", []byte(body)))
	rr := testutil.DoRequest(router, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	v, err := st.FindByReference(t.Context(), reference)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, v.Status)
}
