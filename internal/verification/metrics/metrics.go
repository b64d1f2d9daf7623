package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Webhook outcomes by event name and outcome (applied, noop, ignored, acknowledged, rejected)
	WebhookOutcomes *prometheus.CounterVec

	// Webhooks refused at the signature gate
	SignatureFailures prometheus.Counter

	// Loan decisions served by the status endpoint
	Decisions *prometheus.CounterVec

	// Verifications created by kyc level
	Initiations *prometheus.CounterVec

	// Mono API latency by operation
	ProviderLatency *prometheus.HistogramVec
}

// New creates the verification metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provepoc_webhook_events_total",
			Help: "Webhook events by event name and outcome",
		}, []string{"event", "outcome"}),

		SignatureFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "provepoc_webhook_signature_failures_total",
			Help: "Webhooks rejected before processing because authentication failed",
		}),

		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provepoc_loan_decisions_total",
			Help: "Loan decisions by kyc level and decision",
		}, []string{"kyc_level", "decision"}),

		Initiations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provepoc_verifications_initiated_total",
			Help: "Verifications created by kyc level",
		}, []string{"kyc_level"}),

		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provepoc_mono_request_duration_seconds",
			Help:    "Duration of Mono Prove API calls by operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncWebhookOutcome(event, outcome string) {
	if m != nil {
		m.WebhookOutcomes.WithLabelValues(event, outcome).Inc()
	}
}

func (m *Metrics) IncSignatureFailure() {
	if m != nil {
		m.SignatureFailures.Inc()
	}
}

func (m *Metrics) IncDecision(kycLevel, decision string) {
	if m != nil {
		m.Decisions.WithLabelValues(kycLevel, decision).Inc()
	}
}

func (m *Metrics) IncInitiation(kycLevel string) {
	if m != nil {
		m.Initiations.WithLabelValues(kycLevel).Inc()
	}
}

func (m *Metrics) ObserveProviderLatency(operation string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}
