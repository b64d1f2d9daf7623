package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Khrees2412/provepoc/internal/provider/mono"
	"github.com/Khrees2412/provepoc/internal/verification/metrics"
	"github.com/Khrees2412/provepoc/internal/verification/models"
	"github.com/Khrees2412/provepoc/internal/verification/service"
	"github.com/Khrees2412/provepoc/internal/verification/store"
	"github.com/Khrees2412/provepoc/internal/verification/webhook"
	dErrors "github.com/Khrees2412/provepoc/pkg/domain-errors"
	"github.com/Khrees2412/provepoc/pkg/platform/httputil"
	"github.com/Khrees2412/provepoc/pkg/requestcontext"
)

const (
	maxWebhookBytes = 1 << 20
	maxListLimit    = 200
)

// Service defines the verification operations exposed over HTTP.
type Service interface {
	Initiate(ctx context.Context, cmd service.InitiateCommand) (*service.InitiateResult, error)
	ApplyEvent(ctx context.Context, ev webhook.Event) (*service.ApplyResult, error)
	GetStatus(ctx context.Context, reference string) (*service.StatusResult, error)
	List(ctx context.Context, limit int) ([]*models.Verification, error)
	GetCustomer(ctx context.Context, reference string) (*mono.Response, error)
	RevokeDataAccess(ctx context.Context, reference string) (*mono.Response, error)
	UpdateCustomerStanding(ctx context.Context, reference string, req mono.ActionRequest) (*mono.Response, error)
}

// Handler wires verification endpoints to the verification service.
type Handler struct {
	service       Service
	verifier      webhook.Verifier
	logger        *slog.Logger
	metrics       *metrics.Metrics
	minLoanAmount int64
}

type Option func(*Handler)

// WithMinLoanAmount raises the smallest loan amount accepted by POST /verify.
func WithMinLoanAmount(kobo int64) Option {
	return func(h *Handler) {
		if kobo > h.minLoanAmount {
			h.minLoanAmount = kobo
		}
	}
}

// New constructs a verification handler. A nil verifier rejects every webhook.
func New(svc Service, verifier webhook.Verifier, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		service:       svc,
		verifier:      verifier,
		logger:        logger,
		metrics:       m,
		minLoanAmount: MinLoanAmount,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the public verification endpoints on the router.
// verifyMiddleware wraps POST /verify only, such as a rate limit.
func (h *Handler) Register(r chi.Router, verifyMiddleware ...func(http.Handler) http.Handler) {
	r.With(verifyMiddleware...).Post("/verify", h.HandleVerify)
	r.Get("/status/{reference}", h.HandleStatus)
	r.Post("/webhooks/mono", h.HandleWebhook)
}

// RegisterOperator mounts the operator endpoints. Callers are expected to
// put them behind operator authentication.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Get("/verifications", h.HandleList)
	r.Get("/customers/{reference}", h.HandleGetCustomer)
	r.Delete("/customers/{reference}", h.HandleRevokeCustomer)
	r.Patch("/customers/{reference}", h.HandleUpdateCustomer)
}

// HandleVerify handles POST /verify requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.LoanAmount < h.minLoanAmount {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
			"loan_amount must be at least "+strconv.FormatInt(h.minLoanAmount, 10)))
		return
	}

	result, err := h.service.Initiate(ctx, service.InitiateCommand{
		KYCLevel:     models.KYCLevel(req.KYCLevel),
		BankAccounts: *req.BankAccounts,
		Name:         req.Customer.Name,
		Email:        req.Customer.Email,
		Address:      req.Customer.Address,
		IDType:       models.IDType(req.Customer.Identity.Type),
		IDNumber:     req.Customer.Identity.Number,
		LoanAmount:   req.LoanAmount,
		RedirectURL:  req.RedirectURL,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to initiate verification",
			"request_id", requestID,
			"kyc_level", req.KYCLevel,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verification request accepted",
		"request_id", requestID,
		"mono_reference", result.Reference,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, verifyEnvelope(result))
}

// HandleStatus handles GET /status/{reference} requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference, ok := h.reference(w, r)
	if !ok {
		return
	}

	result, err := h.service.GetStatus(ctx, reference)
	if err != nil {
		h.logger.InfoContext(ctx, "loan status unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"mono_reference", reference,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusEnvelope(result))
}

// HandleWebhook handles POST /webhooks/mono.
//
// Requests without a credential are refused before the body is read. The
// body is read once and authenticated over its exact bytes before any JSON
// parsing or store access.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if h.verifier == nil || !h.verifier.Presented(r.Header) {
		h.rejectSignature(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "webhook body too large"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read webhook body"))
		return
	}

	if h.verifier.Verify(r.Header, body) != nil {
		h.rejectSignature(w, r)
		return
	}

	result, err := h.service.ApplyEvent(ctx, webhook.Parse(body))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to process webhook",
				"request_id", requestID,
				"error", err,
			)
		} else {
			h.logger.InfoContext(ctx, "webhook rejected",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, webhookEnvelope(result))
}

func (h *Handler) rejectSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.metrics.IncSignatureFailure()
	h.logger.WarnContext(ctx, "webhook signature rejected",
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", requestcontext.ClientIP(ctx),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid signature"))
}

// HandleList handles GET /verifications?limit=n.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := store.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 200"))
			return
		}
		limit = n
	}

	out, err := h.service.List(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list verifications",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Envelope{
		Success: true,
		Message: "Verifications fetched successfully",
		Data:    toVerificationList(out),
	})
}

// HandleGetCustomer handles GET /customers/{reference}.
func (h *Handler) HandleGetCustomer(w http.ResponseWriter, r *http.Request) {
	reference, ok := h.reference(w, r)
	if !ok {
		return
	}
	h.writeCustomer(w, r, "get customer", func(ctx context.Context) (*mono.Response, error) {
		return h.service.GetCustomer(ctx, reference)
	})
}

// HandleRevokeCustomer handles DELETE /customers/{reference}.
func (h *Handler) HandleRevokeCustomer(w http.ResponseWriter, r *http.Request) {
	reference, ok := h.reference(w, r)
	if !ok {
		return
	}
	h.writeCustomer(w, r, "revoke data access", func(ctx context.Context) (*mono.Response, error) {
		return h.service.RevokeDataAccess(ctx, reference)
	})
}

// HandleUpdateCustomer handles PATCH /customers/{reference}.
func (h *Handler) HandleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference, ok := h.reference(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CustomerActionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.writeCustomer(w, r, "update customer standing", func(ctx context.Context) (*mono.Response, error) {
		return h.service.UpdateCustomerStanding(ctx, reference, req.toProvider())
	})
}

func (h *Handler) writeCustomer(w http.ResponseWriter, r *http.Request, action string, call func(context.Context) (*mono.Response, error)) {
	ctx := r.Context()
	resp, err := call(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "customer request failed",
			"request_id", requestcontext.RequestID(ctx),
			"operator_id", requestcontext.OperatorID(ctx),
			"action", action,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, customerEnvelope(resp))
}

func (h *Handler) reference(w http.ResponseWriter, r *http.Request) (string, bool) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" || len(reference) > 128 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "reference is required"))
		return "", false
	}
	return reference, true
}
