package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Khrees2412/provepoc/internal/provider/mono"
	"github.com/Khrees2412/provepoc/internal/verification/decision"
	"github.com/Khrees2412/provepoc/internal/verification/events"
	"github.com/Khrees2412/provepoc/internal/verification/metrics"
	"github.com/Khrees2412/provepoc/internal/verification/models"
	"github.com/Khrees2412/provepoc/internal/verification/webhook"
	dErrors "github.com/Khrees2412/provepoc/pkg/domain-errors"
	"github.com/Khrees2412/provepoc/pkg/platform/sentinel"
	"github.com/Khrees2412/provepoc/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks VerificationStore,Provider,EventPublisher

// ReferencePrefix prefixes the reference we send to Mono for each loan request.
const ReferencePrefix = "loan-request-"

type VerificationStore interface {
	Insert(ctx context.Context, v *models.Verification) error
	FindByReference(ctx context.Context, reference string) (*models.Verification, error)
	Transition(ctx context.Context, reference string, to models.Status, from []models.Status, raw json.RawMessage, customerID string, now time.Time) (*models.Verification, bool, error)
	List(ctx context.Context, limit int) ([]*models.Verification, error)
}

type Provider interface {
	Initiate(ctx context.Context, req mono.InitiateRequest) (*mono.InitiateResponse, error)
	GetCustomer(ctx context.Context, reference string) (*mono.Response, error)
	RevokeDataAccess(ctx context.Context, reference string) (*mono.Response, error)
	WhitelistOrBlacklist(ctx context.Context, reference string, req mono.ActionRequest) (*mono.Response, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.LifecycleEvent) error
}

// Service runs the verification lifecycle: initiation with Mono, webhook
// transitions, and the status read model used for loan decisions.
type Service struct {
	store       VerificationStore
	provider    Provider
	publisher   EventPublisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	policy      models.TieBreak
	redirectURL string
	newID       func() string
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithTieBreak selects how conflicting terminal events are resolved.
func WithTieBreak(policy models.TieBreak) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithRedirectURL sets the default page Mono sends the customer back to.
func WithRedirectURL(u string) Option {
	return func(s *Service) {
		s.redirectURL = u
	}
}

// WithIDGenerator overrides record id generation. Tests use it for stable references.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New constructs a Service.
func New(store VerificationStore, provider Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/Khrees2412/provepoc/internal/verification/service"),
		policy:   models.LastDeliveredWins,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy reports the configured tie-break.
func (s *Service) Policy() models.TieBreak {
	return s.policy
}

// InitiateCommand is a validated request to start a verification.
type InitiateCommand struct {
	KYCLevel     models.KYCLevel
	BankAccounts bool
	Name         string
	Email        string
	Address      string
	IDType       models.IDType
	IDNumber     string
	LoanAmount   int64
	RedirectURL  string
}

// InitiateResult carries what the applicant needs to continue with Mono.
type InitiateResult struct {
	Reference    string
	MonoURL      string
	Verification *models.Verification
}

// Initiate asks Mono for a Prove session and records a pending verification.
// Nothing is persisted unless Mono reports the session as successful.
func (s *Service) Initiate(ctx context.Context, cmd InitiateCommand) (*InitiateResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.initiate",
		trace.WithAttributes(attribute.String("kyc_level", string(cmd.KYCLevel))))
	defer span.End()

	id := s.newID()
	redirectURL := cmd.RedirectURL
	if redirectURL == "" {
		redirectURL = s.redirectURL
	}

	start := time.Now()
	resp, err := s.provider.Initiate(ctx, mono.InitiateRequest{
		Reference:    ReferencePrefix + id,
		RedirectURL:  redirectURL,
		KYCLevel:     string(cmd.KYCLevel),
		BankAccounts: cmd.BankAccounts,
		Customer: mono.Customer{
			Name:     cmd.Name,
			Email:    cmd.Email,
			Address:  cmd.Address,
			Identity: mono.Identity{Type: string(cmd.IDType), Number: cmd.IDNumber},
		},
	})
	s.metrics.ObserveProviderLatency("initiate", time.Since(start))
	if err != nil {
		recordSpanError(span, err)
		return nil, s.providerError(ctx, "initiate", err)
	}
	if resp.Status != mono.StatusSuccessful {
		err := dErrors.New(dErrors.CodeUpstream, "verification provider did not start the session")
		recordSpanError(span, err)
		return nil, err
	}

	level := models.KYCLevel(resp.Initiation.KYCLevel)
	if !level.IsValid() {
		level = cmd.KYCLevel
	}
	now := requestcontext.Now(ctx)
	v, err := models.NewVerification(models.NewVerificationParams{
		ID:            id,
		FullName:      cmd.Name,
		Email:         cmd.Email,
		IDType:        cmd.IDType,
		IDValue:       cmd.IDNumber,
		LoanAmount:    cmd.LoanAmount,
		KYCLevel:      level,
		IsBlacklisted: resp.Initiation.IsBlacklisted,
		BankAccounts:  resp.Initiation.BankAccounts,
		CustomerID:    resp.Initiation.Customer,
		MonoReference: resp.Initiation.Reference,
		RawResponse:   resp.Raw,
	}, now)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if err := s.store.Insert(ctx, v); err != nil {
		recordSpanError(span, err)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "verification reference already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verification")
	}

	span.SetAttributes(attribute.String("mono_reference", v.MonoReference))
	s.metrics.IncInitiation(string(v.KYCLevel))
	s.logger.InfoContext(ctx, "verification initiated",
		"request_id", requestcontext.RequestID(ctx),
		"verification_id", v.ID,
		"mono_reference", v.MonoReference,
		"kyc_level", v.KYCLevel,
	)
	s.publish(ctx, events.TypeCreated, v)

	return &InitiateResult{
		Reference:    v.MonoReference,
		MonoURL:      resp.Initiation.MonoURL,
		Verification: v,
	}, nil
}

// ApplyResult reports what a webhook event did.
type ApplyResult struct {
	Event     string
	Reference string
	Outcome   models.Outcome
	Status    models.Status
}

// ApplyEvent drives the state machine with one authenticated webhook event.
//
// Terminal events become a single conditional store update guarded by the
// statuses the tie-break policy allows. A record already in the target
// status is a no-op; under FirstTerminalWins a different terminal event is
// ignored. Initiated events are acknowledged without touching the store.
// Unknown references never create records.
func (s *Service) ApplyEvent(ctx context.Context, ev webhook.Event) (*ApplyResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.apply_event",
		trace.WithAttributes(attribute.String("event", ev.Name())))
	defer span.End()

	switch e := ev.(type) {
	case webhook.Unrecognized:
		s.metrics.IncWebhookOutcome("unrecognized", "rejected")
		return nil, dErrors.New(dErrors.CodeUnrecognizedEvent, "unrecognized event")
	case webhook.Malformed:
		s.metrics.IncWebhookOutcome(e.EventName, "rejected")
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed event: "+e.Reason)
	case webhook.Initiated:
		s.metrics.IncWebhookOutcome(e.Name(), string(models.OutcomeAcknowledged))
		return &ApplyResult{
			Event:     e.Name(),
			Reference: e.Reference,
			Outcome:   models.OutcomeAcknowledged,
			Status:    models.StatusPending,
		}, nil
	case webhook.TerminalEvent:
		return s.applyTerminal(ctx, span, e)
	}
	return nil, dErrors.New(dErrors.CodeUnrecognizedEvent, "unrecognized event")
}

func (s *Service) applyTerminal(ctx context.Context, span trace.Span, e webhook.TerminalEvent) (*ApplyResult, error) {
	reference := e.MonoReference()
	target := e.Target()
	span.SetAttributes(attribute.String("mono_reference", reference), attribute.String("target_status", string(target)))

	v, applied, err := s.store.Transition(ctx, reference, target, s.policy.SourcesFor(target),
		e.Payload(), e.CustomerID(), requestcontext.Now(ctx))
	if err != nil {
		recordSpanError(span, err)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncWebhookOutcome(e.Name(), "not_found")
			return nil, dErrors.New(dErrors.CodeNotFound, "verification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply verification event")
	}

	outcome := models.Resolve(applied, v.Status, target)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	s.metrics.IncWebhookOutcome(e.Name(), string(outcome))

	logArgs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"event", e.Name(),
		"mono_reference", reference,
		"status", v.Status,
		"outcome", outcome,
	}
	if outcome == models.OutcomeIgnored {
		s.logger.WarnContext(ctx, "terminal event ignored for already terminal verification", logArgs...)
	} else {
		s.logger.InfoContext(ctx, "verification event processed", logArgs...)
	}
	if applied {
		s.publish(ctx, events.TypeStatusChanged, v)
	}

	return &ApplyResult{
		Event:     e.Name(),
		Reference: reference,
		Outcome:   outcome,
		Status:    v.Status,
	}, nil
}

// StatusResult is the loan decision for a verified record.
type StatusResult struct {
	Verification *models.Verification
	Decision     decision.Decision
	Message      string
}

// GetStatus evaluates the loan decision. Records that are not verified have
// no decision.
func (s *Service) GetStatus(ctx context.Context, reference string) (*StatusResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.get_status",
		trace.WithAttributes(attribute.String("mono_reference", reference)))
	defer span.End()

	v, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		recordSpanError(span, err)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Verification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	if !v.IsVerified() {
		return nil, dErrors.New(dErrors.CodeNotCompleted, "Verification not completed or expired")
	}

	d := decision.Decide(v.KYCLevel, v.LoanAmount)
	s.metrics.IncDecision(string(v.KYCLevel), string(d))
	span.SetAttributes(attribute.String("decision", string(d)))

	return &StatusResult{
		Verification: v,
		Decision:     d,
		Message:      decision.Message(v.LoanAmount, d),
	}, nil
}

// List returns the most recent verifications for operators.
func (s *Service) List(ctx context.Context, limit int) ([]*models.Verification, error) {
	out, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	return out, nil
}

// GetCustomer proxies Mono's customer lookup.
func (s *Service) GetCustomer(ctx context.Context, reference string) (*mono.Response, error) {
	return s.callProvider(ctx, "get_customer", reference, func(ctx context.Context) (*mono.Response, error) {
		return s.provider.GetCustomer(ctx, reference)
	})
}

// RevokeDataAccess withdraws access to the customer's data at Mono.
func (s *Service) RevokeDataAccess(ctx context.Context, reference string) (*mono.Response, error) {
	return s.callProvider(ctx, "revoke_data_access", reference, func(ctx context.Context) (*mono.Response, error) {
		return s.provider.RevokeDataAccess(ctx, reference)
	})
}

// UpdateCustomerStanding whitelists or blacklists the customer at Mono.
func (s *Service) UpdateCustomerStanding(ctx context.Context, reference string, req mono.ActionRequest) (*mono.Response, error) {
	return s.callProvider(ctx, "update_customer_standing", reference, func(ctx context.Context) (*mono.Response, error) {
		return s.provider.WhitelistOrBlacklist(ctx, reference, req)
	})
}

func (s *Service) callProvider(ctx context.Context, operation, reference string, call func(context.Context) (*mono.Response, error)) (*mono.Response, error) {
	ctx, span := s.tracer.Start(ctx, "verification."+operation,
		trace.WithAttributes(attribute.String("mono_reference", reference)))
	defer span.End()

	start := time.Now()
	resp, err := call(ctx)
	s.metrics.ObserveProviderLatency(operation, time.Since(start))
	if err != nil {
		recordSpanError(span, err)
		return nil, s.providerError(ctx, operation, err)
	}
	s.logger.InfoContext(ctx, "mono customer operation completed",
		"request_id", requestcontext.RequestID(ctx),
		"operator_id", requestcontext.OperatorID(ctx),
		"operation", operation,
		"mono_reference", reference,
	)
	return resp, nil
}

// providerError translates a Mono failure into a client-facing error.
// Rejections keep Mono's message; everything else is a gateway failure.
func (s *Service) providerError(ctx context.Context, operation string, err error) error {
	s.logger.WarnContext(ctx, "mono request failed",
		"request_id", requestcontext.RequestID(ctx),
		"operation", operation,
		"category", mono.GetCategory(err),
		"error", err,
	)
	var pe *mono.ProviderError
	if !errors.As(err, &pe) {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "verification provider request failed")
	}
	switch pe.Category {
	case mono.ErrorRejected:
		msg := strings.TrimSpace(pe.Message)
		if msg == "" {
			msg = "verification provider rejected the request"
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, msg)
	case mono.ErrorNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, "customer not found at verification provider")
	case mono.ErrorTimeout:
		return dErrors.Wrap(err, dErrors.CodeUpstream, "verification provider timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeUpstream, "verification provider unavailable")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, v *models.Verification) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.LifecycleEvent{
		Type:           eventType,
		VerificationID: v.ID,
		MonoReference:  v.MonoReference,
		Status:         string(v.Status),
		KYCLevel:       string(v.KYCLevel),
		OccurredAt:     v.UpdatedAt,
		RequestID:      requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish lifecycle event",
			"request_id", requestcontext.RequestID(ctx),
			"type", eventType,
			"mono_reference", v.MonoReference,
			"error", err,
		)
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
