// Package mono is the outbound client for the Mono Prove API.
package mono

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// SecretKeyHeader authenticates every call.
	SecretKeyHeader = "mono-sec-key"

	// StatusSuccessful and StatusFailed are the envelope statuses Mono reports.
	StatusSuccessful = "successful"
	StatusFailed     = "failed"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client calls Mono Prove. Each call is single-shot with the client timeout.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a Mono Prove client.
func NewClient(baseURL, secretKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity is the government identifier submitted with the customer.
type Identity struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// Customer is the person being verified.
type Customer struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Address  string   `json:"address"`
	Identity Identity `json:"identity"`
}

// InitiateRequest is the body of POST /v1/prove/initiate.
type InitiateRequest struct {
	Reference    string   `json:"reference"`
	RedirectURL  string   `json:"redirect_url"`
	KYCLevel     string   `json:"kyc_level"`
	BankAccounts bool     `json:"bank_accounts"`
	Customer     Customer `json:"customer"`
}

// InitiateData is the data block of a successful initiation.
type InitiateData struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	MonoURL       string `json:"mono_url"`
	Reference     string `json:"reference"`
	RedirectURL   string `json:"redirect_url"`
	BankAccounts  bool   `json:"bank_accounts"`
	KYCLevel      string `json:"kyc_level"`
	IsBlacklisted bool   `json:"is_blacklisted"`
}

// Response is Mono's standard envelope. Raw holds the full body as received.
type Response struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// InitiateResponse is the decoded initiation envelope.
type InitiateResponse struct {
	Response
	Initiation InitiateData
}

// Action is a whitelist/blacklist instruction for a customer.
type Action string

const (
	ActionWhitelist Action = "whitelist"
	ActionBlacklist Action = "blacklist"
)

// ActionRequest is the body of PATCH /v1/prove/customers/{reference}.
type ActionRequest struct {
	Action Action `json:"action"`
	Reason string `json:"reason,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Initiate starts a Prove session and returns the hosted mono_url.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/prove/initiate", req)
	if err != nil {
		return nil, err
	}
	out := &InitiateResponse{Response: *resp}
	if resp.Status != StatusSuccessful {
		return out, nil
	}
	if err := json.Unmarshal(resp.Data, &out.Initiation); err != nil {
		return nil, NewProviderError(ErrorBadData, http.StatusOK, "decode initiate data", err)
	}
	if out.Initiation.Reference == "" || out.Initiation.MonoURL == "" {
		return nil, NewProviderError(ErrorBadData, http.StatusOK, "initiate response missing reference or mono_url", nil)
	}
	return out, nil
}

// GetCustomer fetches the customer details Mono holds for a reference.
func (c *Client) GetCustomer(ctx context.Context, reference string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/v1/prove/customers/"+url.PathEscape(reference), nil)
}

// RevokeDataAccess withdraws this business's access to the customer's data.
func (c *Client) RevokeDataAccess(ctx context.Context, reference string) (*Response, error) {
	return c.do(ctx, http.MethodPatch, "/v1/prove/customers/"+url.PathEscape(reference)+"/revoke", nil)
}

// WhitelistOrBlacklist updates the customer's standing with Mono.
func (c *Client) WhitelistOrBlacklist(ctx context.Context, reference string, req ActionRequest) (*Response, error) {
	return c.do(ctx, http.MethodPatch, "/v1/prove/customers/"+url.PathEscape(reference), req)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, NewProviderError(ErrorInternal, 0, "marshal request body", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, NewProviderError(ErrorInternal, 0, "build request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, NewProviderError(ErrorProviderOutage, resp.StatusCode, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.handleErrorResponse(resp.StatusCode, raw)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, NewProviderError(ErrorBadData, resp.StatusCode, "decode response envelope", err)
	}
	out.Raw = json.RawMessage(raw)
	if out.Status == StatusFailed {
		return &out, NewProviderError(ErrorRejected, resp.StatusCode, out.Message, nil)
	}
	return &out, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(SecretKeyHeader, c.secretKey)
}

// handleErrorResponse maps a non-2xx answer to a ProviderError, keeping
// Mono's message when the body carries one.
func (c *Client) handleErrorResponse(status int, raw []byte) error {
	var env struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &env)
	message := env.Message
	if message == "" {
		message = fmt.Sprintf("mono returned status %d", status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewProviderError(ErrorAuthentication, status, message, nil)
	case status == http.StatusNotFound:
		return NewProviderError(ErrorNotFound, status, message, nil)
	case status == http.StatusTooManyRequests:
		return NewProviderError(ErrorRateLimited, status, message, nil)
	case status >= 500:
		return NewProviderError(ErrorProviderOutage, status, message, nil)
	default:
		return NewProviderError(ErrorRejected, status, message, nil)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, 0, "request timed out", err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(ErrorTimeout, 0, "request timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, 0, "request failed", err)
}
