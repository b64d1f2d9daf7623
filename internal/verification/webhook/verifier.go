package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
	SignatureHeader = "x-mono-signature"
	// SecretHeader carries the shared webhook secret in secret mode.
	SecretHeader = "mono-webhook-secret"
)

// ErrInvalidSignature is the only error a verifier returns. Callers answer 401
// without saying which check failed.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verifier authenticates an inbound webhook before anything reads its body.
type Verifier interface {
	// Presented reports whether the request carries a credential at all, so
	// callers can refuse unsigned requests without reading the body.
	Presented(header http.Header) bool
	Verify(header http.Header, body []byte) error
}

// HMACVerifier checks SignatureHeader against HMAC-SHA256(secret, body) over
// the exact bytes received.
type HMACVerifier struct {
	Secret string
}

func (HMACVerifier) Presented(header http.Header) bool {
	return strings.TrimSpace(header.Get(SignatureHeader)) != ""
}

func (v HMACVerifier) Verify(header http.Header, body []byte) error {
	secret := strings.TrimSpace(v.Secret)
	signature := strings.TrimSpace(header.Get(SignatureHeader))
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare(decoded, Sign(secret, body)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// SecretVerifier compares SecretHeader with the configured secret.
type SecretVerifier struct {
	Secret string
}

func (SecretVerifier) Presented(header http.Header) bool {
	return strings.TrimSpace(header.Get(SecretHeader)) != ""
}

func (v SecretVerifier) Verify(header http.Header, _ []byte) error {
	expected := strings.TrimSpace(v.Secret)
	actual := strings.TrimSpace(header.Get(SecretHeader))
	if expected == "" || actual == "" {
		return ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// NewVerifier selects a verifier by mode: "hmac" or "secret".
func NewVerifier(mode, secret string) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "hmac":
		return HMACVerifier{Secret: secret}, nil
	case "secret":
		return SecretVerifier{Secret: secret}, nil
	}
	return nil, fmt.Errorf("unknown webhook auth mode %q", mode)
}

// Sign returns the raw HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// SignHex is Sign encoded the way SignatureHeader expects.
func SignHex(secret string, body []byte) string {
	return hex.EncodeToString(Sign(secret, body))
}
