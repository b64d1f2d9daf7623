package models

import (
	"encoding/json"
	"strings"
	"time"

	dErrors "github.com/Khrees2412/provepoc/pkg/domain-errors"
)

// KYCLevel is the verification tier requested for a customer.
type KYCLevel string

const (
	KYCTier1 KYCLevel = "tier_1"
	KYCTier2 KYCLevel = "tier_2"
	KYCTier3 KYCLevel = "tier_3"
)

func (k KYCLevel) IsValid() bool {
	switch k {
	case KYCTier1, KYCTier2, KYCTier3:
		return true
	}
	return false
}

// IDType is the national identifier submitted for verification.
type IDType string

const (
	IDTypeNIN IDType = "nin"
	IDTypeBVN IDType = "bvn"
)

func (t IDType) IsValid() bool {
	return t == IDTypeNIN || t == IDTypeBVN
}

// IDValueLength is the length of both NIN and BVN numbers.
const IDValueLength = 11

// Verification is the aggregate tracking one KYC verification for one loan request.
//
// Invariants:
//   - ID and CreatedAt are immutable after construction
//   - MonoReference is non-empty and unique across all records
//   - Status starts at pending and only moves along TieBreak.CanTransition
//   - LoanAmount is in kobo
//   - Status and RawResponse always change together
type Verification struct {
	ID            string          `json:"id"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	IDType        IDType          `json:"id_type"`
	IDValue       string          `json:"id_value"`
	LoanAmount    int64           `json:"loan_amount"`
	KYCLevel      KYCLevel        `json:"kyc_level"`
	IsBlacklisted bool            `json:"is_blacklisted"`
	BankAccounts  bool            `json:"bank_accounts"`
	CustomerID    string          `json:"customer_id"`
	Status        Status          `json:"status"`
	MonoReference string          `json:"mono_reference"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewVerificationParams carries the fields known when initiation succeeds.
type NewVerificationParams struct {
	ID            string
	FullName      string
	Email         string
	IDType        IDType
	IDValue       string
	LoanAmount    int64
	KYCLevel      KYCLevel
	IsBlacklisted bool
	BankAccounts  bool
	CustomerID    string
	MonoReference string
	RawResponse   json.RawMessage
}

// NewVerification builds a pending record, checking the aggregate invariants.
func NewVerification(p NewVerificationParams, now time.Time) (*Verification, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verification id cannot be empty")
	}
	if strings.TrimSpace(p.MonoReference) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "mono reference cannot be empty")
	}
	if !p.IDType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "id type must be nin or bvn")
	}
	if len(p.IDValue) != IDValueLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "id value must be 11 characters")
	}
	if !p.KYCLevel.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown kyc level")
	}
	if p.LoanAmount < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "loan amount cannot be negative")
	}
	return &Verification{
		ID:            p.ID,
		FullName:      p.FullName,
		Email:         p.Email,
		IDType:        p.IDType,
		IDValue:       p.IDValue,
		LoanAmount:    p.LoanAmount,
		KYCLevel:      p.KYCLevel,
		IsBlacklisted: p.IsBlacklisted,
		BankAccounts:  p.BankAccounts,
		CustomerID:    p.CustomerID,
		Status:        StatusPending,
		MonoReference: p.MonoReference,
		RawResponse:   p.RawResponse,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsVerified reports whether the record reached the verified status.
func (v *Verification) IsVerified() bool {
	return v.Status == StatusVerified
}

// ApplyStatus moves the record to status with the payload that caused it.
// Stores call it inside their critical section after checking the guard.
func (v *Verification) ApplyStatus(status Status, raw json.RawMessage, now time.Time) {
	v.Status = status
	v.RawResponse = raw
	v.UpdatedAt = now
}
