package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/Khrees2412/provepoc/pkg/domain-errors"
)

func validParams() NewVerificationParams {
	return NewVerificationParams{
		ID:            "5f0c7c1e-4a8e-4a63-9e53-0a6f2b9b1d11",
		FullName:      "Ada Obi",
		Email:         "ada@example.com",
		IDType:        IDTypeBVN,
		IDValue:       "12345678901",
		LoanAmount:    500000,
		KYCLevel:      KYCTier1,
		MonoReference: "mono-ref-1",
	}
}

func TestNewVerification(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	t.Run("starts pending", func(t *testing.T) {
		v, err := NewVerification(validParams(), now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, v.Status)
		assert.Equal(t, now, v.CreatedAt)
		assert.Equal(t, now, v.UpdatedAt)
	})

	invalid := map[string]func(p *NewVerificationParams){
		"empty reference": func(p *NewVerificationParams) { p.MonoReference = " " },
		"empty id":        func(p *NewVerificationParams) { p.ID = "" },
		"bad id type":     func(p *NewVerificationParams) { p.IDType = "passport" },
		"short id value":  func(p *NewVerificationParams) { p.IDValue = "123" },
		"unknown tier":    func(p *NewVerificationParams) { p.KYCLevel = "tier_9" },
		"negative amount": func(p *NewVerificationParams) { p.LoanAmount = -1 },
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			p := validParams()
			mutate(&p)
			_, err := NewVerification(p, now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestApplyStatus(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	v, err := NewVerification(validParams(), now)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	v.ApplyStatus(StatusVerified, []byte(`{"reference":"mono-ref-1"}`), later)

	assert.True(t, v.IsVerified())
	assert.JSONEq(t, `{"reference":"mono-ref-1"}`, string(v.RawResponse))
	assert.Equal(t, later, v.UpdatedAt)
	assert.Equal(t, now, v.CreatedAt)
}
