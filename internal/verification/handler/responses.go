package handler

import (
	"encoding/json"
	"time"

	"github.com/Khrees2412/provepoc/internal/provider/mono"
	"github.com/Khrees2412/provepoc/internal/verification/models"
	"github.com/Khrees2412/provepoc/internal/verification/service"
)

// Envelope is the success body shape returned by every verification route.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type VerifyData struct {
	Reference string `json:"reference"`
	MonoURL   string `json:"mono_url"`
}

type StatusData struct {
	LoanDecision string `json:"loanDecision"`
}

type WebhookData struct {
	Event     string `json:"event"`
	Reference string `json:"reference,omitempty"`
	Outcome   string `json:"outcome"`
	Status    string `json:"status,omitempty"`
}

type VerificationResponse struct {
	ID            string          `json:"id"`
	FullName      string          `json:"full_name"`
	Email         string          `json:"email"`
	IDType        string          `json:"id_type"`
	LoanAmount    int64           `json:"loan_amount"`
	KYCLevel      string          `json:"kyc_level"`
	IsBlacklisted bool            `json:"is_blacklisted"`
	BankAccounts  bool            `json:"bank_accounts"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Status        string          `json:"status"`
	MonoReference string          `json:"mono_reference"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func verifyEnvelope(res *service.InitiateResult) Envelope {
	return Envelope{
		Success: true,
		Message: "Verification initiated successfully",
		Data:    VerifyData{Reference: res.Reference, MonoURL: res.MonoURL},
	}
}

func statusEnvelope(res *service.StatusResult) Envelope {
	return Envelope{
		Success: true,
		Message: "Loan status fetched successfully",
		Data:    StatusData{LoanDecision: res.Message},
	}
}

func webhookEnvelope(res *service.ApplyResult) Envelope {
	return Envelope{
		Success: true,
		Message: "Webhook processed",
		Data: WebhookData{
			Event:     res.Event,
			Reference: res.Reference,
			Outcome:   string(res.Outcome),
			Status:    string(res.Status),
		},
	}
}

func customerEnvelope(resp *mono.Response) Envelope {
	env := Envelope{
		Success:   true,
		Message:   resp.Message,
		Timestamp: resp.Timestamp,
	}
	if len(resp.Data) > 0 {
		env.Data = resp.Data
	}
	return env
}

// The identity number is never echoed back.
func toVerificationResponse(v *models.Verification) VerificationResponse {
	return VerificationResponse{
		ID:            v.ID,
		FullName:      v.FullName,
		Email:         v.Email,
		IDType:        string(v.IDType),
		LoanAmount:    v.LoanAmount,
		KYCLevel:      string(v.KYCLevel),
		IsBlacklisted: v.IsBlacklisted,
		BankAccounts:  v.BankAccounts,
		CustomerID:    v.CustomerID,
		Status:        string(v.Status),
		MonoReference: v.MonoReference,
		RawResponse:   v.RawResponse,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}

func toVerificationList(vs []*models.Verification) []VerificationResponse {
	out := make([]VerificationResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, toVerificationResponse(v))
	}
	return out
}
