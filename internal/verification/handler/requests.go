package handler

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/Khrees2412/provepoc/internal/provider/mono"
	"github.com/Khrees2412/provepoc/internal/verification/models"
	dErrors "github.com/Khrees2412/provepoc/pkg/domain-errors"
)

// MinLoanAmount is the smallest loan, in kobo, a request may ask for.
const MinLoanAmount int64 = 1000

// VerifyRequest is the HTTP request body for POST /verify.
type VerifyRequest struct {
	KYCLevel      string          `json:"kyc_level"`
	BankAccounts  *bool           `json:"bank_accounts"`
	Customer      CustomerRequest `json:"customer"`
	LoanAmount    int64           `json:"loan_amount"`
	MonthlyIncome *int64          `json:"monthly_income,omitempty"`
	RedirectURL   string          `json:"redirect_url,omitempty"`
}

type CustomerRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Address  string          `json:"address"`
	Identity IdentityRequest `json:"identity"`
}

type IdentityRequest struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// Validate normalizes and checks the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	// Size validation (fail fast)
	if len(r.Customer.Name) > 255 || len(r.Customer.Address) > 512 || len(r.RedirectURL) > 2048 {
		return dErrors.New(dErrors.CodeValidation, "customer fields exceed maximum length")
	}

	r.KYCLevel = strings.TrimSpace(r.KYCLevel)
	if !models.KYCLevel(r.KYCLevel).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "kyc_level must be one of tier_1, tier_2, tier_3")
	}
	if r.BankAccounts == nil {
		return dErrors.New(dErrors.CodeValidation, "bank_accounts is required")
	}

	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	if r.Customer.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "customer.name is required")
	}
	r.Customer.Email = strings.TrimSpace(r.Customer.Email)
	if !govalidator.StringLength(r.Customer.Email, "1", "255") || !govalidator.IsEmail(r.Customer.Email) {
		return dErrors.New(dErrors.CodeValidation, "customer.email must be a valid email")
	}
	r.Customer.Address = strings.TrimSpace(r.Customer.Address)

	r.Customer.Identity.Type = strings.ToLower(strings.TrimSpace(r.Customer.Identity.Type))
	if !models.IDType(r.Customer.Identity.Type).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "customer.identity.type must be nin or bvn")
	}
	r.Customer.Identity.Number = strings.TrimSpace(r.Customer.Identity.Number)
	if len(r.Customer.Identity.Number) != models.IDValueLength || !govalidator.IsNumeric(r.Customer.Identity.Number) {
		return dErrors.New(dErrors.CodeValidation, "customer.identity.number must be 11 digits")
	}

	if r.LoanAmount < MinLoanAmount {
		return dErrors.New(dErrors.CodeValidation, "loan_amount must be at least 1000")
	}
	if r.MonthlyIncome != nil && *r.MonthlyIncome < 0 {
		return dErrors.New(dErrors.CodeValidation, "monthly_income must not be negative")
	}

	r.RedirectURL = strings.TrimSpace(r.RedirectURL)
	if r.RedirectURL != "" && !govalidator.IsURL(r.RedirectURL) {
		return dErrors.New(dErrors.CodeValidation, "redirect_url must be a valid URL")
	}
	return nil
}

// CustomerActionRequest is the HTTP request body for PATCH /customers/{reference}.
type CustomerActionRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
	Code   string `json:"code,omitempty"`
}

func (r *CustomerActionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	switch mono.Action(r.Action) {
	case mono.ActionWhitelist, mono.ActionBlacklist:
	default:
		return dErrors.New(dErrors.CodeValidation, "action must be whitelist or blacklist")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if !govalidator.StringLength(r.Reason, "0", "500") {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	r.Code = strings.TrimSpace(r.Code)
	return nil
}

func (r *CustomerActionRequest) toProvider() mono.ActionRequest {
	return mono.ActionRequest{Action: mono.Action(r.Action), Reason: r.Reason, Code: r.Code}
}
