// Package decision turns a verified KYC tier and a loan amount into an
// approve/reject outcome. Everything here is pure.
package decision

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Khrees2412/provepoc/internal/verification/models"
)

// Decision is the loan outcome shown to the applicant.
type Decision string

const (
	Approved Decision = "Approved"
	Rejected Decision = "Rejected"
)

// koboExponent converts minor units to naira: 1 naira = 100 kobo.
const koboExponent = -2

// ceilings holds the exclusive upper bound, in naira, each tier may borrow.
var ceilings = map[models.KYCLevel]decimal.Decimal{
	models.KYCTier1: decimal.NewFromInt(100_000),
	models.KYCTier2: decimal.NewFromInt(10_000_000),
	models.KYCTier3: decimal.NewFromInt(100_000_000),
}

// ToNaira converts an amount in kobo to naira without rounding.
func ToNaira(kobo int64) decimal.Decimal {
	return decimal.New(kobo, koboExponent)
}

// Ceiling returns the tier's exclusive limit in naira.
func Ceiling(level models.KYCLevel) (decimal.Decimal, bool) {
	c, ok := ceilings[level]
	return c, ok
}

// Decide approves when the amount in naira is strictly below the tier ceiling.
// Unknown tiers are rejected.
func Decide(level models.KYCLevel, loanAmountKobo int64) Decision {
	ceiling, ok := ceilings[level]
	if !ok {
		return Rejected
	}
	if ToNaira(loanAmountKobo).LessThan(ceiling) {
		return Approved
	}
	return Rejected
}

// Message renders the applicant-facing sentence for a decision.
func Message(loanAmountKobo int64, d Decision) string {
	return fmt.Sprintf("Your application for a loan of %s naira has been %s", ToNaira(loanAmountKobo).String(), d)
}
