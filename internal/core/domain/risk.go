package domain

import (
	"strings"
	"unicode/utf8"
)

// RiskTier ranks how urgently a client's filing needs attention. Higher is
// more urgent.
type RiskTier int

const (
	RiskNone     RiskTier = 0
	RiskLow      RiskTier = 1
	RiskMedium   RiskTier = 2
	RiskCritical RiskTier = 3
)

const (
	LabelNoTaxID      = "no tax ID"
	LabelDeclared     = "declared"
	LabelInvalidTaxID = "invalid tax ID"
	LabelCritical     = "critical: due today"
	LabelUpcoming     = "upcoming deadline"
	LabelWithin       = "within deadline"
)

// RiskAssessment is the derived risk of a client. It is never stored.
type RiskAssessment struct {
	Tier  RiskTier `json:"tier"`
	Label string   `json:"label"`
}

// Classify maps a tax identifier and declaration status to a risk tier.
//
// The filing calendar staggers due dates by the last digit of the tax
// identifier, so that digit alone decides urgency while the client is still
// pending:
//
//	0-2 → critical, 3-6 → upcoming, 7-9 → within deadline
//
// Rules are evaluated in order and the first match wins.
func Classify(taxID string, status DeclarationStatus) RiskAssessment {
	if taxID == "" {
		return RiskAssessment{Tier: RiskNone, Label: LabelNoTaxID}
	}
	if status == StatusDeclared {
		return RiskAssessment{Tier: RiskNone, Label: LabelDeclared}
	}

	last, _ := utf8.DecodeLastRuneInString(strings.TrimSpace(taxID))
	if last < '0' || last > '9' {
		return RiskAssessment{Tier: RiskNone, Label: LabelInvalidTaxID}
	}

	switch digit := last - '0'; {
	case digit <= 2:
		return RiskAssessment{Tier: RiskCritical, Label: LabelCritical}
	case digit <= 6:
		return RiskAssessment{Tier: RiskMedium, Label: LabelUpcoming}
	default:
		return RiskAssessment{Tier: RiskLow, Label: LabelWithin}
	}
}
