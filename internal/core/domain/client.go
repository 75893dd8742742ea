package domain

import (
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DeclarationStatus represents where a client stands in the current filing period.
type DeclarationStatus string

const (
	StatusPending  DeclarationStatus = "pending"
	StatusDeclared DeclarationStatus = "declared"
)

// validTransitions defines the allowed declaration transitions. There is no
// way back to pending.
var validTransitions = map[DeclarationStatus][]DeclarationStatus{
	StatusPending: {StatusDeclared},
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s DeclarationStatus) CanTransitionTo(next DeclarationStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s DeclarationStatus) Valid() bool {
	return s == StatusPending || s == StatusDeclared
}

// Client is a company or person whose filings the practice handles.
type Client struct {
	ID         string            `json:"id" bson:"_id,omitempty"`
	Name       string            `json:"name" bson:"name"`
	TaxID      string            `json:"ruc" bson:"ruc"`
	MonthlyFee decimal.Decimal   `json:"monthly_fee" bson:"monthly_fee"`
	Sector     string            `json:"sector" bson:"sector"`
	Status     DeclarationStatus `json:"status" bson:"status"`
	CreatedAt  time.Time         `json:"created_at" bson:"created_at"`
}

// Risk classifies the client as of now.
func (c Client) Risk() RiskAssessment {
	return Classify(c.TaxID, c.Status)
}

// FeeDisplay formats the monthly fee in the given ISO currency, e.g. "$12.50" for USD.
func (c Client) FeeDisplay(currency string) string {
	m := money.New(0, currency)
	minor := c.MonthlyFee.Shift(int32(m.Currency().Fraction)).Round(0).IntPart()
	return money.New(minor, currency).Display()
}
