package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/practicedesk/console/internal/core/domain"
)

// ClientForm carries the fields a user fills in to register a client.
type ClientForm struct {
	Name       string
	TaxID      string
	MonthlyFee decimal.Decimal
	Sector     string
}

// WorkLogForm carries the fields a user fills in to log work.
type WorkLogForm struct {
	ClientName  string
	Hours       decimal.Decimal
	Description string
	Date        string // YYYY-MM-DD, today when empty
}

// MutationGateway writes to the remote store. Callers observe the effect
// through the next mirror snapshot, never through a return value.
type MutationGateway interface {
	AddClient(ctx context.Context, form ClientForm) error
	AddWorkLogEntry(ctx context.Context, form WorkLogForm) error
	MarkDeclared(ctx context.Context, clientID string) error
	DeleteRecord(ctx context.Context, kind domain.Scope, id string) error
}
