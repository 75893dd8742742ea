package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/practicedesk/console/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Session ---

type loginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

type loginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	Identity  domain.AppIdentity `json:"identity"`
}

// --- Clients ---

type createClientRequest struct {
	Name       string          `json:"name"        validate:"max=200"`
	TaxID      string          `json:"ruc"         validate:"max=32"`
	MonthlyFee decimal.Decimal `json:"monthly_fee" validate:"gte=0"`
	Sector     string          `json:"sector"      validate:"max=100"`
}

type clientView struct {
	domain.Client
	FeeDisplay string                `json:"fee_display"`
	Risk       domain.RiskAssessment `json:"risk"`
}

// --- Reports ---

type createReportRequest struct {
	ClientName  string          `json:"client"      validate:"max=200"`
	Hours       decimal.Decimal `json:"hours"       validate:"gte=0"`
	Description string          `json:"description" validate:"max=2000"`
	Date        string          `json:"date"        validate:"omitempty,datetime=2006-01-02"`
}

// --- Listing ---

// listResponse wraps a mirror snapshot. SyncError is set when the mirror is
// frozen at its last snapshot. Version is read before the items, so waiting
// on /changes for a newer version never misses an update.
type listResponse[T any] struct {
	Items     []T    `json:"items"`
	Count     int    `json:"count"`
	Version   uint64 `json:"version"`
	SyncError string `json:"sync_error,omitempty"`
}

func newListResponse[T any](version uint64, items []T, syncErr error) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	resp := listResponse[T]{Items: items, Count: len(items), Version: version}
	if syncErr != nil {
		resp.SyncError = syncErr.Error()
	}
	return resp
}

// --- Changes ---

type changesResponse struct {
	Scope   domain.Scope `json:"scope"`
	Version uint64       `json:"version"`
	Changed bool         `json:"changed"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

var accepted = acceptedResponse{Status: "accepted"}
