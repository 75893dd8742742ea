package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkLogEntry records time a staff member spent on a client.
// ClientName is a denormalized copy, not a reference.
type WorkLogEntry struct {
	ID          string          `json:"id" bson:"_id,omitempty"`
	ClientName  string          `json:"client" bson:"client"`
	Hours       decimal.Decimal `json:"hours" bson:"hours"`
	Description string          `json:"description" bson:"description"`
	Date        string          `json:"date" bson:"date"`
	AuthorName  string          `json:"author" bson:"author"`
	AuthorID    string          `json:"author_id,omitempty" bson:"author_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
}
