package ports

import "github.com/practicedesk/console/internal/core/domain"

// Mirrors is the read side of the synchronized collection store.
type Mirrors interface {
	Staff() []domain.StaffAccount
	Clients() []domain.Client
	Reports() []domain.WorkLogEntry
	Err(scope domain.Scope) error
	// Version increases every time the scope's mirror changes.
	Version(scope domain.Scope) uint64
	// Changed returns a channel closed on the scope's next change.
	Changed(scope domain.Scope) <-chan struct{}
}
