package ports

import (
	"context"

	"github.com/practicedesk/console/internal/core/domain"
)

// SessionGate is the session boundary offered to the presentation shell.
type SessionGate interface {
	Start(ctx context.Context) error
	Login(ctx context.Context, username, secret string) (domain.AppIdentity, error)
	Logout(ctx context.Context)
	Identity() (domain.AppIdentity, bool)
	Status() domain.SessionStatus
}
