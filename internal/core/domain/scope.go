package domain

import "fmt"

// Scope names one of the synchronized collections.
type Scope string

const (
	ScopeStaff   Scope = "staff"
	ScopeClients Scope = "clients"
	ScopeReports Scope = "reports"
)

// Scopes lists every scope in activation order.
var Scopes = []Scope{ScopeStaff, ScopeClients, ScopeReports}

// Remote collection names, relative to the configured namespace.
const (
	CollectionUsers   = "users"
	CollectionClients = "clients"
	CollectionReports = "reports"
)

// Collection returns the remote collection backing the scope.
func (s Scope) Collection() string {
	switch s {
	case ScopeStaff:
		return CollectionUsers
	case ScopeClients:
		return CollectionClients
	case ScopeReports:
		return CollectionReports
	default:
		return ""
	}
}

// RequiresLogin reports whether the scope may only be watched by a logged-in user.
func (s Scope) RequiresLogin() bool {
	return s == ScopeClients || s == ScopeReports
}

// ParseScope validates a user supplied scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeStaff, ScopeClients, ScopeReports:
		return Scope(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, s)
}
