package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthDenied is returned for any credential mismatch. It deliberately
	// does not say whether the login name exists.
	ErrAuthDenied        = errors.New("access denied")
	ErrNotLoggedIn       = errors.New("not logged in")
	ErrPlatformNotReady  = errors.New("platform session not ready")
	ErrLoginThrottled    = errors.New("too many login attempts")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrRecordNotFound    = errors.New("record not found")
)

// ConfigError reports that the remote store configuration is unusable. It is
// terminal: nothing retries it.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration invalid: missing %s", strings.Join(e.Missing, ", "))
}

// SyncError wraps a failed platform handshake or subscription.
type SyncError struct {
	Scope Scope // empty for the platform handshake
	Err   error
}

func (e *SyncError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("sync: platform handshake: %v", e.Err)
	}
	return fmt.Sprintf("sync: %s: %v", e.Scope, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
