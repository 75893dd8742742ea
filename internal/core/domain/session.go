package domain

// SessionState is the position of the session gate in its lifecycle.
type SessionState string

const (
	StateUnauthenticated      SessionState = "unauthenticated"
	StateHandshakeInProgress  SessionState = "platform_handshake_in_progress"
	StatePlatformReady        SessionState = "platform_ready"
	StateAppLoggedOut         SessionState = "app_logged_out"
	StateAppLoggedIn          SessionState = "app_logged_in"
	StateConfigurationInvalid SessionState = "configuration_invalid"
)

// PlatformIdentity is the anonymous identity granted by the remote platform.
// It is fixed for the lifetime of the process once established.
type PlatformIdentity struct {
	ID string `json:"id"`
}

// IsZero reports whether no platform identity has been established.
func (p PlatformIdentity) IsZero() bool { return p.ID == "" }

// AppIdentity is the person logged into the console.
type AppIdentity struct {
	StaffID  string `json:"staff_id,omitempty"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// LoginForm is what the user last typed into the login form. The secret is
// never retained.
type LoginForm struct {
	Username string `json:"username"`
}

// SessionStatus is a point-in-time view of the session gate.
type SessionStatus struct {
	State         SessionState     `json:"state"`
	PlatformReady bool             `json:"platform_ready"`
	Platform      PlatformIdentity `json:"platform"`
	Identity      *AppIdentity     `json:"identity,omitempty"`
	Form          LoginForm        `json:"form"`
	ConfigValid   bool             `json:"config_valid"`
	MissingConfig []string         `json:"missing_config,omitempty"`
	SyncError     string           `json:"sync_error,omitempty"`
}
