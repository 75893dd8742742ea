package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/mirror"
	"github.com/practicedesk/console/internal/core/ports"
	"github.com/practicedesk/console/internal/infrastructure/metrics"
	"github.com/practicedesk/console/pkg/idx"
)

// CollectionStore is the part of the mirror store the session gate drives.
type CollectionStore interface {
	Activate(ctx context.Context, scope domain.Scope) (*mirror.Subscription, error)
	Deactivate(scope domain.Scope)
	Close()
	Staff() []domain.StaffAccount
}

// GateConfig carries the session gate settings.
type GateConfig struct {
	// MissingConfig lists absent remote settings; non-empty means the
	// handshake is never attempted.
	MissingConfig []string

	AdminUsername string
	AdminPassword string

	// LoginRate and LoginBurst size the login token bucket. A zero rate
	// disables throttling.
	LoginRate  rate.Limit
	LoginBurst int
}

// SessionGate tracks the platform identity and the application identity as
// two independent values and decides which mirrors may be live.
type SessionGate struct {
	platform ports.Platform
	store    CollectionStore
	cfg      GateConfig
	limiter  *rate.Limiter
	log      zerolog.Logger

	// op serialises Start, Login, Logout and Close. It is never held by
	// readers, so the store may call PlatformReady and LoggedIn while an
	// operation is running.
	op sync.Mutex

	mu       sync.RWMutex
	started  bool
	state    domain.SessionState
	platID   domain.PlatformIdentity
	identity *domain.AppIdentity
	form     domain.LoginForm
	syncErr  error
}

func NewSessionGate(platform ports.Platform, store CollectionStore, cfg GateConfig, log zerolog.Logger) *SessionGate {
	g := &SessionGate{
		platform: platform,
		store:    store,
		cfg:      cfg,
		log:      log,
		state:    domain.StateUnauthenticated,
	}
	if cfg.LoginRate > 0 {
		burst := cfg.LoginBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(cfg.LoginRate, burst)
	}
	return g
}

// Start validates configuration and performs the platform handshake. It runs
// at most once per process; later calls report the outcome of the first.
func (g *SessionGate) Start(ctx context.Context) error {
	g.op.Lock()
	defer g.op.Unlock()

	g.mu.Lock()
	if g.started {
		err := g.startErrLocked()
		g.mu.Unlock()
		return err
	}
	g.started = true

	if len(g.cfg.MissingConfig) > 0 {
		g.state = domain.StateConfigurationInvalid
		g.mu.Unlock()
		err := &domain.ConfigError{Missing: g.cfg.MissingConfig}
		g.log.Error().Strs("missing", g.cfg.MissingConfig).Msg("remote configuration invalid, running without data")
		return err
	}
	g.state = domain.StateHandshakeInProgress
	g.mu.Unlock()

	id, err := g.platform.SignInAnonymously(ctx)
	if err != nil {
		syncErr := &domain.SyncError{Err: err}
		g.mu.Lock()
		g.state = domain.StateUnauthenticated
		g.syncErr = syncErr
		g.mu.Unlock()

		metrics.SyncErrorsTotal.WithLabelValues("platform").Inc()
		g.log.Error().Err(err).Msg("platform handshake failed, running without data")
		return syncErr
	}

	g.mu.Lock()
	g.platID = id
	g.state = domain.StatePlatformReady
	g.mu.Unlock()
	g.log.Info().Str("platform_session", id.ID).Msg("platform session established")

	if _, err := g.store.Activate(ctx, domain.ScopeStaff); err != nil {
		g.recordSyncErr(err)
		g.log.Error().Err(err).Msg("staff mirror unavailable")
	}

	g.mu.Lock()
	g.state = domain.StateAppLoggedOut
	g.mu.Unlock()
	return nil
}

func (g *SessionGate) startErrLocked() error {
	if g.state == domain.StateConfigurationInvalid {
		return &domain.ConfigError{Missing: g.cfg.MissingConfig}
	}
	if g.platID.IsZero() && g.syncErr != nil {
		return g.syncErr
	}
	return nil
}

// Login checks the credentials against the configured administrator pair and
// then against the staff mirror. Every mismatch yields the same error.
func (g *SessionGate) Login(ctx context.Context, username, secret string) (domain.AppIdentity, error) {
	g.op.Lock()
	defer g.op.Unlock()

	if !g.PlatformReady() {
		metrics.LoginAttemptsTotal.WithLabelValues("unavailable").Inc()
		return domain.AppIdentity{}, domain.ErrPlatformNotReady
	}
	if g.limiter != nil && !g.limiter.Allow() {
		metrics.LoginAttemptsTotal.WithLabelValues("throttled").Inc()
		g.log.Warn().Str("username", username).Msg("login throttled")
		return domain.AppIdentity{}, domain.ErrLoginThrottled
	}

	g.mu.Lock()
	g.form = domain.LoginForm{Username: username}
	g.mu.Unlock()

	identity, ok := g.match(username, secret)
	if !ok {
		metrics.LoginAttemptsTotal.WithLabelValues("denied").Inc()
		g.log.Warn().Str("username", username).Msg("login denied")
		return domain.AppIdentity{}, domain.ErrAuthDenied
	}

	g.mu.Lock()
	g.identity = &identity
	g.state = domain.StateAppLoggedIn
	g.mu.Unlock()

	metrics.LoginAttemptsTotal.WithLabelValues(string(identity.Role)).Inc()
	g.log.Info().Str("username", identity.Username).Str("role", string(identity.Role)).Msg("logged in")

	for _, scope := range []domain.Scope{domain.ScopeClients, domain.ScopeReports} {
		if _, err := g.store.Activate(ctx, scope); err != nil {
			g.recordSyncErr(err)
			g.log.Error().Err(err).Str("scope", string(scope)).Msg("mirror unavailable after login")
		}
	}
	return identity, nil
}

func (g *SessionGate) match(username, secret string) (domain.AppIdentity, bool) {
	if username == "" {
		return domain.AppIdentity{}, false
	}

	if g.cfg.AdminUsername != "" && equal(username, g.cfg.AdminUsername) && equal(secret, g.cfg.AdminPassword) {
		return domain.AppIdentity{
			Name:     "Administrator",
			Username: username,
			Role:     domain.RoleAdministrator,
		}, true
	}

	hashed := false
	for _, acc := range g.store.Staff() {
		if acc.Username != username {
			continue
		}
		if isBcrypt(acc.Secret) {
			hashed = true
			if bcrypt.CompareHashAndPassword([]byte(acc.Secret), []byte(secret)) != nil {
				continue
			}
		} else if !equal(acc.Secret, secret) {
			continue
		}
		role := acc.Role
		if role != domain.RoleAdministrator {
			role = domain.RoleStaff
		}
		return domain.AppIdentity{
			StaffID:  acc.ID,
			Name:     acc.Name,
			Username: acc.Username,
			Role:     role,
		}, true
	}

	// A denial always costs one bcrypt comparison, whether or not the login
	// name exists.
	if !hashed {
		_ = bcrypt.CompareHashAndPassword(decoyHash(), []byte(secret))
	}
	return domain.AppIdentity{}, false
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// decoyHash is compared against when no hashed staff secret was checked.
var decoyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(idx.New()), bcrypt.DefaultCost)
	if err != nil {
		panic("session gate: decoy hash: " + err.Error())
	}
	return h
})

// Logout clears the application identity and releases the clients and
// reports mirrors. The platform session and the staff mirror stay up.
func (g *SessionGate) Logout(_ context.Context) {
	g.op.Lock()
	defer g.op.Unlock()

	g.mu.Lock()
	prev := g.identity
	g.identity = nil
	g.form = domain.LoginForm{}
	if !g.platID.IsZero() {
		g.state = domain.StateAppLoggedOut
	}
	g.mu.Unlock()

	g.store.Deactivate(domain.ScopeReports)
	g.store.Deactivate(domain.ScopeClients)

	if prev != nil {
		g.log.Info().Str("username", prev.Username).Msg("logged out")
	}
}

// Close tears the session down for process exit.
func (g *SessionGate) Close(ctx context.Context) error {
	g.op.Lock()
	defer g.op.Unlock()

	g.mu.Lock()
	g.identity = nil
	g.form = domain.LoginForm{}
	ready := !g.platID.IsZero()
	g.platID = domain.PlatformIdentity{}
	if g.state != domain.StateConfigurationInvalid {
		g.state = domain.StateUnauthenticated
	}
	g.mu.Unlock()

	g.store.Close()
	if !ready {
		return nil
	}
	return g.platform.Close(ctx)
}

// Identity returns the logged-in application identity.
func (g *SessionGate) Identity() (domain.AppIdentity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.identity == nil {
		return domain.AppIdentity{}, false
	}
	return *g.identity, true
}

// PlatformIdentity returns the anonymous platform identity, zero before the
// handshake succeeds.
func (g *SessionGate) PlatformIdentity() domain.PlatformIdentity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.platID
}

func (g *SessionGate) PlatformReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.platID.IsZero()
}

func (g *SessionGate) LoggedIn() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity != nil
}

func (g *SessionGate) Status() domain.SessionStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := domain.SessionStatus{
		State:         g.state,
		PlatformReady: !g.platID.IsZero(),
		Platform:      g.platID,
		Form:          g.form,
		ConfigValid:   len(g.cfg.MissingConfig) == 0,
		MissingConfig: g.cfg.MissingConfig,
	}
	if g.identity != nil {
		id := *g.identity
		st.Identity = &id
	}
	if g.syncErr != nil {
		st.SyncError = g.syncErr.Error()
	}
	return st
}

func (g *SessionGate) recordSyncErr(err error) {
	g.mu.Lock()
	g.syncErr = err
	g.mu.Unlock()
}

var (
	_ ports.SessionGate = (*SessionGate)(nil)
	_ mirror.Authorizer = (*SessionGate)(nil)
)
