package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/mirror"
	"github.com/practicedesk/console/internal/core/ports"
	"github.com/practicedesk/console/internal/infrastructure/memory"
)

type gateFixture struct {
	remote *memory.Remote
	store  *mirror.Store
	gate   *SessionGate
}

func newGateFixture(t *testing.T, cfg GateConfig) *gateFixture {
	t.Helper()
	return newGateFixtureWith(t, memory.New(), cfg)
}

func newGateFixtureWith(t *testing.T, remote *memory.Remote, cfg GateConfig) *gateFixture {
	t.Helper()
	if cfg.AdminUsername == "" {
		cfg.AdminUsername, cfg.AdminPassword = "admin", "admin"
	}
	store := mirror.NewStore(remote, zerolog.Nop())
	gate := NewSessionGate(remote, store, cfg, zerolog.Nop())
	store.SetAuthorizer(gate)
	t.Cleanup(func() { _ = gate.Close(context.Background()) })
	return &gateFixture{remote: remote, store: store, gate: gate}
}

func (f *gateFixture) start(t *testing.T) {
	t.Helper()
	if err := f.gate.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (f *gateFixture) seedStaff(username, secret string, role domain.Role) {
	f.remote.Seed(domain.CollectionUsers, time.Now(), ports.Fields{
		"name": "Staff " + username, "username": username, "password": secret, "role": string(role),
	})
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionGate_ConfigInvalid_NoNetworkCall(t *testing.T) {
	f := newGateFixture(t, GateConfig{MissingConfig: []string{"REMOTE_API_KEY"}})

	err := f.gate.Start(context.Background())
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if len(cfgErr.Missing) != 1 || cfgErr.Missing[0] != "REMOTE_API_KEY" {
		t.Fatalf("unexpected missing list %v", cfgErr.Missing)
	}
	if f.remote.Handshakes() != 0 {
		t.Fatal("handshake attempted with invalid configuration")
	}

	st := f.gate.Status()
	if st.State != domain.StateConfigurationInvalid || st.ConfigValid || st.PlatformReady {
		t.Fatalf("unexpected status %+v", st)
	}

	if _, err := f.gate.Login(context.Background(), "admin", "admin"); !errors.Is(err, domain.ErrPlatformNotReady) {
		t.Fatalf("expected ErrPlatformNotReady, got %v", err)
	}
	// Terminal: a second Start does not retry.
	if err := f.gate.Start(context.Background()); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError again, got %v", err)
	}
	if f.remote.Handshakes() != 0 {
		t.Fatal("handshake attempted on second Start")
	}
}

func TestSessionGate_HandshakeFailure(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.remote.FailHandshake(errors.New("network unreachable"))

	err := f.gate.Start(context.Background())
	var syncErr *domain.SyncError
	if !errors.As(err, &syncErr) || syncErr.Scope != "" {
		t.Fatalf("expected platform SyncError, got %v", err)
	}

	st := f.gate.Status()
	if st.State != domain.StateUnauthenticated || st.PlatformReady || st.SyncError == "" {
		t.Fatalf("unexpected status %+v", st)
	}
	if f.store.Live(domain.ScopeStaff) {
		t.Fatal("staff mirror must not be active without a platform session")
	}

	// No automatic retry.
	_ = f.gate.Start(context.Background())
	if n := f.remote.Handshakes(); n != 1 {
		t.Fatalf("expected 1 handshake, got %d", n)
	}
}

func TestSessionGate_StartActivatesStaff(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.start(t)

	st := f.gate.Status()
	if st.State != domain.StateAppLoggedOut || !st.PlatformReady || st.Platform.IsZero() {
		t.Fatalf("unexpected status %+v", st)
	}
	if !f.store.Live(domain.ScopeStaff) {
		t.Fatal("expected staff mirror active")
	}
	if f.store.Live(domain.ScopeClients) || f.store.Live(domain.ScopeReports) {
		t.Fatal("clients and reports must wait for login")
	}
	if _, ok := f.gate.Identity(); ok {
		t.Fatal("expected no application identity before login")
	}
}

func TestSessionGate_AdminLoginWithEmptyStaff(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.start(t)

	id, err := f.gate.Login(context.Background(), "admin", "admin")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if id.Role != domain.RoleAdministrator {
		t.Fatalf("expected administrator, got %q", id.Role)
	}
	if !f.store.Live(domain.ScopeClients) || !f.store.Live(domain.ScopeReports) {
		t.Fatal("expected clients and reports active after login")
	}
	if f.gate.Status().State != domain.StateAppLoggedIn {
		t.Fatalf("expected logged in, got %s", f.gate.Status().State)
	}
}

func TestSessionGate_AdminLoginWhenStaffMirrorFailed(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.remote.FailWatch(errors.New("permission denied"))
	f.start(t)

	if f.gate.Status().SyncError == "" {
		t.Fatal("expected staff failure recorded in status")
	}
	if _, err := f.gate.Login(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("admin login must not depend on the staff mirror: %v", err)
	}
	if _, ok := f.gate.Identity(); !ok {
		t.Fatal("expected identity after login even though mirrors failed")
	}
}

func TestSessionGate_StaffLogin(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.seedStaff("ana", "s3cret", domain.RoleStaff)
	f.start(t)
	waitUntil(t, "staff mirror", func() bool { return len(f.store.Staff()) == 1 })

	id, err := f.gate.Login(context.Background(), "ana", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Role != domain.RoleStaff || id.Name != "Staff ana" || id.StaffID == "" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestSessionGate_BcryptSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	f := newGateFixture(t, GateConfig{})
	f.seedStaff("luis", string(hash), domain.RoleAdministrator)
	f.start(t)
	waitUntil(t, "staff mirror", func() bool { return len(f.store.Staff()) == 1 })

	id, err := f.gate.Login(context.Background(), "luis", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Role != domain.RoleAdministrator {
		t.Fatalf("expected role from record, got %q", id.Role)
	}
	if _, err := f.gate.Login(context.Background(), "luis", string(hash)); !errors.Is(err, domain.ErrAuthDenied) {
		t.Fatalf("the hash itself must not log in, got %v", err)
	}
}

func TestSessionGate_DeniedIsIndistinguishable(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.seedStaff("ana", "s3cret", domain.RoleStaff)
	f.start(t)
	waitUntil(t, "staff mirror", func() bool { return len(f.store.Staff()) == 1 })

	_, unknownErr := f.gate.Login(context.Background(), "nobody", "s3cret")
	_, wrongErr := f.gate.Login(context.Background(), "ana", "wrong")

	if !errors.Is(unknownErr, domain.ErrAuthDenied) || !errors.Is(wrongErr, domain.ErrAuthDenied) {
		t.Fatalf("expected ErrAuthDenied, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("denials differ: %q vs %q", unknownErr, wrongErr)
	}
	if _, ok := f.gate.Identity(); ok {
		t.Fatal("denied login must not set an identity")
	}
	if f.store.Live(domain.ScopeClients) {
		t.Fatal("denied login must not activate clients")
	}
}

func TestSessionGate_DenialTimingHidesUnknownNames(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	f := newGateFixture(t, GateConfig{})
	f.seedStaff("ana", string(hash), domain.RoleStaff)
	f.start(t)
	waitUntil(t, "staff mirror", func() bool { return len(f.store.Staff()) == 1 })

	fastest := func(username string) time.Duration {
		best := time.Duration(1<<63 - 1)
		for i := 0; i < 3; i++ {
			start := time.Now()
			_, err := f.gate.Login(context.Background(), username, "wrong")
			if !errors.Is(err, domain.ErrAuthDenied) {
				t.Fatalf("%s: expected ErrAuthDenied, got %v", username, err)
			}
			best = min(best, time.Since(start))
		}
		return best
	}

	known := fastest("ana")
	unknown := fastest("nobody")
	if unknown < known/4 {
		t.Fatalf("unknown name denied in %v, known name in %v", unknown, known)
	}
}

func TestSessionGate_LoginBeforeHandshake(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	if _, err := f.gate.Login(context.Background(), "admin", "admin"); !errors.Is(err, domain.ErrPlatformNotReady) {
		t.Fatalf("expected ErrPlatformNotReady, got %v", err)
	}
}

func TestSessionGate_LogoutReleasesDataMirrors(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.start(t)
	platform := f.gate.PlatformIdentity()

	if _, err := f.gate.Login(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("login: %v", err)
	}
	f.gate.Logout(context.Background())

	if _, ok := f.gate.Identity(); ok {
		t.Fatal("identity survived logout")
	}
	st := f.gate.Status()
	if st.State != domain.StateAppLoggedOut || st.Form.Username != "" {
		t.Fatalf("unexpected status after logout %+v", st)
	}
	if f.gate.PlatformIdentity() != platform {
		t.Fatal("platform identity must survive logout")
	}
	if !f.store.Live(domain.ScopeStaff) {
		t.Fatal("staff mirror must survive logout")
	}
	if f.store.Live(domain.ScopeClients) || f.store.Live(domain.ScopeReports) {
		t.Fatal("clients and reports must be released on logout")
	}
	if n := f.remote.OpenStreams(domain.CollectionClients); n != 0 {
		t.Fatalf("expected clients stream closed, got %d open", n)
	}
}

func TestSessionGate_LogoutLoginCycleKeepsOneSubscription(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.start(t)

	for i := 0; i < 3; i++ {
		if _, err := f.gate.Login(context.Background(), "admin", "admin"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		f.gate.Logout(context.Background())
	}
	if _, err := f.gate.Login(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("final login: %v", err)
	}

	for _, coll := range []string{domain.CollectionClients, domain.CollectionReports} {
		if n := f.remote.OpenStreams(coll); n != 1 {
			t.Fatalf("%s: expected exactly 1 open stream, got %d", coll, n)
		}
	}
	if n := f.remote.OpenStreams(domain.CollectionUsers); n != 1 {
		t.Fatalf("users: expected 1 open stream, got %d", n)
	}
}

func TestSessionGate_Throttle(t *testing.T) {
	f := newGateFixture(t, GateConfig{LoginRate: rate.Every(time.Hour), LoginBurst: 2})
	f.start(t)

	for i := 0; i < 2; i++ {
		if _, err := f.gate.Login(context.Background(), "admin", "wrong"); !errors.Is(err, domain.ErrAuthDenied) {
			t.Fatalf("attempt %d: expected ErrAuthDenied, got %v", i, err)
		}
	}
	if _, err := f.gate.Login(context.Background(), "admin", "admin"); !errors.Is(err, domain.ErrLoginThrottled) {
		t.Fatalf("expected ErrLoginThrottled, got %v", err)
	}
}

func TestSessionGate_CloseReleasesEverything(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	f.start(t)
	if _, err := f.gate.Login(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := f.gate.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, scope := range domain.Scopes {
		if f.store.Live(scope) {
			t.Fatalf("%s still live after Close", scope)
		}
	}
	if f.gate.PlatformReady() || f.gate.LoggedIn() {
		t.Fatal("expected no identities after Close")
	}
	if err := f.remote.Ping(context.Background()); !errors.Is(err, memory.ErrClosed) {
		t.Fatalf("expected platform closed, got %v", err)
	}
}
