// Package mirror keeps local, read-only mirrors of the remote staff, client
// and work-log collections current through push subscriptions.
//
// Each scope has at most one live Subscription. Its delivery goroutine is the
// only writer of the scope's Mirror; everything else reads snapshots. Changes
// made through the mutation gateway become visible only when the remote
// pushes the next snapshot.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
	"github.com/practicedesk/console/internal/infrastructure/metrics"
)

const closeTimeout = 5 * time.Second

// Authorizer tells the Store whether a scope may be watched right now.
type Authorizer interface {
	PlatformReady() bool
	LoggedIn() bool
}

// Store owns the three mirrors and their subscriptions.
type Store struct {
	feed ports.Feed
	log  zerolog.Logger

	authMu sync.RWMutex
	authz  Authorizer

	mu      sync.Mutex
	subs    map[domain.Scope]*Subscription
	opening map[domain.Scope]*opening

	staff   *Mirror[domain.StaffAccount]
	clients *Mirror[domain.Client]
	reports *Mirror[domain.WorkLogEntry]
	sinks   map[domain.Scope]sink
}

// NewStore returns a Store with empty, inactive mirrors.
func NewStore(feed ports.Feed, log zerolog.Logger) *Store {
	s := &Store{
		feed: feed,
		log:  log,
		subs:    make(map[domain.Scope]*Subscription),
		opening: make(map[domain.Scope]*opening),
		staff: newMirror(domain.ScopeStaff, func(r *domain.StaffAccount, id string) {
			r.ID = id
		}, log),
		clients: newMirror(domain.ScopeClients, func(r *domain.Client, id string) {
			r.ID = id
		}, log),
		reports: newMirror(domain.ScopeReports, func(r *domain.WorkLogEntry, id string) {
			r.ID = id
		}, log),
	}
	s.sinks = map[domain.Scope]sink{
		domain.ScopeStaff:   s.staff,
		domain.ScopeClients: s.clients,
		domain.ScopeReports: s.reports,
	}
	return s
}

// SetAuthorizer installs the session check consulted by Activate. Without
// one every activation is refused.
func (s *Store) SetAuthorizer(a Authorizer) {
	s.authMu.Lock()
	s.authz = a
	s.authMu.Unlock()
}

// Query returns the remote query backing a scope. Work-log entries are
// requested newest first.
func Query(scope domain.Scope) ports.Query {
	q := ports.Query{Collection: scope.Collection()}
	if scope == domain.ScopeReports {
		q.OrderBy = "created_at"
		q.Descending = true
	}
	return q
}

// opening marks a scope whose remote stream is being opened. The store lock
// is not held while the remote answers.
type opening struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	dropped bool
}

// Activate subscribes the scope's mirror to its remote collection. Calling it
// while a subscription is live returns that subscription unchanged; calling it
// while the same scope is still being opened waits for that attempt.
func (s *Store) Activate(ctx context.Context, scope domain.Scope) (*Subscription, error) {
	sk, ok := s.sinks[scope]
	if !ok {
		return nil, fmt.Errorf("activate: %w: %q", domain.ErrUnknownCollection, scope)
	}
	if err := s.authorize(scope); err != nil {
		return nil, fmt.Errorf("activate %s: %w", scope, err)
	}

	sub, op, err := s.reserve(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", scope, err)
	}
	if sub != nil {
		return sub, nil
	}

	stream, err := s.feed.Watch(op.ctx, Query(scope))

	s.mu.Lock()
	delete(s.opening, scope)
	close(op.done)
	if err == nil && !op.dropped {
		sub = newSubscription(scope, op.cancel)
		s.subs[scope] = sub
		s.mu.Unlock()

		metrics.ActiveSubscriptions.WithLabelValues(string(scope)).Set(1)
		s.log.Info().Str("scope", string(scope)).Str("subscription", sub.ID()).Msg("subscription started")
		go s.deliver(op.ctx, sub, sk, stream)
		return sub, nil
	}
	var syncErr *domain.SyncError
	if err != nil && !op.dropped {
		syncErr = &domain.SyncError{Scope: scope, Err: err}
		sk.fail(syncErr)
	}
	s.mu.Unlock()
	op.cancel()

	if syncErr == nil {
		if stream != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			_ = stream.Close(closeCtx)
			cancel()
		}
		return nil, fmt.Errorf("activate %s: %w", scope, context.Canceled)
	}
	metrics.SyncErrorsTotal.WithLabelValues(string(scope)).Inc()
	s.log.Error().Err(err).Str("scope", string(scope)).Msg("subscription failed to start")
	return nil, syncErr
}

// reserve returns the live subscription of scope, or claims the right to open
// one. It waits out a concurrent opening of the same scope.
func (s *Store) reserve(ctx context.Context, scope domain.Scope) (*Subscription, *opening, error) {
	for {
		s.mu.Lock()
		if sub, live := s.subs[scope]; live {
			s.mu.Unlock()
			return sub, nil, nil
		}
		op, busy := s.opening[scope]
		if !busy {
			// The subscription outlives the caller's request; only Deactivate ends it.
			subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			op = &opening{ctx: subCtx, cancel: cancel, done: make(chan struct{})}
			s.opening[scope] = op
			s.mu.Unlock()
			return nil, op, nil
		}
		s.mu.Unlock()

		select {
		case <-op.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// Deactivate releases the scope's subscription, waits for its delivery
// goroutine to exit and empties the mirror. A stream still being opened is
// abandoned. It is a no-op when the scope is not active.
func (s *Store) Deactivate(scope domain.Scope) {
	s.mu.Lock()
	if op, busy := s.opening[scope]; busy {
		op.dropped = true
		op.cancel()
	}
	sub, live := s.subs[scope]
	if live {
		delete(s.subs, scope)
		sub.release()
		s.sinks[scope].reset()
		metrics.MirrorRecords.WithLabelValues(string(scope)).Set(0)
	}
	s.mu.Unlock()

	if !live {
		return
	}
	<-sub.Done()
	metrics.ActiveSubscriptions.WithLabelValues(string(scope)).Set(0)
	s.log.Info().Str("scope", string(scope)).Str("subscription", sub.ID()).Msg("subscription released")
}

// Close deactivates every scope.
func (s *Store) Close() {
	for i := len(domain.Scopes) - 1; i >= 0; i-- {
		s.Deactivate(domain.Scopes[i])
	}
}

// Live reports whether the scope currently holds a subscription, failed or not.
func (s *Store) Live(scope domain.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[scope]
	return ok
}

func (s *Store) Staff() []domain.StaffAccount   { return s.staff.Snapshot() }
func (s *Store) Clients() []domain.Client       { return s.clients.Snapshot() }
func (s *Store) Reports() []domain.WorkLogEntry { return s.reports.Snapshot() }

// Client looks a client up in the current snapshot.
func (s *Store) Client(id string) (domain.Client, bool) {
	for _, c := range s.clients.Snapshot() {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Client{}, false
}

// Err returns the SyncError that froze the scope's mirror, if any.
func (s *Store) Err(scope domain.Scope) error {
	if sk, ok := s.sinks[scope]; ok {
		return sk.lastErr()
	}
	return nil
}

// Version increases every time the scope's mirror changes.
func (s *Store) Version(scope domain.Scope) uint64 {
	if sk, ok := s.sinks[scope]; ok {
		return sk.version()
	}
	return 0
}

// Changed returns a channel closed on the next change of the scope's mirror.
func (s *Store) Changed(scope domain.Scope) <-chan struct{} {
	if sk, ok := s.sinks[scope]; ok {
		return sk.changed()
	}
	return nil
}

func (s *Store) authorize(scope domain.Scope) error {
	s.authMu.RLock()
	a := s.authz
	s.authMu.RUnlock()

	switch {
	case a == nil || !a.PlatformReady():
		return domain.ErrPlatformNotReady
	case scope.RequiresLogin() && !a.LoggedIn():
		return domain.ErrNotLoggedIn
	}
	return nil
}

// deliver applies snapshots in arrival order until the subscription is
// released or the stream fails for good.
func (s *Store) deliver(ctx context.Context, sub *Subscription, sk sink, stream ports.SnapshotStream) {
	defer close(sub.done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := stream.Close(closeCtx); err != nil {
			s.log.Warn().Err(err).Str("scope", string(sub.scope)).Msg("closing remote stream")
		}
	}()

	scope := string(sub.scope)
	for {
		snap, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.freeze(sub, sk, err)
			return
		}

		commit, n := sk.prepare(snap)

		s.mu.Lock()
		live := s.subs[sub.scope] == sub
		if live {
			commit()
		}
		s.mu.Unlock()

		if !live {
			metrics.SnapshotsDiscardedTotal.WithLabelValues(scope).Inc()
			return
		}
		metrics.SnapshotsAppliedTotal.WithLabelValues(scope).Inc()
		metrics.MirrorRecords.WithLabelValues(scope).Set(float64(n))
		s.log.Debug().Str("scope", scope).Int("records", n).Msg("snapshot applied")
	}
}

func (s *Store) freeze(sub *Subscription, sk sink, err error) {
	syncErr := &domain.SyncError{Scope: sub.scope, Err: err}
	sub.setErr(syncErr)

	s.mu.Lock()
	if s.subs[sub.scope] == sub {
		sk.fail(syncErr)
	}
	s.mu.Unlock()

	metrics.SyncErrorsTotal.WithLabelValues(string(sub.scope)).Inc()
	s.log.Error().Err(err).Str("scope", string(sub.scope)).Msg("subscription failed, mirror frozen at last snapshot")
}

var _ ports.Mirrors = (*Store)(nil)
