package mirror

import (
	"context"
	"sync"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/pkg/idx"
)

// Subscription is the handle of one live remote subscription. It carries its
// own cancellation; the Store releases it exactly once.
type Subscription struct {
	id     string
	scope  domain.Scope
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func newSubscription(scope domain.Scope, cancel context.CancelFunc) *Subscription {
	return &Subscription{
		id:     idx.New(),
		scope:  scope,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *Subscription) ID() string          { return s.id }
func (s *Subscription) Scope() domain.Scope { return s.scope }

// Done is closed once the delivery goroutine has exited and the remote
// stream is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the permanent failure that stopped deliveries, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Subscription) release() {
	s.once.Do(s.cancel)
}
