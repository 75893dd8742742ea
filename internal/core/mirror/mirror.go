package mirror

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
)

// sink is the type-erased face of a Mirror used by the Store.
type sink interface {
	prepare(snap ports.Snapshot) (commit func(), n int)
	reset()
	fail(err error)
	version() uint64
	changed() <-chan struct{}
	lastErr() error
}

// Mirror holds the latest snapshot of one remote collection. Only the
// delivery goroutine of the owning subscription writes to it.
type Mirror[T any] struct {
	scope domain.Scope
	setID func(*T, string)
	log   zerolog.Logger

	mu      sync.RWMutex
	records []T
	ver     uint64
	notify  chan struct{}
	err     error
}

func newMirror[T any](scope domain.Scope, setID func(*T, string), log zerolog.Logger) *Mirror[T] {
	return &Mirror[T]{
		scope:  scope,
		setID:  setID,
		log:    log,
		notify: make(chan struct{}),
	}
}

// Snapshot returns a copy of the current records in remote order.
func (m *Mirror[T]) Snapshot() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.records)
}

// prepare decodes a snapshot outside any lock and returns the function that
// swaps it in. Records that fail to decode are left out of the snapshot.
func (m *Mirror[T]) prepare(snap ports.Snapshot) (func(), int) {
	records := make([]T, 0, len(snap))
	for _, doc := range snap {
		var rec T
		if err := doc.Decode(&rec); err != nil {
			m.log.Warn().Err(err).Str("scope", string(m.scope)).Str("id", doc.ID()).Msg("skipping undecodable record")
			continue
		}
		m.setID(&rec, doc.ID())
		records = append(records, rec)
	}
	return func() { m.swap(records, nil) }, len(records)
}

func (m *Mirror[T]) reset() { m.swap(nil, nil) }

// fail freezes the mirror at its last snapshot and records why.
func (m *Mirror[T]) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.bumpLocked()
	m.mu.Unlock()
}

func (m *Mirror[T]) swap(records []T, err error) {
	m.mu.Lock()
	m.records = records
	m.err = err
	m.bumpLocked()
	m.mu.Unlock()
}

func (m *Mirror[T]) bumpLocked() {
	m.ver++
	close(m.notify)
	m.notify = make(chan struct{})
}

func (m *Mirror[T]) version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ver
}

func (m *Mirror[T]) changed() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notify
}

func (m *Mirror[T]) lastErr() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}
