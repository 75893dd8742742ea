// Package memory is an in-process implementation of the remote document
// store. It serves development mode and tests: writes bump a per-collection
// version and every open stream wakes up with a fresh ordered snapshot, the
// same contract the MongoDB change-stream adapter honours.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
	"github.com/practicedesk/console/internal/infrastructure/db/bsonx"
	"github.com/practicedesk/console/pkg/idx"
)

// ErrClosed is returned by operations on a closed Remote.
var ErrClosed = errors.New("memory remote closed")

type record struct {
	id        string
	createdAt time.Time
	body      bson.M
}

type collection struct {
	records []*record
	version uint64
	notify  chan struct{}
	failErr error
}

func (c *collection) bump() {
	c.version++
	close(c.notify)
	c.notify = make(chan struct{})
}

// Remote is a goroutine-safe in-memory document store.
type Remote struct {
	reg *bsoncodec.Registry
	now func() time.Time

	mu           sync.Mutex
	colls        map[string]*collection
	identity     domain.PlatformIdentity
	handshakeErr error
	watchErr     error
	closed       bool

	holds       map[string]chan struct{}
	handshakes  int
	watchCalls  map[string]int
	openStreams map[string]int
}

// Option configures a Remote.
type Option func(*Remote)

// WithClock replaces the server clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(r *Remote) { r.now = now }
}

// New returns an empty Remote.
func New(opts ...Option) *Remote {
	r := &Remote{
		reg:         bsonx.Registry(),
		now:         func() time.Time { return time.Now().UTC() },
		colls:       make(map[string]*collection),
		holds:       make(map[string]chan struct{}),
		watchCalls:  make(map[string]int),
		openStreams: make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remote) coll(name string) *collection {
	c, ok := r.colls[name]
	if !ok {
		c = &collection{notify: make(chan struct{})}
		r.colls[name] = c
	}
	return c
}

// SignInAnonymously grants the same opaque identity for the Remote's lifetime.
func (r *Remote) SignInAnonymously(_ context.Context) (domain.PlatformIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handshakes++
	if r.closed {
		return domain.PlatformIdentity{}, ErrClosed
	}
	if r.handshakeErr != nil {
		return domain.PlatformIdentity{}, r.handshakeErr
	}
	if r.identity.IsZero() {
		r.identity = domain.PlatformIdentity{ID: idx.New()}
	}
	return r.identity, nil
}

// Close fails every open stream and rejects further calls.
func (r *Remote) Close(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for _, c := range r.colls {
		c.bump()
	}
	return nil
}

func (r *Remote) Ping(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

// Watch opens a stream over q. The first Next returns the current content.
func (r *Remote) Watch(ctx context.Context, q ports.Query) (ports.SnapshotStream, error) {
	r.mu.Lock()
	r.watchCalls[q.Collection]++
	hold := r.holds[q.Collection]
	r.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.watchErr != nil {
		return nil, r.watchErr
	}
	r.openStreams[q.Collection]++
	return &stream{remote: r, query: q}, nil
}

// Insert appends a record stamped with the server clock.
func (r *Remote) Insert(_ context.Context, collection string, fields ports.Fields) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}
	return r.insertLocked(collection, r.now(), fields), nil
}

// Seed inserts a record with an explicit creation time, the way records
// provisioned by other systems arrive.
func (r *Remote) Seed(collection string, createdAt time.Time, fields ports.Fields) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(collection, createdAt, fields)
}

func (r *Remote) insertLocked(collection string, createdAt time.Time, fields ports.Fields) string {
	id := idx.New()
	body := bson.M{}
	for k, v := range fields {
		body[k] = v
	}
	body["_id"] = id
	body["created_at"] = createdAt

	c := r.coll(collection)
	c.records = append(c.records, &record{id: id, createdAt: createdAt, body: body})
	c.bump()
	return id
}

func (r *Remote) Update(_ context.Context, collection, id string, fields ports.Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	c := r.coll(collection)
	for _, rec := range c.records {
		if rec.id != id {
			continue
		}
		for k, v := range fields {
			if k == "_id" || k == "created_at" {
				continue
			}
			rec.body[k] = v
		}
		c.bump()
		return nil
	}
	return domain.ErrRecordNotFound
}

func (r *Remote) Delete(_ context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	c := r.coll(collection)
	for i, rec := range c.records {
		if rec.id == id {
			c.records = append(c.records[:i], c.records[i+1:]...)
			c.bump()
			return nil
		}
	}
	return domain.ErrRecordNotFound
}

// FailHandshake makes the next handshakes fail with err.
func (r *Remote) FailHandshake(err error) {
	r.mu.Lock()
	r.handshakeErr = err
	r.mu.Unlock()
}

// FailWatch makes new subscriptions fail to open with err.
func (r *Remote) FailWatch(err error) {
	r.mu.Lock()
	r.watchErr = err
	r.mu.Unlock()
}

// Break fails every open and future stream on collection with err until
// Repair is called.
func (r *Remote) Break(collection string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.coll(collection)
	c.failErr = err
	c.bump()
}

// Repair clears a failure set by Break.
func (r *Remote) Repair(collection string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coll(collection).failErr = nil
}

// Handshakes counts SignInAnonymously calls.
func (r *Remote) Handshakes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handshakes
}

// WatchCalls counts Watch calls on collection.
func (r *Remote) WatchCalls(collection string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watchCalls[collection]
}

// HoldWatch makes Watch calls on collection block until the returned release
// function runs or the caller's context ends. Test helper.
func (r *Remote) HoldWatch(collection string) (release func()) {
	ch := make(chan struct{})
	r.mu.Lock()
	r.holds[collection] = ch
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.holds, collection)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// OpenStreams counts streams on collection that have not been closed.
func (r *Remote) OpenStreams(collection string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openStreams[collection]
}

// Count returns the number of records stored in collection.
func (r *Remote) Count(collection string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.coll(collection).records)
}

// Get returns a copy of a stored record body.
func (r *Remote) Get(collection, id string) (bson.M, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.coll(collection).records {
		if rec.id == id {
			out := bson.M{}
			for k, v := range rec.body {
				out[k] = v
			}
			return out, true
		}
	}
	return nil, false
}

func (r *Remote) snapshotLocked(c *collection, q ports.Query) ports.Snapshot {
	recs := make([]*record, len(c.records))
	copy(recs, c.records)

	if q.OrderBy == "created_at" {
		sort.SliceStable(recs, func(i, j int) bool {
			if q.Descending {
				return recs[i].createdAt.After(recs[j].createdAt)
			}
			return recs[i].createdAt.Before(recs[j].createdAt)
		})
	}

	snap := make(ports.Snapshot, 0, len(recs))
	for _, rec := range recs {
		body := bson.M{}
		for k, v := range rec.body {
			body[k] = v
		}
		snap = append(snap, document{id: rec.id, body: body, reg: r.reg})
	}
	return snap
}

type stream struct {
	remote *Remote
	query  ports.Query

	started bool
	seen    uint64
	closed  bool
}

func (s *stream) Next(ctx context.Context) (ports.Snapshot, error) {
	r := s.remote
	for {
		r.mu.Lock()
		if s.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		c := r.coll(s.query.Collection)
		if c.failErr != nil {
			err := c.failErr
			r.mu.Unlock()
			return nil, err
		}
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		if !s.started || c.version != s.seen {
			s.started = true
			s.seen = c.version
			snap := r.snapshotLocked(c, s.query)
			r.mu.Unlock()
			return snap, nil
		}
		wait := c.notify
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (s *stream) Close(_ context.Context) error {
	r := s.remote
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	r.openStreams[s.query.Collection]--
	return nil
}

type document struct {
	id   string
	body bson.M
	reg  *bsoncodec.Registry
}

func (d document) ID() string { return d.id }

func (d document) Decode(v any) error {
	raw, err := bson.MarshalWithRegistry(d.reg, d.body)
	if err != nil {
		return err
	}
	return bson.UnmarshalWithRegistry(d.reg, raw, v)
}
