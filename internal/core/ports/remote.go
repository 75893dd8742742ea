package ports

import (
	"context"

	"github.com/practicedesk/console/internal/core/domain"
)

// Query selects a remote collection and the order its snapshots arrive in.
// Ordering is requested from the remote; consumers never re-sort.
type Query struct {
	Collection string
	OrderBy    string // empty = remote natural order
	Descending bool
}

// Document is one record of a snapshot. Decode fills v with the record body;
// the remote identifier is available separately through ID.
type Document interface {
	ID() string
	Decode(v any) error
}

// Snapshot is the full, ordered content of a collection at one instant.
type Snapshot []Document

// SnapshotStream yields the snapshots of one Query in the order the remote
// produced them.
type SnapshotStream interface {
	// Next blocks until the next snapshot is available. The first call
	// returns the current state of the collection.
	Next(ctx context.Context) (Snapshot, error)
	Close(ctx context.Context) error
}

// Feed opens push subscriptions on remote collections.
type Feed interface {
	Watch(ctx context.Context, q Query) (SnapshotStream, error)
}

// Fields is a flat mapping of named record fields.
type Fields map[string]any

// Writer issues single-document writes. Each call is all-or-nothing.
type Writer interface {
	// Insert stores a new record and returns its identifier. The remote
	// stamps created_at with its own clock.
	Insert(ctx context.Context, collection string, fields Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
}

// Platform performs the anonymous, low-privilege trust handshake with the
// remote platform.
type Platform interface {
	SignInAnonymously(ctx context.Context) (domain.PlatformIdentity, error)
	Close(ctx context.Context) error
}

// Remote is everything the core needs from the remote document store.
type Remote interface {
	Platform
	Feed
	Writer
	Ping(ctx context.Context) error
}
