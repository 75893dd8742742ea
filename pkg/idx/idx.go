// Package idx generates lexicographically sortable identifiers for records
// and subscriptions.
package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID for the current UTC time.
func New() string {
	return newAt(time.Now().UTC())
}

// newAt returns a ULID for t. IDs minted within the same millisecond keep
// increasing.
func newAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
