package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/practicedesk/console/internal/infrastructure/metrics"
)

const defaultPresenceTTL = 2 * time.Minute

// PresenceTracker records live platform sessions backed by Redis.
// Key format: platform:session:<session_id>
type PresenceTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceTracker creates a PresenceTracker wrapping the given Redis client.
// Records expire after ttl unless refreshed.
func NewPresenceTracker(client *redis.Client, ttl time.Duration) *PresenceTracker {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &PresenceTracker{client: client, ttl: ttl}
}

// Register records the session. Registering an id twice keeps the first
// registration time.
func (p *PresenceTracker) Register(ctx context.Context, sessionID string) error {
	if err := p.client.SetNX(ctx, p.key(sessionID), time.Now().UTC().Format(time.RFC3339), p.ttl).Err(); err != nil {
		return fmt.Errorf("presence register: %w", err)
	}
	return nil
}

// Refresh extends the session's expiry.
func (p *PresenceTracker) Refresh(ctx context.Context, sessionID string) error {
	ok, err := p.client.Expire(ctx, p.key(sessionID), p.ttl).Result()
	if err != nil {
		return fmt.Errorf("presence refresh: %w", err)
	}
	if !ok {
		return p.Register(ctx, sessionID)
	}
	return nil
}

// Release removes the session record.
func (p *PresenceTracker) Release(ctx context.Context, sessionID string) error {
	if err := p.client.Del(ctx, p.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("presence release: %w", err)
	}
	return nil
}

// Active counts the sessions currently registered.
func (p *PresenceTracker) Active(ctx context.Context) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := p.client.Scan(ctx, cursor, p.key("*"), 100).Result()
		if err != nil {
			return 0, fmt.Errorf("presence scan: %w", err)
		}
		n += len(keys)
		if next == 0 {
			return n, nil
		}
		cursor = next
	}
}

// Check is the readiness probe for the presence store. It publishes the
// number of registered sessions as a gauge.
func (p *PresenceTracker) Check(ctx context.Context) error {
	n, err := p.Active(ctx)
	if err != nil {
		return err
	}
	metrics.PlatformSessions.Set(float64(n))
	return nil
}

func (p *PresenceTracker) key(sessionID string) string {
	return fmt.Sprintf("platform:session:%s", sessionID)
}
