// Package typing manages "is typing" indicators: a Redis-backed store for
// the per-pair indicator state and a debounce controller that flips the
// indicator back off after a quiet period.
package typing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for indicator records, keyed by
	// the ordered (user, target) pair.
	KeyPrefix = "typing:"

	// RecordTTL bounds how long a stale true indicator can live if the
	// writer crashes before flipping it off. Readers treat an expired key
	// as not typing.
	RecordTTL = 5 * time.Second
)

func key(userID, targetID string) string {
	return KeyPrefix + userID + ":" + targetID
}

// Store upserts typing indicator state in Redis. One record per ordered
// pair; set, never appended.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a typing store using the provided Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Set upserts the indicator for (user, target). True records carry a TTL so
// a crashed client cannot leave a permanent "typing..." affordance.
func (s *Store) Set(ctx context.Context, userID, targetID string, isTyping bool) error {
	k := key(userID, targetID)
	if !isTyping {
		if err := s.rdb.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("typing: clear %s->%s: %w", userID, targetID, err)
		}
		return nil
	}
	if err := s.rdb.Set(ctx, k, time.Now().Unix(), RecordTTL).Err(); err != nil {
		return fmt.Errorf("typing: set %s->%s: %w", userID, targetID, err)
	}
	return nil
}

// IsTyping reports whether user is currently typing to target.
func (s *Store) IsTyping(ctx context.Context, userID, targetID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key(userID, targetID)).Result()
	if err != nil {
		return false, fmt.Errorf("typing: check %s->%s: %w", userID, targetID, err)
	}
	return n > 0, nil
}
