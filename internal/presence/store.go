// Package presence tracks per-user online/offline state and last-seen
// timestamps in Redis. Status records are upserted on session start and on
// cleanup, never deleted:
//
//	Key:    status:<user_id>   (hash: is_online, last_seen, status_message)
//	Member: presence:online    (set of currently online user IDs)
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StatusPrefix is the Redis key prefix for per-user status hashes.
	StatusPrefix = "status:"

	// OnlineSetKey is the Redis set holding currently online user IDs.
	OnlineSetKey = "presence:online"
)

// Status is one user's presence record.
type Status struct {
	UserID        string    `json:"user_id"`
	IsOnline      bool      `json:"is_online"`
	LastSeen      time.Time `json:"last_seen"`
	StatusMessage string    `json:"status_message,omitempty"`
}

// Store manages presence state in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a presence store using the provided Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Init marks the user online and stamps last-seen. Called on session start.
func (s *Store) Init(ctx context.Context, userID string) error {
	key := StatusPrefix + userID
	now := time.Now().Unix()

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, "is_online", "true", "last_seen", now)
	pipe.SAdd(ctx, OnlineSetKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: init %s: %w", userID, err)
	}
	return nil
}

// Cleanup marks the user offline and stamps last-seen. Called on sign-out
// or connection teardown. The status hash is kept so last-seen survives.
func (s *Store) Cleanup(ctx context.Context, userID string) error {
	key := StatusPrefix + userID
	now := time.Now().Unix()

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, "is_online", "false", "last_seen", now)
	pipe.SRem(ctx, OnlineSetKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: cleanup %s: %w", userID, err)
	}
	return nil
}

// SetStatusMessage stores an optional free-form status line.
func (s *Store) SetStatusMessage(ctx context.Context, userID, msg string) error {
	key := StatusPrefix + userID
	if err := s.rdb.HSet(ctx, key, "status_message", msg).Err(); err != nil {
		return fmt.Errorf("presence: set status message %s: %w", userID, err)
	}
	return nil
}

// Get retrieves a user's status. A user never seen before yields an
// offline record with a zero last-seen, not an error.
func (s *Store) Get(ctx context.Context, userID string) (*Status, error) {
	key := StatusPrefix + userID
	result, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: get %s: %w", userID, err)
	}

	st := &Status{UserID: userID}
	if len(result) == 0 {
		return st, nil
	}
	st.IsOnline = result["is_online"] == "true"
	st.StatusMessage = result["status_message"]
	if ts, err := strconv.ParseInt(result["last_seen"], 10, 64); err == nil {
		st.LastSeen = time.Unix(ts, 0)
	}
	return st, nil
}

// ListOnline returns the status of every currently online user except the
// given one.
func (s *Store) ListOnline(ctx context.Context, exceptUserID string) ([]Status, error) {
	ids, err := s.rdb.SMembers(ctx, OnlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: list online: %w", err)
	}

	out := []Status{}
	for _, id := range ids {
		if id == exceptUserID {
			continue
		}
		st, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

// Snapshot returns the status of every user in ids in one pass, for the
// conversation-list merge. Users with no record come back offline.
func (s *Store) Snapshot(ctx context.Context, ids []string) (map[string]Status, error) {
	out := make(map[string]Status, len(ids))
	for _, id := range ids {
		st, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = *st
	}
	return out, nil
}
