package presence

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store connected to a local Redis instance and
// removes leftover test keys. Tests that call this helper require a running
// Redis on localhost:6379.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	cleanup := func() {
		iter := client.Scan(ctx, 0, StatusPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
			client.SRem(ctx, OnlineSetKey, iter.Val()[len(StatusPrefix):])
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewStore(client)
}

func TestInitThenListOnline(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Init(ctx, "test_alice"); err != nil {
		t.Fatalf("Init() error: %v", err)
	}

	// From another user's perspective, alice must appear online.
	online, err := store.ListOnline(ctx, "test_bob")
	if err != nil {
		t.Fatalf("ListOnline() error: %v", err)
	}
	found := false
	for _, st := range online {
		if st.UserID == "test_alice" {
			found = true
			if !st.IsOnline {
				t.Error("expected test_alice to be online")
			}
			if st.LastSeen.IsZero() {
				t.Error("expected last_seen to be stamped")
			}
		}
	}
	if !found {
		t.Error("test_alice missing from online list after Init")
	}
}

func TestCleanupRemovesFromOnlineButKeepsRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Init(ctx, "test_carol"); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if err := store.Cleanup(ctx, "test_carol"); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}

	online, err := store.ListOnline(ctx, "test_bob")
	if err != nil {
		t.Fatalf("ListOnline() error: %v", err)
	}
	for _, st := range online {
		if st.UserID == "test_carol" {
			t.Error("test_carol still listed online after Cleanup")
		}
	}

	// The status record survives cleanup with is_online=false and a
	// last-seen timestamp.
	st, err := store.Get(ctx, "test_carol")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if st.IsOnline {
		t.Error("expected offline after Cleanup")
	}
	if time.Since(st.LastSeen) > time.Minute {
		t.Errorf("stale last_seen after Cleanup: %v", st.LastSeen)
	}
}

func TestListOnlineExcludesSelf(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Init(ctx, "test_dave"); err != nil {
		t.Fatalf("Init() error: %v", err)
	}

	online, err := store.ListOnline(ctx, "test_dave")
	if err != nil {
		t.Fatalf("ListOnline() error: %v", err)
	}
	for _, st := range online {
		if st.UserID == "test_dave" {
			t.Error("ListOnline must exclude the requesting user")
		}
	}
}

func TestGetUnknownUserIsOfflineNotError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st, err := store.Get(ctx, "test_never_seen")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if st.IsOnline {
		t.Error("unknown user must be offline")
	}
	if !st.LastSeen.IsZero() {
		t.Error("unknown user must have zero last_seen")
	}
}
