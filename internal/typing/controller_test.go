package typing

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingSetter captures Set calls for assertions.
type recordingSetter struct {
	mu    sync.Mutex
	calls []setCall
}

type setCall struct {
	user, target string
	isTyping     bool
}

func (r *recordingSetter) Set(_ context.Context, userID, targetID string, isTyping bool) error {
	r.mu.Lock()
	r.calls = append(r.calls, setCall{userID, targetID, isTyping})
	r.mu.Unlock()
	return nil
}

func (r *recordingSetter) snapshot() []setCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]setCall, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestKeystrokeSetsTrueThenExpiresFalse(t *testing.T) {
	store := &recordingSetter{}
	c := NewController("alice", store, 30*time.Millisecond)
	defer c.Close()

	first, err := c.Keystroke(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Keystroke() error: %v", err)
	}
	if !first {
		t.Error("first keystroke should start a new burst")
	}

	// Wait past the idle window: the indicator must flip to false with no
	// further input.
	deadline := time.Now().Add(2 * time.Second)
	for {
		calls := store.snapshot()
		if len(calls) >= 2 {
			if !calls[0].isTyping {
				t.Error("first write should be is_typing=true")
			}
			last := calls[len(calls)-1]
			if last.isTyping {
				t.Error("final write should be is_typing=false")
			}
			if last.user != "alice" || last.target != "bob" {
				t.Errorf("unexpected pair %s->%s", last.user, last.target)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("indicator never expired; calls: %v", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRepeatedKeystrokesExtendTheBurst(t *testing.T) {
	store := &recordingSetter{}
	c := NewController("alice", store, 50*time.Millisecond)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		first, err := c.Keystroke(ctx, "bob")
		if err != nil {
			t.Fatalf("Keystroke() error: %v", err)
		}
		if (i == 0) != first {
			t.Errorf("keystroke %d: first=%v", i, first)
		}
		time.Sleep(20 * time.Millisecond) // under the idle window
	}

	// No false write yet: the timer was reset each time.
	for _, call := range store.snapshot() {
		if !call.isTyping {
			t.Fatal("indicator expired mid-burst")
		}
	}

	time.Sleep(150 * time.Millisecond)
	calls := store.snapshot()
	if len(calls) == 0 || calls[len(calls)-1].isTyping {
		t.Error("indicator should have expired after the burst ended")
	}
}

func TestExpireCallbackFires(t *testing.T) {
	store := &recordingSetter{}
	c := NewController("alice", store, 20*time.Millisecond)
	defer c.Close()

	expired := make(chan string, 1)
	c.OnExpire(func(target string) { expired <- target })

	if _, err := c.Keystroke(context.Background(), "bob"); err != nil {
		t.Fatalf("Keystroke() error: %v", err)
	}

	select {
	case target := <-expired:
		if target != "bob" {
			t.Errorf("expired target = %q, want bob", target)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expire callback never fired")
	}
}

func TestCloseStopsPendingTimers(t *testing.T) {
	store := &recordingSetter{}
	c := NewController("alice", store, 20*time.Millisecond)

	if _, err := c.Keystroke(context.Background(), "bob"); err != nil {
		t.Fatalf("Keystroke() error: %v", err)
	}
	c.Close()

	before := len(store.snapshot())
	time.Sleep(60 * time.Millisecond)
	after := len(store.snapshot())
	if after != before {
		t.Error("timer fired after Close")
	}
}

func TestStopClearsImmediately(t *testing.T) {
	store := &recordingSetter{}
	c := NewController("alice", store, time.Hour) // timer must not be the one firing
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Keystroke(ctx, "bob"); err != nil {
		t.Fatalf("Keystroke() error: %v", err)
	}
	if err := c.Stop(ctx, "bob"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	calls := store.snapshot()
	if len(calls) != 2 || calls[1].isTyping {
		t.Errorf("expected true then false, got %v", calls)
	}
}
