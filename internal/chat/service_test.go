package chat

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skillswap/realtime/internal/metrics"
)

// A connection can be torn down before Connect ever ran (rejected by the
// connect rate limit, or presence init failed). Disconnect must then be a
// complete no-op: no gauge decrement, no presence write, no status event.
func TestDisconnectWithoutConnect(t *testing.T) {
	s := NewService(Config{})

	before := testutil.ToFloat64(metrics.OnlineUsers)
	s.Disconnect(context.Background(), "never-connected")
	after := testutil.ToFloat64(metrics.OnlineUsers)

	if after != before {
		t.Errorf("online gauge moved from %v to %v for a user that never connected", before, after)
	}
}

func TestDisconnectWithoutConnectIsIdempotent(t *testing.T) {
	s := NewService(Config{})

	// Repeated teardown of an unknown user must not touch any dependency;
	// the zero-value service has none to touch.
	s.Disconnect(context.Background(), "ghost")
	s.Disconnect(context.Background(), "ghost")
}
