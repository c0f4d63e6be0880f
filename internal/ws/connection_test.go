package ws

import (
	"net"
	"testing"
	"time"
)

func newTestConn(t *testing.T, id, userID string) *Connection {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	c := &Connection{
		ID:        id,
		UserID:    userID,
		Conn:      server,
		CreatedAt: time.Now(),
	}
	c.Touch()
	return c
}

func TestConnectionManager_FirstAndLastOfUser(t *testing.T) {
	cm := NewConnectionManager()

	c1 := newTestConn(t, "conn-1", "user-a")
	c2 := newTestConn(t, "conn-2", "user-a")

	if first := cm.Add(c1); !first {
		t.Error("expected first connection of user-a")
	}
	if first := cm.Add(c2); first {
		t.Error("second connection should not be first of user")
	}

	found, last := cm.Remove("conn-1")
	if !found {
		t.Fatal("expected conn-1 to be found")
	}
	if last {
		t.Error("user-a still has conn-2 open, not last")
	}

	found, last = cm.Remove("conn-2")
	if !found {
		t.Fatal("expected conn-2 to be found")
	}
	if !last {
		t.Error("removing the final connection should report lastOfUser")
	}
}

func TestConnectionManager_RemoveUnknown(t *testing.T) {
	cm := NewConnectionManager()

	found, last := cm.Remove("nope")
	if found || last {
		t.Errorf("expected (false, false), got (%v, %v)", found, last)
	}
}

func TestConnectionManager_UserSnapshot(t *testing.T) {
	cm := NewConnectionManager()

	cm.Add(newTestConn(t, "conn-1", "user-a"))
	cm.Add(newTestConn(t, "conn-2", "user-a"))
	cm.Add(newTestConn(t, "conn-3", "user-b"))

	if got := len(cm.User("user-a")); got != 2 {
		t.Errorf("expected 2 connections for user-a, got %d", got)
	}
	if got := len(cm.User("user-b")); got != 1 {
		t.Errorf("expected 1 connection for user-b, got %d", got)
	}
	if got := len(cm.User("user-c")); got != 0 {
		t.Errorf("expected no connections for user-c, got %d", got)
	}
	if got := cm.Count(); got != 3 {
		t.Errorf("expected total count 3, got %d", got)
	}
}

func TestConnectionManager_GetAndAll(t *testing.T) {
	cm := NewConnectionManager()
	c := newTestConn(t, "conn-1", "user-a")
	cm.Add(c)

	if got := cm.Get("conn-1"); got != c {
		t.Error("Get returned the wrong connection")
	}
	if got := cm.Get("missing"); got != nil {
		t.Error("Get for unknown id should return nil")
	}
	if got := len(cm.All()); got != 1 {
		t.Errorf("expected 1 connection in All, got %d", got)
	}
}

func TestConnection_TouchUpdatesLastActive(t *testing.T) {
	c := newTestConn(t, "conn-1", "user-a")

	before := c.LastActive()
	time.Sleep(5 * time.Millisecond)
	c.Touch()

	if !c.LastActive().After(before) {
		t.Error("Touch should advance LastActive")
	}
}
