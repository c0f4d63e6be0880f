package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection represents a single authenticated WebSocket connection with a
// write mutex for serializing outbound frames. A user may hold several
// connections (one per device or tab).
type Connection struct {
	ID        string    // connection ID (UUID)
	UserID    string    // authenticated user
	Conn      net.Conn  // underlying TCP connection
	CreatedAt time.Time // when the connection was established

	lastActive int64      // unix nanos of the last successful read
	writeMu    sync.Mutex // serializes writes to this connection
}

// Touch records read activity on the connection.
func (c *Connection) Touch() {
	atomic.StoreInt64(&c.lastActive, time.Now().UnixNano())
}

// LastActive returns the time of the last successful read.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActive))
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9) on the
// connection. The write mutex ensures this does not interleave with other
// outbound frames.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry mapping connection IDs and
// user IDs to their Connection objects.
type ConnectionManager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection            // connection_id -> Connection
	byUser map[string]map[string]*Connection // user_id -> connection_id -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Add registers a connection. Returns true if this is the user's first
// open connection (the caller marks the user online on that transition).
func (cm *ConnectionManager) Add(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.byID[conn.ID] = conn
	userConns, ok := cm.byUser[conn.UserID]
	if !ok {
		userConns = make(map[string]*Connection)
		cm.byUser[conn.UserID] = userConns
	}
	userConns[conn.ID] = conn
	return len(userConns) == 1
}

// Remove removes a connection by ID and closes the underlying network
// connection. Returns (found, lastOfUser): lastOfUser is true when the
// user has no remaining open connections (the caller marks the user
// offline on that transition).
func (cm *ConnectionManager) Remove(id string) (bool, bool) {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	lastOfUser := false
	if ok {
		delete(cm.byID, id)
		if userConns, userOK := cm.byUser[conn.UserID]; userOK {
			delete(userConns, id)
			if len(userConns) == 0 {
				delete(cm.byUser, conn.UserID)
				lastOfUser = true
			}
		}
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok, lastOfUser
}

// Get returns the connection for the given connection ID, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// User returns a snapshot of all open connections for a user.
func (cm *ConnectionManager) User(userID string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conns := make([]*Connection, 0, len(cm.byUser[userID]))
	for _, conn := range cm.byUser[userID] {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
