// Package ws handles WebSocket connection management: upgrading and
// authenticating HTTP connections, tracking per-user connection state, and
// dispatching incoming frames to the application layer.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/skillswap/realtime/internal/auth"
	"github.com/skillswap/realtime/internal/metrics"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // max quiet time on a connection before the read loop gives up
	WriteTimeout   time.Duration // timeout for WebSocket write operations
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		MaxConnections: 100000,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Server is the WebSocket server built on gobwas/ws. It authenticates
// upgrades with a session token, runs one reader goroutine per connection,
// and notifies the application layer on connect, message, and disconnect.
type Server struct {
	config       ServerConfig
	conns        *ConnectionManager
	verifier     *auth.Verifier
	onMessage    func(conn *Connection, data []byte)
	onConnect    func(conn *Connection, firstOfUser bool)
	onDisconnect func(conn *Connection, lastOfUser bool)
	httpServer   *http.Server
	done         chan struct{}
	startedAt    time.Time
}

// NewServer creates a Server with the given configuration and token
// verifier. The onMessage callback is invoked from the connection's reader
// goroutine for every complete text frame.
func NewServer(config ServerConfig, verifier *auth.Verifier, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:    config,
		conns:     NewConnectionManager(),
		verifier:  verifier,
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
}

// SetOnConnect registers a callback invoked after a connection is
// authenticated and registered. firstOfUser is true when this is the
// user's only open connection.
func (s *Server) SetOnConnect(fn func(conn *Connection, firstOfUser bool)) {
	s.onConnect = fn
}

// SetOnDisconnect registers a callback invoked when a connection is
// removed (read error, heartbeat timeout, or graceful close). lastOfUser
// is true when the user has no remaining open connections.
func (s *Server) SetOnDisconnect(fn func(conn *Connection, lastOfUser bool)) {
	s.onDisconnect = fn
}

// Start configures the HTTP server and begins accepting WebSocket
// connections. It starts the heartbeat monitor and blocks on
// http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	StartHeartbeat(s, DefaultHeartbeatConfig())

	log.Printf("ws: server listening on %s (max_conns=%d)",
		s.config.ListenAddr, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// bearerToken extracts the session token from the Authorization header or
// the token query parameter (browser WebSocket clients cannot set headers).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// handleUpgrade authenticates the request and upgrades it to a WebSocket
// connection. On success it registers the connection and starts its
// reader goroutine.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := s.verifier.UserID(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed for user %s: %v", userID, err)
		return
	}

	c := &Connection{
		ID:        uuid.New().String(),
		UserID:    userID,
		Conn:      conn,
		CreatedAt: time.Now(),
	}
	c.Touch()

	first := s.conns.Add(c)
	metrics.ConnectionsTotal.Inc()
	log.Printf("ws: new connection user=%s conn=%s first=%v (total=%d)",
		userID, c.ID, first, s.conns.Count())

	if s.onConnect != nil {
		s.onConnect(c, first)
	}

	go s.readLoop(c)
}

// handleHealth responds with the server's health status as JSON, including
// the current connection count and uptime. Used by the load balancer.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// readLoop reads frames from one connection until it errors or the server
// shuts down. wsutil.ReadClientData answers control frames (ping/pong)
// internally, so any returned data frame is an application message.
func (s *Server) readLoop(c *Connection) {
	defer s.RemoveConnection(c)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if s.config.ReadTimeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		data, op, err := wsutil.ReadClientData(c.Conn)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Quiet connection; the heartbeat decides whether it is dead.
				if time.Since(c.LastActive()) < s.config.ReadTimeout*2 {
					continue
				}
			}
			return
		}

		c.Touch()

		if op != ws.OpText || len(data) == 0 {
			continue
		}
		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// RemoveConnection removes a connection from the manager and closes the
// underlying network connection. Safe to call from multiple goroutines;
// only the first removal runs the disconnect callback.
func (s *Server) RemoveConnection(c *Connection) {
	found, lastOfUser := s.conns.Remove(c.ID)
	if !found {
		return
	}
	metrics.ConnectionsTotal.Dec()

	if s.onDisconnect != nil {
		s.onDisconnect(c, lastOfUser)
	}

	log.Printf("ws: connection closed user=%s conn=%s last=%v (total=%d)",
		c.UserID, c.ID, lastOfUser, s.conns.Count())
}

// SendMessage writes a WebSocket text frame to the connection identified
// by connID. Goroutine-safe thanks to the per-connection write mutex.
func (s *Server) SendMessage(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("ws: connection %s not found", connID)
	}
	return s.write(c, data)
}

// SendToUser writes a text frame to every open connection of the user.
// Errors on individual connections are logged; their reader goroutines
// will observe the failure and clean up.
func (s *Server) SendToUser(userID string, data []byte) {
	for _, c := range s.conns.User(userID) {
		if err := s.write(c, data); err != nil {
			log.Printf("ws: send to user=%s conn=%s: %v", userID, c.ID, err)
		}
	}
}

func (s *Server) write(c *Connection, data []byte) error {
	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err := c.WriteMessage(data)
	// Clear the deadline so it doesn't affect future writes (e.g., pings).
	_ = c.Conn.SetWriteDeadline(time.Time{})
	return err
}

// Connections returns the ConnectionManager for external access to
// connection state (e.g., by the heartbeat monitor).
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown performs a graceful shutdown: it stops the HTTP listener,
// signals reader loops and the heartbeat to exit, and closes all active
// connections (running each disconnect callback so per-user state is
// torn down).
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("ws: http shutdown error: %v", err)
	}

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}

	log.Println("ws: shutdown complete")
	return nil
}
