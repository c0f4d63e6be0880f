// Package messaging provides the NATS client wrapper underlying both the
// change feed and the ephemeral pair rooms. It handles connection
// lifecycle, idempotent keyed subscriptions, and drain-on-close.
package messaging

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps the NATS connection with a register-if-absent subscription
// registry. Requesting the same key twice returns the already-open
// subscription instead of duplicating it.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "skillswap-realtime",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Connect dials NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func Connect(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject. Fire-and-forget.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the subject under the given registry
// key. If a subscription is already open under that key it is left in
// place; the bool return reports whether a new one was opened.
func (c *Client) Subscribe(key, subject string, handler func(data []byte)) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, open := c.subs[key]; open {
		return false, nil
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return false, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	c.subs[key] = sub
	return true, nil
}

// Subscribed reports whether a subscription is open under the given key.
func (c *Client) Subscribed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, open := c.subs[key]
	return open
}

// Unsubscribe removes and unsubscribes the subscription under key.
func (c *Client) Unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for key %s", key)
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}

// UnsubscribePrefix tears down every subscription whose key starts with
// the given prefix and returns how many were closed. Used on connection
// teardown to close all of one user's feeds and rooms in one pass.
func (c *Client) UnsubscribePrefix(prefix string) int {
	c.mu.Lock()
	var keys []string
	var subs []*nats.Subscription
	for key, sub := range c.subs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
			subs = append(subs, sub)
		}
	}
	for _, key := range keys {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	for i, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[nats] unsubscribe %s: %v", keys[i], err)
		}
	}
	return len(subs)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
