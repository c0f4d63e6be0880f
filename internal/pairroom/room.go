// Package pairroom implements the ephemeral low-latency delivery path: a
// non-persisted broadcast channel per user pair, named so that both
// participants derive the same channel without coordination. A participant
// who was not subscribed at send time never receives that broadcast; the
// durable message row is the only guaranteed-delivery path.
package pairroom

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/skillswap/realtime/internal/message"
	"github.com/skillswap/realtime/internal/messaging"
)

// SubjectPrefix is the NATS subject prefix for pair rooms.
const SubjectPrefix = "pair."

// Event is the payload broadcast on a pair room.
type Event struct {
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Message    message.Message `json:"message"`
}

// RoomName derives the deterministic room subject from the two participant
// IDs. The pair is sorted lexicographically, so RoomName(a, b) and
// RoomName(b, a) are identical.
func RoomName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return SubjectPrefix + a + "." + b
}

// MatchesPair reports whether the event's (sender, receiver) equals the
// (a, b) pair in either direction. Guards against cross-talk if room
// subjects were ever to collide.
func MatchesPair(ev *Event, a, b string) bool {
	return (ev.SenderID == a && ev.ReceiverID == b) ||
		(ev.SenderID == b && ev.ReceiverID == a)
}

// Manager opens and publishes to pair rooms over NATS. Room subscriptions
// are keyed per owner handle (the subscribing connection), so two tabs of
// one user, like the two participants, hold independent subscriptions:
// closing a conversation in one tab never silences the other.
type Manager struct {
	nats *messaging.Client
}

// NewManager creates a pair room manager over the given NATS client.
func NewManager(nc *messaging.Client) *Manager {
	return &Manager{nats: nc}
}

func subKey(ownerID, room string) string {
	return "pair:" + ownerID + ":" + room
}

// Open subscribes the owner handle to the room for (a, b), registering a
// filter that drops any payload whose pair does not match. Opening an
// already-open room keeps the existing handle; the bool return reports
// whether a new subscription was created.
func (m *Manager) Open(ownerID, a, b string, onEvent func(*Event)) (bool, error) {
	room := RoomName(a, b)
	opened, err := m.nats.Subscribe(subKey(ownerID, room), room, func(data []byte) {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[pairroom] %s: bad payload: %v", room, err)
			return
		}
		if !MatchesPair(&ev, a, b) {
			log.Printf("[pairroom] %s: dropped cross-talk from %s->%s", room, ev.SenderID, ev.ReceiverID)
			return
		}
		onEvent(&ev)
	})
	if err != nil {
		return false, fmt.Errorf("pairroom: open %s: %w", room, err)
	}
	if opened {
		log.Printf("[pairroom] owner=%s opened %s", ownerID, room)
	}
	return opened, nil
}

// CloseOne tears down the owner's subscription to the room for (a, b).
// Closing a room that is not open is not an error; the bool return
// reports whether an open subscription was actually closed.
func (m *Manager) CloseOne(ownerID, a, b string) bool {
	key := subKey(ownerID, RoomName(a, b))
	if !m.nats.Subscribed(key) {
		return false
	}
	if err := m.nats.Unsubscribe(key); err != nil {
		log.Printf("[pairroom] close %s: %v", key, err)
	}
	return true
}

// CloseAll tears down every room subscription held by the owner and
// returns how many were closed. Called on connection teardown.
func (m *Manager) CloseAll(ownerID string) int {
	return m.nats.UnsubscribePrefix("pair:" + ownerID + ":")
}

// Publish broadcasts a stored message onto the pair room. Best-effort
// fire-and-forget: no persistence, no ack, no ordering guarantee beyond
// the transport's own. NATS publishing needs no local subscription, so the
// room is implicitly live from the first publish.
func (m *Manager) Publish(msg *message.Message) error {
	ev := Event{SenderID: msg.SenderID, ReceiverID: msg.ReceiverID, Message: *msg}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("pairroom: marshal: %w", err)
	}
	room := RoomName(msg.SenderID, msg.ReceiverID)
	if err := m.nats.Publish(room, data); err != nil {
		return fmt.Errorf("pairroom: publish %s: %w", room, err)
	}
	return nil
}
