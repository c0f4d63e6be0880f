// Package chat orchestrates the messaging data flow: sends fan out from
// the durable store to the pair room, the change feed, and the
// notification pipeline; reads, typing, and presence changes feed back
// through the same paths.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/skillswap/realtime/internal/conversation"
	"github.com/skillswap/realtime/internal/directory"
	"github.com/skillswap/realtime/internal/feed"
	"github.com/skillswap/realtime/internal/media"
	"github.com/skillswap/realtime/internal/message"
	"github.com/skillswap/realtime/internal/metrics"
	"github.com/skillswap/realtime/internal/pairroom"
	"github.com/skillswap/realtime/internal/presence"
	"github.com/skillswap/realtime/internal/ratelimit"
	"github.com/skillswap/realtime/internal/typing"
)

// ErrRateLimited is returned when a user exceeds a send or typing window.
var ErrRateLimited = errors.New("chat: rate limited")

// DefaultHistoryLimit caps a history page when the client asks for zero.
const DefaultHistoryLimit = 50

// attachmentURLTTL is how long presigned attachment download URLs stay
// valid after hydration.
const attachmentURLTTL = 15 * time.Minute

// Notifier publishes message-created events for downstream notification
// delivery. Optional; nil disables the pipeline.
type Notifier interface {
	MessageCreated(ctx context.Context, m *message.Message) error
}

// HistoryEntry is one message of a fetched conversation page, with a
// presigned download URL hydrated for image/file payloads.
type HistoryEntry struct {
	message.Message
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// Service wires the messaging modules together. One instance serves all
// connected users.
type Service struct {
	messages      *message.Store
	conversations *conversation.Aggregator
	directory     *directory.Store
	presence      *presence.Store
	typingStore   *typing.Store
	rooms         *pairroom.Manager
	feed          *feed.Feed
	limiter       *ratelimit.Limiter
	notifier      Notifier     // optional
	media         *media.Store // optional

	deliveredDelay time.Duration
	typingIdle     time.Duration

	mu      sync.Mutex
	typists map[string]*typing.Controller // userID -> debounce controller
}

// Config collects the service dependencies. Notifier and Media may be nil.
type Config struct {
	Messages      *message.Store
	Conversations *conversation.Aggregator
	Directory     *directory.Store
	Presence      *presence.Store
	Typing        *typing.Store
	Rooms         *pairroom.Manager
	Feed          *feed.Feed
	Limiter       *ratelimit.Limiter
	Notifier      Notifier
	Media         *media.Store

	DeliveredDelay time.Duration // 0 = message.DefaultDeliveredDelay
	TypingIdle     time.Duration // 0 = typing.DefaultIdleWindow
}

// NewService creates the orchestration service.
func NewService(cfg Config) *Service {
	if cfg.DeliveredDelay <= 0 {
		cfg.DeliveredDelay = message.DefaultDeliveredDelay
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = typing.DefaultIdleWindow
	}
	return &Service{
		messages:       cfg.Messages,
		conversations:  cfg.Conversations,
		directory:      cfg.Directory,
		presence:       cfg.Presence,
		typingStore:    cfg.Typing,
		rooms:          cfg.Rooms,
		feed:           cfg.Feed,
		limiter:        cfg.Limiter,
		notifier:       cfg.Notifier,
		media:          cfg.Media,
		deliveredDelay: cfg.DeliveredDelay,
		typingIdle:     cfg.TypingIdle,
		typists:        make(map[string]*typing.Controller),
	}
}

// Connect marks the user online and emits a status event. Called when the
// user's first WebSocket connection is established.
func (s *Service) Connect(ctx context.Context, userID string) error {
	if err := s.presence.Init(ctx, userID); err != nil {
		return err
	}
	metrics.OnlineUsers.Inc()
	s.publishStatus(ctx, userID)

	s.mu.Lock()
	if _, ok := s.typists[userID]; !ok {
		c := typing.NewController(userID, s.typingStore, s.typingIdle)
		c.OnExpire(func(targetID string) {
			s.publishTyping(userID, targetID, false)
		})
		s.typists[userID] = c
	}
	s.mu.Unlock()
	return nil
}

// Disconnect marks the user offline, stops their typing timers, and emits
// a status event. Called when the user's last connection closes. A user
// whose Connect never completed (rejected connection, presence init
// failure) has no controller and nothing to tear down; bailing out here
// keeps the online gauge and the status feed free of spurious offline
// transitions.
func (s *Service) Disconnect(ctx context.Context, userID string) {
	s.mu.Lock()
	c, connected := s.typists[userID]
	if connected {
		c.Close()
		delete(s.typists, userID)
	}
	s.mu.Unlock()
	if !connected {
		return
	}

	if err := s.presence.Cleanup(ctx, userID); err != nil {
		log.Printf("[chat] presence cleanup %s: %v", userID, err)
		return
	}
	metrics.OnlineUsers.Dec()
	s.publishStatus(ctx, userID)
}

// Send validates, rate-limits, and stores a message, then fans it out:
// pair room broadcast for the low-latency path, change feed insert event
// for subscribed peers, notification event for offline delivery, and a
// delayed promotion to delivered. The insert error propagates so the
// caller can roll back optimistic state; fan-out failures are logged and
// never retried.
func (s *Service) Send(ctx context.Context, sender, receiver, content, msgType string, replyTo *string) (*message.Message, error) {
	start := time.Now()

	allowed, _ := s.limiter.Allow(ctx, sender, ratelimit.RuleSend)
	if !allowed {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		return nil, ErrRateLimited
	}

	m, err := s.messages.Send(ctx, sender, receiver, content, msgType, replyTo)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	metrics.SendLatency.Observe(time.Since(start).Seconds())

	// The send itself ends any typing burst toward the receiver.
	s.stopTyping(ctx, sender, receiver)

	if err := s.rooms.Publish(m); err != nil {
		log.Printf("[chat] pair broadcast %s: %v", m.ID, err)
	}
	if err := s.feed.PublishMessageInsert(&feed.MessageEvent{Message: *m}); err != nil {
		log.Printf("[chat] feed insert %s: %v", m.ID, err)
	} else {
		metrics.FeedEventsTotal.WithLabelValues("message_insert").Inc()
	}
	if s.notifier != nil {
		if err := s.notifier.MessageCreated(ctx, m); err != nil {
			log.Printf("[chat] notify %s: %v", m.ID, err)
		}
	}

	s.scheduleDelivered(m.ID)
	return m, nil
}

// scheduleDelivered arms the fixed-delay promotion from sent to delivered.
// This simulates delivery; it is not a receiver acknowledgment.
func (s *Service) scheduleDelivered(messageID string) {
	time.AfterFunc(s.deliveredDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		promoted, err := s.messages.MarkDelivered(ctx, messageID)
		if err != nil {
			log.Printf("[chat] delivered promotion %s: %v", messageID, err)
			return
		}
		if !promoted {
			return // already read, or gone
		}
		metrics.MessagesTotal.WithLabelValues("delivered").Inc()

		m, err := s.messages.Get(ctx, messageID)
		if err != nil || m == nil {
			return
		}
		if err := s.feed.PublishMessageUpdate(&feed.MessageEvent{Message: *m}); err != nil {
			log.Printf("[chat] feed update %s: %v", messageID, err)
		} else {
			metrics.FeedEventsTotal.WithLabelValues("message_update").Inc()
		}
	})
}

// MarkRead bulk-marks all messages from peer to reader as read.
// Best-effort: failures are logged, the caller sees success either way.
func (s *Service) MarkRead(ctx context.Context, reader, peer string) {
	if err := s.messages.MarkRead(ctx, reader, peer); err != nil {
		log.Printf("[chat] mark read %s<-%s: %v", reader, peer, err)
		return
	}
	metrics.MessagesTotal.WithLabelValues("read").Inc()

	// Read receipt on the update feed. The event carries the pair and the
	// new status, not individual row IDs: it means "everything from peer
	// to reader is now read".
	ev := &feed.MessageEvent{Message: message.Message{
		SenderID:   peer,
		ReceiverID: reader,
		Status:     message.StatusRead,
	}}
	if err := s.feed.PublishMessageUpdate(ev); err != nil {
		log.Printf("[chat] feed read receipt %s<-%s: %v", reader, peer, err)
	} else {
		metrics.FeedEventsTotal.WithLabelValues("message_update").Inc()
	}
}

// Typing records keystroke activity from userID toward targetID. Only the
// first keystroke of a burst emits a feed event; the controller's expiry
// emits the matching false.
func (s *Service) Typing(ctx context.Context, userID, targetID string) error {
	allowed, _ := s.limiter.Allow(ctx, userID, ratelimit.RuleTyping)
	if !allowed {
		return ErrRateLimited
	}

	s.mu.Lock()
	c, ok := s.typists[userID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("chat: no typing controller for %s (not connected)", userID)
	}

	first, err := c.Keystroke(ctx, targetID)
	if err != nil {
		log.Printf("[chat] typing %s->%s: %v", userID, targetID, err)
	}
	if first {
		s.publishTyping(userID, targetID, true)
	}
	return nil
}

func (s *Service) stopTyping(ctx context.Context, userID, targetID string) {
	s.mu.Lock()
	c, ok := s.typists[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := c.Stop(ctx, targetID); err != nil {
		log.Printf("[chat] typing stop %s->%s: %v", userID, targetID, err)
	}
	s.publishTyping(userID, targetID, false)
}

// History returns a page of the conversation between userID and peer,
// ascending by creation time, with attachment URLs hydrated. Read-path
// failures degrade to an empty page.
func (s *Service) History(ctx context.Context, userID, peer string, limit, offset int) []HistoryEntry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	msgs, err := s.messages.Fetch(ctx, userID, peer, limit, offset)
	if err != nil {
		log.Printf("[chat] history %s/%s: %v", userID, peer, err)
		return []HistoryEntry{}
	}

	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entry := HistoryEntry{Message: m}
		if s.media != nil && (m.Type == message.TypeImage || m.Type == message.TypeFile) {
			url, err := s.media.PresignGet(ctx, m.Content, attachmentURLTTL)
			if err != nil {
				log.Printf("[chat] presign attachment %s: %v", m.ID, err)
			} else {
				entry.AttachmentURL = url
			}
		}
		out = append(out, entry)
	}
	return out
}

// Conversations returns the merged conversation list for userID.
// Read-path failures degrade to an empty list.
func (s *Service) Conversations(ctx context.Context, userID string) []conversation.Preview {
	previews, err := s.conversations.ListConversations(ctx, userID)
	if err != nil {
		log.Printf("[chat] conversations %s: %v", userID, err)
		return []conversation.Preview{}
	}
	return previews
}

// AttachmentTicket mints a presigned upload grant for userID. Returns an
// error when media storage is not configured.
func (s *Service) AttachmentTicket(ctx context.Context, userID, filename string) (*media.UploadTicket, error) {
	if s.media == nil {
		return nil, fmt.Errorf("chat: media storage not configured")
	}
	return s.media.NewUploadTicket(ctx, userID, filename, attachmentURLTTL)
}

// SetStatusMessage updates the user's presence status message and emits a
// status event so peers see the new message without a refetch.
func (s *Service) SetStatusMessage(ctx context.Context, userID, statusMessage string) error {
	if err := s.presence.SetStatusMessage(ctx, userID, statusMessage); err != nil {
		return err
	}
	s.publishStatus(ctx, userID)
	return nil
}

// UpdateProfile upserts the user's directory entry and emits a profile
// event on the global profile feed.
func (s *Service) UpdateProfile(ctx context.Context, p *directory.Profile) error {
	if err := s.directory.Upsert(ctx, p); err != nil {
		return err
	}
	ev := &feed.ProfileEvent{UserID: p.UserID, Name: p.Name, Avatar: p.Avatar}
	if err := s.feed.PublishProfile(ev); err != nil {
		log.Printf("[chat] feed profile %s: %v", p.UserID, err)
	} else {
		metrics.FeedEventsTotal.WithLabelValues("profile").Inc()
	}
	return nil
}

// OpenRoom subscribes the owner handle (one connection) to the pair room
// shared by userID and peer. Opening the same room twice from one owner
// reuses the existing subscription; each connection of a multi-device user
// holds its own.
func (s *Service) OpenRoom(owner, userID, peer string, onEvent func(*pairroom.Event)) error {
	opened, err := s.rooms.Open(owner, userID, peer, onEvent)
	if err != nil {
		return err
	}
	if opened {
		metrics.OpenPairRooms.Inc()
	}
	return nil
}

// CloseRoom drops the owner's subscription to the pair room shared by
// userID and peer.
func (s *Service) CloseRoom(owner, userID, peer string) {
	if s.rooms.CloseOne(owner, userID, peer) {
		metrics.OpenPairRooms.Dec()
	}
}

// CloseRooms tears down every pair room held by the owner handle. Called
// per connection on teardown, independently of the user-level Disconnect.
func (s *Service) CloseRooms(owner string) {
	if closed := s.rooms.CloseAll(owner); closed > 0 {
		metrics.OpenPairRooms.Sub(float64(closed))
	}
}

func (s *Service) publishStatus(ctx context.Context, userID string) {
	st, err := s.presence.Get(ctx, userID)
	if err != nil {
		log.Printf("[chat] status read %s: %v", userID, err)
		return
	}
	ev := &feed.StatusEvent{
		UserID:        st.UserID,
		IsOnline:      st.IsOnline,
		LastSeen:      st.LastSeen,
		StatusMessage: st.StatusMessage,
	}
	if err := s.feed.PublishStatus(ev); err != nil {
		log.Printf("[chat] feed status %s: %v", userID, err)
	} else {
		metrics.FeedEventsTotal.WithLabelValues("status").Inc()
	}
}

func (s *Service) publishTyping(userID, targetID string, isTyping bool) {
	ev := &feed.TypingEvent{UserID: userID, TargetID: targetID, IsTyping: isTyping}
	if err := s.feed.PublishTyping(ev); err != nil {
		log.Printf("[chat] feed typing %s->%s: %v", userID, targetID, err)
	} else {
		metrics.FeedEventsTotal.WithLabelValues("typing").Inc()
	}
}
