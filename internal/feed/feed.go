package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/skillswap/realtime/internal/directory"
	"github.com/skillswap/realtime/internal/messaging"
)

// Subject layout. Message and typing feeds are per-user; status and
// profile feeds are global.
const (
	subjectMessageInsert = "feed.message.insert." // + <receiver_id>
	subjectMessageUpdate = "feed.message.update." // + <participant_id>
	subjectTyping        = "feed.typing."         // + <target_id>
	subjectStatus        = "feed.status"
	subjectProfile       = "feed.profile"
)

const hydrateTimeout = 2 * time.Second

// ProfileGetter resolves a user ID to display data during event hydration.
type ProfileGetter interface {
	Get(ctx context.Context, userID string) (*directory.Profile, error)
}

// Subscription is a handle to one open feed subscription.
type Subscription struct {
	key  string
	nats *messaging.Client
}

// Unsubscribe closes the subscription. Safe to call on an already-closed
// handle; the second call is a logged no-op.
func (s *Subscription) Unsubscribe() {
	if err := s.nats.Unsubscribe(s.key); err != nil {
		log.Printf("[feed] %v", err)
	}
}

// Feed publishes and subscribes to row-change events. Subscriptions are
// register-if-absent: asking twice for the same concern returns a handle
// to the already-open subscription.
type Feed struct {
	nats     *messaging.Client
	profiles ProfileGetter
}

// New creates a change feed over the given NATS client. profiles is used
// to hydrate message-insert events with sender display data.
func New(nc *messaging.Client, profiles ProfileGetter) *Feed {
	return &Feed{nats: nc, profiles: profiles}
}

// ---------------------------------------------------------------------------
// Publish side — called by the stores' owners after each mutation.
// ---------------------------------------------------------------------------

// PublishMessageInsert emits an insert event to the receiver's inbound
// feed and an update-feed copy to both participants.
func (f *Feed) PublishMessageInsert(ev *MessageEvent) error {
	ev.Kind = KindInsert
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: marshal message event: %w", err)
	}
	return f.nats.Publish(subjectMessageInsert+ev.Message.ReceiverID, data)
}

// PublishMessageUpdate emits an update event (status promotion, read
// receipt) to both participants' update feeds.
func (f *Feed) PublishMessageUpdate(ev *MessageEvent) error {
	ev.Kind = KindUpdate
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: marshal message event: %w", err)
	}
	if err := f.nats.Publish(subjectMessageUpdate+ev.Message.SenderID, data); err != nil {
		return err
	}
	return f.nats.Publish(subjectMessageUpdate+ev.Message.ReceiverID, data)
}

// PublishTyping emits a typing change to the target's typing feed.
func (f *Feed) PublishTyping(ev *TypingEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: marshal typing event: %w", err)
	}
	return f.nats.Publish(subjectTyping+ev.TargetID, data)
}

// PublishStatus emits a presence change on the global status feed.
func (f *Feed) PublishStatus(ev *StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: marshal status event: %w", err)
	}
	return f.nats.Publish(subjectStatus, data)
}

// PublishProfile emits a profile upsert on the global profile feed.
func (f *Feed) PublishProfile(ev *ProfileEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: marshal profile event: %w", err)
	}
	return f.nats.Publish(subjectProfile, data)
}

// ---------------------------------------------------------------------------
// Subscribe side — one subscription per concern, keyed per consumer.
// ---------------------------------------------------------------------------

func (f *Feed) subscribe(key, subject string, handler func(data []byte)) (*Subscription, error) {
	if _, err := f.nats.Subscribe(key, subject, handler); err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	return &Subscription{key: key, nats: f.nats}, nil
}

// SubscribeMessageInserts delivers hydrated inbound-message events for
// userID. The consumer string distinguishes independent consumers of the
// same user feed (e.g. two connections of the same account).
func (f *Feed) SubscribeMessageInserts(consumer, userID string, cb func(*MessageEvent)) (*Subscription, error) {
	key := "feed:" + consumer + ":msg-insert:" + userID
	return f.subscribe(key, subjectMessageInsert+userID, func(data []byte) {
		var ev MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[feed] message insert: bad payload: %v", err)
			return
		}
		f.hydrate(&ev)
		cb(&ev)
	})
}

// SubscribeMessageUpdates delivers message status-change events for any
// conversation userID participates in.
func (f *Feed) SubscribeMessageUpdates(consumer, userID string, cb func(*MessageEvent)) (*Subscription, error) {
	key := "feed:" + consumer + ":msg-update:" + userID
	return f.subscribe(key, subjectMessageUpdate+userID, func(data []byte) {
		var ev MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[feed] message update: bad payload: %v", err)
			return
		}
		cb(&ev)
	})
}

// SubscribeTyping delivers typing indicator changes aimed at userID.
func (f *Feed) SubscribeTyping(consumer, userID string, cb func(*TypingEvent)) (*Subscription, error) {
	key := "feed:" + consumer + ":typing:" + userID
	return f.subscribe(key, subjectTyping+userID, func(data []byte) {
		var ev TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[feed] typing: bad payload: %v", err)
			return
		}
		cb(&ev)
	})
}

// SubscribeStatus delivers presence changes for all users (global feed).
func (f *Feed) SubscribeStatus(consumer string, cb func(*StatusEvent)) (*Subscription, error) {
	key := "feed:" + consumer + ":status"
	return f.subscribe(key, subjectStatus, func(data []byte) {
		var ev StatusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[feed] status: bad payload: %v", err)
			return
		}
		cb(&ev)
	})
}

// SubscribeProfiles delivers profile upserts for all users (global feed).
func (f *Feed) SubscribeProfiles(consumer string, cb func(*ProfileEvent)) (*Subscription, error) {
	key := "feed:" + consumer + ":profile"
	return f.subscribe(key, subjectProfile, func(data []byte) {
		var ev ProfileEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[feed] profile: bad payload: %v", err)
			return
		}
		cb(&ev)
	})
}

// CloseConsumer tears down every subscription opened under the given
// consumer. Called on connection teardown so no callback outlives the
// connection that registered it.
func (f *Feed) CloseConsumer(consumer string) {
	f.nats.UnsubscribePrefix("feed:" + consumer + ":")
}

// hydrate fills in sender display data on an insert event. A failed or
// empty lookup degrades to a placeholder rather than dropping the event;
// the fast path is an event racing ahead of a directory refresh.
func (f *Feed) hydrate(ev *MessageEvent) {
	if ev.SenderName != "" || f.profiles == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
	defer cancel()

	p, err := f.profiles.Get(ctx, ev.Message.SenderID)
	if err != nil || p == nil {
		if err != nil {
			log.Printf("[feed] hydrate sender %s: %v", ev.Message.SenderID, err)
		}
		ev.SenderName = "Unknown user"
		return
	}
	ev.SenderName = p.Name
	ev.SenderAvatar = p.Avatar
}
