// Package conversation builds the conversation list: per-peer message
// summaries from PostgreSQL merged with the full user directory and the
// live presence snapshot.
package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/skillswap/realtime/internal/directory"
	"github.com/skillswap/realtime/internal/presence"
)

// PeerSummary is the message-derived half of a conversation preview: the
// most recent message exchanged with a peer and the inbound message count.
type PeerSummary struct {
	PeerID      string
	LastContent string
	LastType    string
	LastAt      time.Time
	Unread      int
}

// Preview is one entry of the merged conversation list. Derived on demand,
// never persisted.
type Preview struct {
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Avatar        string    `json:"avatar"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	Unread        int       `json:"unread"`
	IsOnline      bool      `json:"is_online"`
	LastSeen      time.Time `json:"last_seen,omitempty"`
}

// Aggregator merges message summaries, directory entries, and presence
// state into the sorted conversation list.
type Aggregator struct {
	db        *sql.DB
	directory *directory.Store
	presence  *presence.Store
}

// NewAggregator creates an aggregator over the given stores.
func NewAggregator(db *sql.DB, dir *directory.Store, pres *presence.Store) *Aggregator {
	return &Aggregator{db: db, directory: dir, presence: pres}
}

// ListConversations returns one preview per known user (except self),
// whether or not any messages have been exchanged, sorted online-first,
// then most-recent message, then name.
func (a *Aggregator) ListConversations(ctx context.Context, userID string) ([]Preview, error) {
	summaries, err := a.peerSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	profiles, err := a.directory.ListAllExcept(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}
	statuses, err := a.presence.Snapshot(ctx, ids)
	if err != nil {
		return nil, err
	}

	return MergePreviews(summaries, profiles, statuses), nil
}

// peerSummaries scans all messages touching the user, grouped by peer:
// the most recent message per peer plus the inbound count.
//
// The inbound count deliberately ignores read/delivered state: every
// message from the peer counts until the client zeroes it locally on
// selection. MarkRead does not decrement it. Observed behavior, kept as is.
func (a *Aggregator) peerSummaries(ctx context.Context, userID string) (map[string]PeerSummary, error) {
	const latestQuery = `
		SELECT DISTINCT ON (peer) peer, content, message_type, created_at
		FROM (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer,
			       content, message_type, created_at
			FROM messages
			WHERE sender_id = $1 OR receiver_id = $1
		) m
		ORDER BY peer, created_at DESC`

	rows, err := a.db.QueryContext(ctx, latestQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: latest per peer: %w", err)
	}
	defer rows.Close()

	summaries := map[string]PeerSummary{}
	for rows.Next() {
		var s PeerSummary
		if err := rows.Scan(&s.PeerID, &s.LastContent, &s.LastType, &s.LastAt); err != nil {
			return nil, fmt.Errorf("conversation: latest scan: %w", err)
		}
		summaries[s.PeerID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: latest rows: %w", err)
	}

	const inboundQuery = `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE receiver_id = $1
		GROUP BY sender_id`

	counts, err := a.db.QueryContext(ctx, inboundQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: inbound counts: %w", err)
	}
	defer counts.Close()

	for counts.Next() {
		var peer string
		var n int
		if err := counts.Scan(&peer, &n); err != nil {
			return nil, fmt.Errorf("conversation: count scan: %w", err)
		}
		s := summaries[peer]
		s.PeerID = peer
		s.Unread = n
		summaries[peer] = s
	}
	if err := counts.Err(); err != nil {
		return nil, fmt.Errorf("conversation: count rows: %w", err)
	}

	return summaries, nil
}

// MergePreviews combines message-derived summaries with the full directory
// and the presence snapshot. Every directory user appears exactly once,
// even with zero message history. Sort: online first, then last message
// time descending, then name ascending.
func MergePreviews(summaries map[string]PeerSummary, profiles []directory.Profile, statuses map[string]presence.Status) []Preview {
	out := make([]Preview, 0, len(profiles))
	for _, p := range profiles {
		pv := Preview{
			UserID: p.UserID,
			Name:   p.Name,
			Avatar: p.Avatar,
		}
		if s, ok := summaries[p.UserID]; ok {
			pv.LastMessage = s.LastContent
			pv.LastMessageAt = s.LastAt
			pv.Unread = s.Unread
		}
		if st, ok := statuses[p.UserID]; ok {
			pv.IsOnline = st.IsOnline
			pv.LastSeen = st.LastSeen
		}
		out = append(out, pv)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsOnline != out[j].IsOnline {
			return out[i].IsOnline
		}
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
