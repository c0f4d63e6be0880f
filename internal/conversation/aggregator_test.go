package conversation

import (
	"testing"
	"time"

	"github.com/skillswap/realtime/internal/directory"
	"github.com/skillswap/realtime/internal/presence"
)

func mkProfiles(names ...string) []directory.Profile {
	out := make([]directory.Profile, 0, len(names))
	for _, n := range names {
		out = append(out, directory.Profile{UserID: "id-" + n, Name: n})
	}
	return out
}

func TestMergeDirectoryCompleteness(t *testing.T) {
	profiles := mkProfiles("alice", "bob", "carol")
	summaries := map[string]PeerSummary{
		"id-bob": {PeerID: "id-bob", LastContent: "hey", LastAt: time.Now(), Unread: 2},
	}

	previews := MergePreviews(summaries, profiles, nil)

	if len(previews) != 3 {
		t.Fatalf("expected 3 previews, got %d", len(previews))
	}
	seen := map[string]int{}
	for _, p := range previews {
		seen[p.UserID]++
	}
	for _, prof := range profiles {
		if seen[prof.UserID] != 1 {
			t.Errorf("user %s appears %d times, want exactly once", prof.UserID, seen[prof.UserID])
		}
	}
}

func TestMergeUsersWithoutHistoryAreZeroed(t *testing.T) {
	profiles := mkProfiles("alice")
	previews := MergePreviews(nil, profiles, nil)

	if len(previews) != 1 {
		t.Fatalf("expected 1 preview, got %d", len(previews))
	}
	p := previews[0]
	if p.Unread != 0 || p.LastMessage != "" || !p.LastMessageAt.IsZero() {
		t.Errorf("no-history preview should be zeroed, got %+v", p)
	}
}

func TestMergeSortOnlineFirstThenRecencyThenName(t *testing.T) {
	now := time.Now()
	profiles := mkProfiles("dora", "adam", "bella", "carl")
	summaries := map[string]PeerSummary{
		"id-adam":  {PeerID: "id-adam", LastContent: "old", LastAt: now.Add(-time.Hour)},
		"id-bella": {PeerID: "id-bella", LastContent: "new", LastAt: now},
	}
	statuses := map[string]presence.Status{
		"id-carl": {UserID: "id-carl", IsOnline: true, LastSeen: now},
		"id-dora": {UserID: "id-dora", IsOnline: true, LastSeen: now},
	}

	previews := MergePreviews(summaries, profiles, statuses)

	// Online users first (carl and dora, both without messages, so name
	// ascending); then bella (newest message), adam, neither online.
	want := []string{"id-carl", "id-dora", "id-bella", "id-adam"}
	if len(previews) != len(want) {
		t.Fatalf("expected %d previews, got %d", len(want), len(previews))
	}
	for i, id := range want {
		if previews[i].UserID != id {
			t.Errorf("position %d: got %s, want %s", i, previews[i].UserID, id)
		}
	}
}

func TestMergeOverlaysPresence(t *testing.T) {
	now := time.Now()
	profiles := mkProfiles("alice")
	statuses := map[string]presence.Status{
		"id-alice": {UserID: "id-alice", IsOnline: true, LastSeen: now},
	}

	previews := MergePreviews(nil, profiles, statuses)
	if !previews[0].IsOnline {
		t.Error("presence overlay lost IsOnline")
	}
	if !previews[0].LastSeen.Equal(now) {
		t.Error("presence overlay lost LastSeen")
	}
}

// The inbound count ignores read state: unread counts only reset when the
// client selects the conversation, and MarkRead does not decrement them.
// See DESIGN.md for the rationale.
func TestUnreadCountIgnoresReadState(t *testing.T) {
	profiles := mkProfiles("alice")
	summaries := map[string]PeerSummary{
		// 5 inbound messages, of which (hypothetically) 3 already read:
		// the summary still carries the full count.
		"id-alice": {PeerID: "id-alice", Unread: 5},
	}

	previews := MergePreviews(summaries, profiles, nil)
	if previews[0].Unread != 5 {
		t.Errorf("unread = %d, want 5 (read state not consulted)", previews[0].Unread)
	}
}
