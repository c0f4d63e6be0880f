package pairroom

import "testing"

func TestRoomNameOrderIndependent(t *testing.T) {
	r1 := RoomName("alice", "bob")
	r2 := RoomName("bob", "alice")
	if r1 != r2 {
		t.Errorf("room names differ: %q vs %q", r1, r2)
	}
}

func TestRoomNameSorted(t *testing.T) {
	if got := RoomName("zoe", "adam"); got != "pair.adam.zoe" {
		t.Errorf("RoomName = %q, want pair.adam.zoe", got)
	}
}

func TestRoomNameDistinctPairs(t *testing.T) {
	if RoomName("alice", "bob") == RoomName("alice", "carol") {
		t.Error("different pairs must not share a room")
	}
}

func TestSubscriptionKeyPerOwner(t *testing.T) {
	room := RoomName("alice", "bob")

	// Two connections of the same user hold independent handles to the
	// same room; closing one must not be able to address the other.
	if subKey("conn-1", room) == subKey("conn-2", room) {
		t.Error("room handles must be keyed by owning connection")
	}
	// And one connection's handles to different rooms stay distinct.
	if subKey("conn-1", room) == subKey("conn-1", RoomName("alice", "carol")) {
		t.Error("one owner's handles to different rooms collided")
	}
}

func TestMatchesPairBothDirections(t *testing.T) {
	fwd := &Event{SenderID: "alice", ReceiverID: "bob"}
	rev := &Event{SenderID: "bob", ReceiverID: "alice"}

	if !MatchesPair(fwd, "alice", "bob") {
		t.Error("forward direction rejected")
	}
	if !MatchesPair(rev, "alice", "bob") {
		t.Error("reverse direction rejected")
	}
}

func TestMatchesPairRejectsCrossTalk(t *testing.T) {
	ev := &Event{SenderID: "mallory", ReceiverID: "bob"}
	if MatchesPair(ev, "alice", "bob") {
		t.Error("cross-talk payload accepted")
	}
}
