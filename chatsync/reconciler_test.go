package chatsync

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestReconciler() *Reconciler {
	return NewReconciler(nil)
}

func TestParticipantJoinedIdempotent(t *testing.T) {
	r := newTestReconciler()
	p := Participant{ID: "u1", DisplayName: "bob"}

	r.ApplyParticipantJoined(p)
	first := r.Snapshot().Participants["u1"]

	// A duplicate join, e.g. from a reconnect race, must neither duplicate
	// nor reset the entry.
	r.ApplyParticipantJoined(Participant{ID: "u1", DisplayName: "bob-stale"})

	require.Len(t, r.Snapshot().Participants, 1)
	require.Same(t, first, r.Snapshot().Participants["u1"])
	require.Equal(t, "bob", r.Snapshot().Participants["u1"].DisplayName)
}

func TestMessagesKeepArrivalOrder(t *testing.T) {
	r := newTestReconciler()
	r.ApplyRoomCreated(Room{ID: "r1", Name: "general"})

	// Embedded timestamps deliberately run backwards: ordering is arrival
	// order, not sender clock order.
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for i, id := range ids {
		r.ApplyMessage(MessageEvent{RoomID: "r1", Message: Message{
			ID:        id,
			AuthorID:  "u1",
			Text:      "msg",
			Timestamp: int64(100 - i),
		}})
	}

	msgs := r.Snapshot().Rooms["r1"].Messages
	require.Len(t, msgs, 3)
	for i, id := range ids {
		require.Equal(t, id, msgs[i].ID)
	}
}

func TestMessageForUnknownRoomDropped(t *testing.T) {
	r := newTestReconciler()

	r.ApplyMessage(MessageEvent{RoomID: "ghost", Message: Message{ID: uuid.NewString(), Text: "hi"}})

	require.Empty(t, r.Snapshot().Rooms)
}

func TestReconnectConvergenceEmptyBulk(t *testing.T) {
	r := newTestReconciler()
	r.ApplyParticipantJoined(Participant{ID: "u1", DisplayName: "bob"})
	r.ApplyRoomCreated(Room{ID: "r1", Name: "general"})
	r.ApplyTyping(TypingSignal{ParticipantID: "u1", RoomID: "r1", IsTyping: true})

	r.SetConnectionState(StateDisconnected)
	r.SetConnectionState(StateConnected)
	// The server is authoritative on reconnect: empty bulk events empty
	// the local sets.
	r.ApplyRoster(nil)
	r.ApplyRooms(nil)

	require.Empty(t, r.Snapshot().Participants)
	require.Empty(t, r.Snapshot().Rooms)
	require.Empty(t, r.Snapshot().Typing)
	require.Empty(t, r.Snapshot().ActiveRoomID)
}

func TestTypingSymmetry(t *testing.T) {
	r := newTestReconciler()
	r.ApplyTyping(TypingSignal{ParticipantID: "u2", RoomID: "r9", IsTyping: true})

	r.ApplyTyping(TypingSignal{ParticipantID: "u1", RoomID: "r1", IsTyping: true})
	r.ApplyTyping(TypingSignal{ParticipantID: "u1", RoomID: "r1", IsTyping: true}) // duplicate insert
	r.ApplyTyping(TypingSignal{ParticipantID: "u1", RoomID: "r1", IsTyping: false})

	require.Len(t, r.Snapshot().Typing, 1)
	require.Contains(t, r.Snapshot().Typing, TypingKey{ParticipantID: "u2", RoomID: "r9"})
}

func TestTypingNeverContainsSelf(t *testing.T) {
	r := newTestReconciler()
	r.MarkLoggedIn("alice")

	// The server assigns the local id via the self-join echo.
	r.ApplyParticipantJoined(Participant{ID: "me", DisplayName: "alice"})
	require.Equal(t, "me", r.Snapshot().Identity.LocalID)
	require.NotContains(t, r.Snapshot().Participants, "me")

	r.ApplyTyping(TypingSignal{ParticipantID: "me", RoomID: "r1", IsTyping: true})

	require.Empty(t, r.Snapshot().Typing)
}

func TestTypingEchoBeforeIdentityAdoptionIsPurged(t *testing.T) {
	r := newTestReconciler()
	r.MarkLoggedIn("alice")

	// The typing echo carries only an id, which the display-name fallback
	// cannot match until a presence event reveals which id is ours.
	r.ApplyTyping(TypingSignal{ParticipantID: "me", RoomID: "r1", IsTyping: true})
	require.Len(t, r.Snapshot().Typing, 1)

	r.ApplyParticipantJoined(Participant{ID: "me", DisplayName: "alice"})

	require.Equal(t, "me", r.Snapshot().Identity.LocalID)
	require.Empty(t, r.Snapshot().Typing)
}

func TestParticipantLeftPurgesTyping(t *testing.T) {
	r := newTestReconciler()
	r.ApplyParticipantJoined(Participant{ID: "bob", DisplayName: "bob"})
	r.ApplyTyping(TypingSignal{ParticipantID: "bob", RoomID: "r1", IsTyping: true})
	r.ApplyTyping(TypingSignal{ParticipantID: "bob", RoomID: "r2", IsTyping: true})
	r.ApplyTyping(TypingSignal{ParticipantID: "eve", RoomID: "r1", IsTyping: true})

	r.ApplyParticipantLeft("bob")

	require.NotContains(t, r.Snapshot().Participants, "bob")
	require.Len(t, r.Snapshot().Typing, 1)
	require.Contains(t, r.Snapshot().Typing, TypingKey{ParticipantID: "eve", RoomID: "r1"})
}

func TestRosterReplaceDropsStaleKeepsPointers(t *testing.T) {
	r := newTestReconciler()
	r.ApplyParticipantJoined(Participant{ID: "u1", DisplayName: "bob"})
	r.ApplyParticipantJoined(Participant{ID: "u2", DisplayName: "eve"})
	survivor := r.Snapshot().Participants["u1"]

	r.ApplyRoster([]Participant{
		{ID: "u1", DisplayName: "bob-renamed"},
		{ID: "u3", DisplayName: "mallory"},
	})

	ps := r.Snapshot().Participants
	require.Len(t, ps, 2)
	require.NotContains(t, ps, "u2")
	require.Same(t, survivor, ps["u1"])
	require.Equal(t, "bob-renamed", ps["u1"].DisplayName)
}

func TestParticipantUpdatedInPlace(t *testing.T) {
	r := newTestReconciler()
	r.ApplyParticipantJoined(Participant{ID: "u1", DisplayName: "bob"})
	held := r.Snapshot().Participants["u1"]

	r.ApplyParticipantUpdated(Participant{ID: "u1", DisplayName: "bobby", Description: "new"})

	require.Same(t, held, r.Snapshot().Participants["u1"])
	require.Equal(t, "bobby", held.DisplayName)
	require.Equal(t, "new", held.Description)
}

func TestRoomsReplaceMergePolicy(t *testing.T) {
	r := newTestReconciler()
	r.ApplyRoomCreated(Room{ID: "r1", Name: "general"})
	r.ApplyMessage(MessageEvent{RoomID: "r1", Message: Message{ID: "m1", Text: "local"}})
	held := r.Snapshot().Rooms["r1"]

	// No message list on the incoming room: locally accumulated messages
	// survive the replace.
	r.ApplyRooms([]Room{{ID: "r1", Name: "general-renamed"}})
	require.Same(t, held, r.Snapshot().Rooms["r1"])
	require.Equal(t, "general-renamed", held.Name)
	require.Len(t, held.Messages, 1)

	// An incoming message list is authoritative and adopted verbatim.
	r.ApplyRooms([]Room{{ID: "r1", Name: "general", Messages: []Message{{ID: "m2"}, {ID: "m3"}}}})
	require.Len(t, held.Messages, 2)
	require.Equal(t, "m2", held.Messages[0].ID)
}

func TestRoomsReplaceClearsDanglingActiveRoom(t *testing.T) {
	r := newTestReconciler()
	r.ApplyRoomCreated(Room{ID: "r1", Name: "general"})
	require.Equal(t, "r1", r.Snapshot().ActiveRoomID)

	r.ApplyRooms([]Room{{ID: "r2", Name: "other"}})

	require.Empty(t, r.Snapshot().ActiveRoomID)
}

func TestRoomCreatedDedupesAndActivates(t *testing.T) {
	r := newTestReconciler()
	r.ApplyRoomCreated(Room{ID: "r1", Name: "one", Messages: []Message{{ID: "m1"}}})
	r.ApplyRoomCreated(Room{ID: "r2", Name: "two"})
	require.Equal(t, "r2", r.Snapshot().ActiveRoomID)

	// Duplicate creation re-activates without resetting the existing room.
	r.ApplyRoomCreated(Room{ID: "r1", Name: "one-dup", Messages: nil})

	require.Len(t, r.Snapshot().Rooms, 2)
	require.Equal(t, "r1", r.Snapshot().ActiveRoomID)
	require.Equal(t, "one", r.Snapshot().Rooms["r1"].Name)
	require.Len(t, r.Snapshot().Rooms["r1"].Messages, 1)
}

func TestDisconnectKeepsStateAndLogin(t *testing.T) {
	r := newTestReconciler()
	r.SetConnectionState(StateConnected)
	r.MarkLoggedIn("alice")
	r.ApplyParticipantJoined(Participant{ID: "me", DisplayName: "alice"})
	r.ApplyParticipantJoined(Participant{ID: "u1", DisplayName: "bob"})
	r.ApplyRoomCreated(Room{ID: "r1", Name: "general"})

	r.SetConnectionState(StateDisconnected)

	snap := r.Snapshot()
	require.Equal(t, StateDisconnected, snap.State)
	require.True(t, snap.LoggedIn, "a transient drop must not bounce the user to a login prompt")
	require.Len(t, snap.Participants, 1)
	require.Len(t, snap.Rooms, 1)
	// The server-assigned local id is only valid per connection.
	require.Empty(t, snap.Identity.LocalID)
	require.Equal(t, "alice", snap.Identity.DisplayName)
}

func TestUpdatedSelfNotAddedToParticipants(t *testing.T) {
	r := newTestReconciler()
	r.MarkLoggedIn("alice")
	r.ApplyParticipantJoined(Participant{ID: "me", DisplayName: "alice"})

	r.ApplyParticipantUpdated(Participant{ID: "me", DisplayName: "alice", Description: "hey"})

	require.Empty(t, r.Snapshot().Participants)
}

func TestUpdateForUnknownParticipantActsAsJoin(t *testing.T) {
	r := newTestReconciler()

	r.ApplyParticipantUpdated(Participant{ID: "u1", DisplayName: "bob"})

	require.Contains(t, r.Snapshot().Participants, "u1")
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	r := newTestReconciler()
	r.ApplyParticipantJoined(Participant{ID: "u1", DisplayName: "bob"})
	r.ApplyRoomCreated(Room{ID: "r1", Name: "general"})
	r.ApplyMessage(MessageEvent{RoomID: "r1", Message: Message{ID: "m1"}})

	clone := r.Snapshot().Clone()
	r.ApplyParticipantUpdated(Participant{ID: "u1", DisplayName: "changed"})
	r.ApplyMessage(MessageEvent{RoomID: "r1", Message: Message{ID: "m2"}})

	require.Equal(t, "bob", clone.Participants["u1"].DisplayName)
	require.Len(t, clone.Rooms["r1"].Messages, 1)
}

func TestTypingInHelper(t *testing.T) {
	r := newTestReconciler()
	r.ApplyTyping(TypingSignal{ParticipantID: "u1", RoomID: "r1", IsTyping: true})
	r.ApplyTyping(TypingSignal{ParticipantID: "u2", RoomID: "r2", IsTyping: true})

	typing := r.Snapshot().TypingIn("r1")
	require.Equal(t, []string{"u1"}, typing)
}
