package chatsync

import "github.com/samber/lo"

// Identity is the local user as known to the server for this connection.
// LocalID is assigned by the server per connection; DisplayName is chosen
// by the user and survives reconnects through the session store.
type Identity struct {
	LocalID     string
	DisplayName string
	Description string
}

// TypingKey identifies one entry in the derived typing set.
type TypingKey struct {
	ParticipantID string
	RoomID        string
}

// Snapshot is the complete current value of chat state. It is owned and
// mutated by the reconciler, one event at a time; observers must treat it
// as read-only and use Clone to retain it past a callback.
type Snapshot struct {
	State        ConnectionState
	LoggedIn     bool
	Identity     *Identity
	Participants map[string]*Participant
	Rooms        map[string]*Room
	ActiveRoomID string
	Typing       map[TypingKey]struct{}
}

// NewSnapshot returns an empty disconnected snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		State:        StateDisconnected,
		Participants: make(map[string]*Participant),
		Rooms:        make(map[string]*Room),
		Typing:       make(map[TypingKey]struct{}),
	}
}

// ActiveRoom returns the room the active-room pointer refers to, or nil.
func (s *Snapshot) ActiveRoom() *Room {
	if s.ActiveRoomID == "" {
		return nil
	}
	return s.Rooms[s.ActiveRoomID]
}

// TypingIn returns the ids of participants currently typing in a room.
func (s *Snapshot) TypingIn(roomID string) []string {
	keys := lo.Filter(lo.Keys(s.Typing), func(k TypingKey, _ int) bool {
		return k.RoomID == roomID
	})
	return lo.Map(keys, func(k TypingKey, _ int) string { return k.ParticipantID })
}

// Clone returns a deep copy safe to retain outside the reconciler loop.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		State:        s.State,
		LoggedIn:     s.LoggedIn,
		ActiveRoomID: s.ActiveRoomID,
		Participants: make(map[string]*Participant, len(s.Participants)),
		Rooms:        make(map[string]*Room, len(s.Rooms)),
		Typing:       make(map[TypingKey]struct{}, len(s.Typing)),
	}
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	for k, p := range s.Participants {
		cp := *p
		out.Participants[k] = &cp
	}
	for k, r := range s.Rooms {
		cr := *r
		cr.ParticipantIDs = append([]string(nil), r.ParticipantIDs...)
		cr.Messages = append([]Message(nil), r.Messages...)
		out.Rooms[k] = &cr
	}
	for k := range s.Typing {
		out.Typing[k] = struct{}{}
	}
	return out
}
