package chatsync

import "github.com/samber/lo"

// Reconciler merges server events into the canonical snapshot. It is not
// goroutine-safe on its own: the client drives it from a single loop, one
// event or intent to completion before the next.
//
// Every handler is total. A malformed or unexpected event leaves the
// snapshot unchanged and is logged, never surfaced as a fault.
type Reconciler struct {
	logger Logger
	snap   *Snapshot
}

// NewReconciler returns a reconciler over a fresh snapshot.
func NewReconciler(logger Logger) *Reconciler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Reconciler{
		logger: logger,
		snap:   NewSnapshot(),
	}
}

// Snapshot returns the live snapshot. Callers outside the client loop must
// Clone before retaining it.
func (r *Reconciler) Snapshot() *Snapshot {
	return r.snap
}

// ApplyMessage appends a message to its room in arrival order. A message
// for an unknown room is a protocol violation: it is dropped and logged,
// never used to fabricate a room.
func (r *Reconciler) ApplyMessage(ev MessageEvent) {
	room, ok := r.snap.Rooms[ev.RoomID]
	if !ok {
		r.logger.Warn("message for unknown room dropped", map[string]any{
			"roomId":    ev.RoomID,
			"messageId": ev.Message.ID,
		})
		return
	}
	room.Messages = append(room.Messages, ev.Message)
}

// ApplyParticipantJoined inserts a participant unless one with the same id
// is already known. Duplicate joins, e.g. from reconnect races, neither
// duplicate nor reset the existing entry.
func (r *Reconciler) ApplyParticipantJoined(p Participant) {
	if r.adoptIfSelf(p) {
		return
	}
	if _, ok := r.snap.Participants[p.ID]; ok {
		return
	}
	cp := p
	r.snap.Participants[p.ID] = &cp
}

// ApplyParticipantLeft removes a participant and purges every typing entry
// for it across all rooms, preventing stale "is typing" ghosts.
func (r *Reconciler) ApplyParticipantLeft(id string) {
	delete(r.snap.Participants, id)
	r.snap.Typing = lo.OmitBy(r.snap.Typing, func(k TypingKey, _ struct{}) bool {
		return k.ParticipantID == id
	})
}

// ApplyParticipantUpdated replaces a participant's mutable fields in place.
// The stored pointer is preserved so consumers holding a reference observe
// the update.
func (r *Reconciler) ApplyParticipantUpdated(p Participant) {
	if r.adoptIfSelf(p) {
		return
	}
	existing, ok := r.snap.Participants[p.ID]
	if !ok {
		// Update for a participant that never joined: treat as a join.
		r.ApplyParticipantJoined(p)
		return
	}
	existing.DisplayName = p.DisplayName
	existing.Description = p.Description
}

// ApplyRoster fully replaces the participant set, used after reconnect to
// resynchronize. Entries for users who left while disconnected disappear;
// pointers of participants that survive the replace are kept. Typing
// entries for participants no longer present are purged.
func (r *Reconciler) ApplyRoster(participants []Participant) {
	next := make(map[string]*Participant, len(participants))
	for _, p := range participants {
		if r.adoptIfSelf(p) {
			continue
		}
		if existing, ok := r.snap.Participants[p.ID]; ok {
			existing.DisplayName = p.DisplayName
			existing.Description = p.Description
			next[p.ID] = existing
			continue
		}
		cp := p
		next[p.ID] = &cp
	}
	r.snap.Participants = next
	r.snap.Typing = lo.OmitBy(r.snap.Typing, func(k TypingKey, _ struct{}) bool {
		_, known := next[k.ParticipantID]
		return !known
	})
}

// ApplyRooms fully replaces the room list. Per-room merge policy: a known
// room keeps its local pointer; if the incoming room carries a message
// list the server is authoritative and it is adopted verbatim, otherwise
// the locally accumulated messages are kept. Rooms absent from the
// incoming list are dropped, and the active-room pointer is cleared if its
// target disappears.
func (r *Reconciler) ApplyRooms(rooms []Room) {
	next := make(map[string]*Room, len(rooms))
	for _, in := range rooms {
		existing, ok := r.snap.Rooms[in.ID]
		if !ok {
			cp := in
			next[in.ID] = &cp
			continue
		}
		existing.Name = in.Name
		existing.ParticipantIDs = in.ParticipantIDs
		existing.IsGroup = in.IsGroup
		if in.Messages != nil {
			existing.Messages = in.Messages
		}
		next[in.ID] = existing
	}
	r.snap.Rooms = next
	if r.snap.ActiveRoomID != "" {
		if _, ok := next[r.snap.ActiveRoomID]; !ok {
			r.snap.ActiveRoomID = ""
		}
	}
}

// ApplyRoomCreated inserts a room if absent and makes it the active room.
// A duplicate event re-activates the existing room without resetting it.
func (r *Reconciler) ApplyRoomCreated(room Room) {
	if _, ok := r.snap.Rooms[room.ID]; !ok {
		cp := room
		r.snap.Rooms[room.ID] = &cp
	}
	r.snap.ActiveRoomID = room.ID
}

// ApplyTyping inserts or removes an entry in the derived typing set.
// Inserts are idempotent on (participantId, roomId); a false signal
// removes the entry. Signals for the local identity are ignored so the
// client never shows itself as typing.
func (r *Reconciler) ApplyTyping(sig TypingSignal) {
	if r.isSelf(Participant{ID: sig.ParticipantID}) {
		return
	}
	key := TypingKey{ParticipantID: sig.ParticipantID, RoomID: sig.RoomID}
	if sig.IsTyping {
		r.snap.Typing[key] = struct{}{}
		return
	}
	delete(r.snap.Typing, key)
}

// SetConnectionState records a transport lifecycle transition. Disconnect
// leaves all chat state untouched except the server-assigned local id,
// which is only valid per connection. LoggedIn deliberately survives a
// drop so a transient outage does not bounce the user to a login prompt.
func (r *Reconciler) SetConnectionState(state ConnectionState) {
	if state.Connected() {
		r.snap.State = StateConnected
	} else {
		r.snap.State = StateDisconnected
		if r.snap.Identity != nil {
			r.snap.Identity.LocalID = ""
		}
	}
}

// MarkLoggedIn records a successful join intent for the given name. Join
// has no rejection path: it always succeeds from the client's perspective.
func (r *Reconciler) MarkLoggedIn(displayName string) {
	r.snap.LoggedIn = true
	if r.snap.Identity == nil {
		r.snap.Identity = &Identity{DisplayName: displayName}
		return
	}
	r.snap.Identity.DisplayName = displayName
}

// SetProfile updates the local identity immediately so the UI reflects a
// profile change without waiting for the server round trip.
func (r *Reconciler) SetProfile(displayName, description string) {
	if r.snap.Identity == nil {
		r.snap.Identity = &Identity{}
	}
	r.snap.Identity.DisplayName = displayName
	r.snap.Identity.Description = description
}

// SetActiveRoom moves the active-room pointer. An unknown id clears it.
func (r *Reconciler) SetActiveRoom(roomID string) {
	if roomID == "" {
		r.snap.ActiveRoomID = ""
		return
	}
	if _, ok := r.snap.Rooms[roomID]; !ok {
		r.logger.Warn("active room set to unknown room, clearing", map[string]any{"roomId": roomID})
		r.snap.ActiveRoomID = ""
		return
	}
	r.snap.ActiveRoomID = roomID
}

// isSelf reports whether a pushed participant is the local identity. The
// server assigns the local id per connection and never sends it out of
// band, so before it is known the match falls back to the display name
// announced on join.
func (r *Reconciler) isSelf(p Participant) bool {
	id := r.snap.Identity
	if id == nil {
		return false
	}
	if id.LocalID != "" {
		return p.ID == id.LocalID
	}
	return p.DisplayName != "" && p.DisplayName == id.DisplayName
}

// adoptIfSelf captures the server-assigned id the first time the local
// identity shows up in a presence event. Self is never stored in the
// participant set: participants are remote users only. A typing echo can
// outrun the presence event that reveals which id is ours, so adoption
// also purges any typing entry the id sneaked in while it was unknown.
func (r *Reconciler) adoptIfSelf(p Participant) bool {
	if !r.isSelf(p) {
		return false
	}
	if r.snap.Identity.LocalID == "" {
		r.snap.Identity.LocalID = p.ID
		r.snap.Typing = lo.OmitBy(r.snap.Typing, func(k TypingKey, _ struct{}) bool {
			return k.ParticipantID == p.ID
		})
	}
	return true
}
