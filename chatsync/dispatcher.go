package chatsync

// Dispatcher routes decoded server events to registered callbacks.
type Dispatcher struct {
	onMessage            func(MessageEvent)
	onParticipantJoined  func(Participant)
	onParticipantLeft    func(Participant)
	onParticipantUpdated func(Participant)
	onRoster             func([]Participant)
	onRooms              func([]Room)
	onRoomCreated        func(Room)
	onTyping             func(TypingSignal)
	onError              func(error)
}

func (d *Dispatcher) SetOnMessage(fn func(MessageEvent))           { d.onMessage = fn }
func (d *Dispatcher) SetOnParticipantJoined(fn func(Participant))  { d.onParticipantJoined = fn }
func (d *Dispatcher) SetOnParticipantLeft(fn func(Participant))    { d.onParticipantLeft = fn }
func (d *Dispatcher) SetOnParticipantUpdated(fn func(Participant)) { d.onParticipantUpdated = fn }
func (d *Dispatcher) SetOnRoster(fn func([]Participant))           { d.onRoster = fn }
func (d *Dispatcher) SetOnRooms(fn func([]Room))                   { d.onRooms = fn }
func (d *Dispatcher) SetOnRoomCreated(fn func(Room))               { d.onRoomCreated = fn }
func (d *Dispatcher) SetOnTyping(fn func(TypingSignal))            { d.onTyping = fn }
func (d *Dispatcher) SetOnError(fn func(error))                    { d.onError = fn }

func (d *Dispatcher) Dispatch(out Outbound) {
	if out.Type == outboundError && out.Error != nil && d.onError != nil {
		d.onError(FromProtocolError(out.Error))
		return
	}
	switch out.Event {
	case eventMessage:
		if d.onMessage == nil {
			return
		}
		var ev MessageEvent
		if err := UnmarshalData(out.Data, &ev); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal message event", err))
			return
		}
		d.onMessage(ev)
	case eventUserJoined:
		if d.onParticipantJoined == nil {
			return
		}
		var p Participant
		if err := UnmarshalData(out.Data, &p); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal userJoined event", err))
			return
		}
		d.onParticipantJoined(p)
	case eventUserLeft:
		if d.onParticipantLeft == nil {
			return
		}
		var p Participant
		if err := UnmarshalData(out.Data, &p); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal userLeft event", err))
			return
		}
		d.onParticipantLeft(p)
	case eventUserUpdated:
		if d.onParticipantUpdated == nil {
			return
		}
		var p Participant
		if err := UnmarshalData(out.Data, &p); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal userUpdated event", err))
			return
		}
		d.onParticipantUpdated(p)
	case eventUsersList:
		if d.onRoster == nil {
			return
		}
		var ps []Participant
		if err := UnmarshalData(out.Data, &ps); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal usersList event", err))
			return
		}
		d.onRoster(ps)
	case eventChatRooms:
		if d.onRooms == nil {
			return
		}
		var rooms []Room
		if err := UnmarshalData(out.Data, &rooms); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal chatRooms event", err))
			return
		}
		d.onRooms(rooms)
	case eventRoomCreated:
		if d.onRoomCreated == nil {
			return
		}
		var room Room
		if err := UnmarshalData(out.Data, &room); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal roomCreated event", err))
			return
		}
		d.onRoomCreated(room)
	case eventUserTyping:
		if d.onTyping == nil {
			return
		}
		var sig TypingSignal
		if err := UnmarshalData(out.Data, &sig); err != nil {
			d.fireError(WrapError(ErrorSerialization, "failed to unmarshal userTyping event", err))
			return
		}
		d.onTyping(sig)
	}
}

func (d *Dispatcher) fireError(err error) {
	if d.onError != nil && err != nil {
		d.onError(err)
	}
}
