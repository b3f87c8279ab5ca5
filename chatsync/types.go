package chatsync

import "encoding/json"

const (
	// Client -> server intent types.
	intentJoin             = "join"
	intentMessage          = "message"
	intentTyping           = "typing"
	intentCreateRoom       = "createRoom"
	intentStartPrivateChat = "startPrivateChat"
	intentUpdateUser       = "updateUser"

	outboundEvent = "event"
	outboundError = "error"

	// Server -> client event names.
	eventMessage     = "message"
	eventUserJoined  = "userJoined"
	eventUserLeft    = "userLeft"
	eventUserUpdated = "userUpdated"
	eventUsersList   = "usersList"
	eventChatRooms   = "chatRooms"
	eventRoomCreated = "roomCreated"
	eventUserTyping  = "userTyping"
)

// Inbound represents the envelope from client to server.
type Inbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Outbound is the envelope server -> client.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// JoinPayload announces the chosen display name.
type JoinPayload struct {
	DisplayName string `json:"displayName"`
}

// MessagePayload sends a message to a room.
type MessagePayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// TypingPayload signals the local typing state for a room.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// CreateRoomPayload requests a new group room.
type CreateRoomPayload struct {
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participantIds"`
}

// StartPrivateChatPayload requests a one-to-one room with a participant.
type StartPrivateChatPayload struct {
	ParticipantID string `json:"participantId"`
}

// UpdateUserPayload updates the local profile on the server.
type UpdateUserPayload struct {
	Username    string `json:"username"`
	Description string `json:"description"`
}

// Error describes a protocol error.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}
