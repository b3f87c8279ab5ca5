package chatsync

// Participant is a remote user as pushed by the server.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

// Message is an immutable chat message. Messages belong to exactly one
// room and are appended in arrival order.
type Message struct {
	ID         string `json:"id"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorDisplayName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// Room groups participants and their messages. Messages is nil when the
// server pushes a room without history; the reconciler keeps whatever it
// has accumulated locally in that case.
type Room struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ParticipantIDs []string  `json:"participants"`
	IsGroup        bool      `json:"isGroup"`
	Messages       []Message `json:"messages,omitempty"`
}

// MessageEvent emitted when someone sends a message to a room.
type MessageEvent struct {
	RoomID  string  `json:"roomId"`
	Message Message `json:"message"`
}

// TypingSignal emitted when a participant starts or stops typing.
type TypingSignal struct {
	ParticipantID string `json:"participantId"`
	RoomID        string `json:"roomId"`
	IsTyping      bool   `json:"isTyping"`
}
