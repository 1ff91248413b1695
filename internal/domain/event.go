package domain

// EventKind is the dispatch category of a real-time event. The status and
// onlineUsers wire frames carry different payloads but share KindStatus, so
// presence subscribers see both.
type EventKind int

const (
	KindMessage EventKind = iota
	KindStatus
	KindTyping
	KindRead
	KindConnection
)

func (k EventKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindStatus:
		return "status"
	case KindTyping:
		return "typing"
	case KindRead:
		return "read"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Event is a decoded real-time event. Events are transient: dispatched once,
// never persisted.
type Event interface {
	Kind() EventKind
}

// MessageEvent is an incoming chat message delivered over the socket.
// MessageID may be empty; the reconciliation layer synthesizes one then.
type MessageEvent struct {
	ChatID      string
	MessageID   string
	SenderName  string
	SenderPhone string
	Content     string
	Timestamp   string
}

func (MessageEvent) Kind() EventKind { return KindMessage }

// StatusEvent marks a single identity going online or offline.
type StatusEvent struct {
	UserPhone string
	Online    bool
}

func (StatusEvent) Kind() EventKind { return KindStatus }

// OnlineUsersEvent is a full snapshot of who is online, replacing any
// previously known set.
type OnlineUsersEvent struct {
	Users []string
}

func (OnlineUsersEvent) Kind() EventKind { return KindStatus }

// TypingEvent signals that an identity started or stopped typing.
type TypingEvent struct {
	UserPhone string
	IsTyping  bool
}

func (TypingEvent) Kind() EventKind { return KindTyping }

// ReadEvent is a read receipt for a chat.
type ReadEvent struct {
	ChatID string
	ReadBy string
}

func (ReadEvent) Kind() EventKind { return KindRead }

// ConnectionEvent reports every open/close transition of the socket.
type ConnectionEvent struct {
	Connected bool
}

func (ConnectionEvent) Kind() EventKind { return KindConnection }
