package domain

// MessageType distinguishes message payloads. The server currently delivers
// TEXT and IMAGE.
type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
)

// Message is a single chat message. Immutable once appended to a chat.
// Timestamp is the server's string representation and is compared by
// equality, never parsed.
type Message struct {
	ID          string      `json:"messageId"`
	SenderName  string      `json:"senderName"`
	SenderPhone string      `json:"senderPhone"`
	Content     string      `json:"content"`
	Timestamp   string      `json:"timestamp"`
	Type        MessageType `json:"messageType"`
}

// Equal reports whether two messages are the same under the identity key
// {content, sender, timestamp}. Server-assigned ids are ignored because the
// real-time path may not carry one.
func (m Message) Equal(other Message) bool {
	return m.Content == other.Content &&
		m.SenderPhone == other.SenderPhone &&
		m.Timestamp == other.Timestamp
}

// Chat is an ordered message history keyed by a stable chat id.
type Chat struct {
	ID              string    `json:"chatId"`
	Name            string    `json:"chatName"`
	Messages        []Message `json:"messages"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime string    `json:"lastMessageTime"`
	Participants    []string  `json:"participants"`
	IsGroup         bool      `json:"isGroup"`
	GroupAdmin      string    `json:"groupAdmin,omitempty"`
}

// Contains reports whether the chat already holds a message equal to m.
func (c *Chat) Contains(m Message) bool {
	for _, existing := range c.Messages {
		if existing.Equal(m) {
			return true
		}
	}
	return false
}

// Recipients returns the participants other than self: everyone else for a
// group chat, the single other party for a direct chat.
func (c *Chat) Recipients(self string) []string {
	var out []string
	for _, p := range c.Participants {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}

// User is the logged-in identity. UserPhone is the unique address used for
// registration and self-echo filtering.
type User struct {
	UserName  string `json:"userName"`
	UserPhone string `json:"userPhone"`
}

// Contact is an address-book entry as the server reports it.
type Contact struct {
	ContactName        string `json:"contactName"`
	ContactDisplayName string `json:"contactDisplayName,omitempty"`
	ContactPhone       string `json:"contactPhone"`
	IsRegistered       bool   `json:"isRegistered"`
}

// Name returns the display name when the contact set one, else the saved name.
func (c Contact) Name() string {
	if c.ContactDisplayName != "" {
		return c.ContactDisplayName
	}
	return c.ContactName
}

// GroupMember is one entry of a group's member list.
type GroupMember struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	IsAdmin bool   `json:"isAdmin"`
}
