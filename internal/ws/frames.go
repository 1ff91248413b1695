package ws

import (
	"encoding/json"
	"fmt"

	"beeline/internal/domain"
)

// frame is the flat JSON protocol shared by both directions of the socket.
// The type field discriminates; only the fields for that type are set.
type frame struct {
	Type string `json:"type"`

	// register
	UserPhone string `json:"userPhone,omitempty"`

	// message
	ChatID         string `json:"chatId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	SenderPhone    string `json:"senderPhone,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
	Content        string `json:"content,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`

	// typing; no omitempty so an explicit stop serializes isTyping:false
	IsTyping bool `json:"isTyping"`

	// status
	Online bool `json:"online,omitempty"`

	// read
	ReadBy string `json:"readBy,omitempty"`

	// onlineUsers
	Users []string `json:"users,omitempty"`
}

// decodeEvent parses a raw inbound frame into a typed event. Unknown type
// discriminators are an error so future event kinds are dropped, not
// misrouted.
func decodeEvent(data []byte) (domain.Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case "message":
		return domain.MessageEvent{
			ChatID:      f.ChatID,
			MessageID:   f.MessageID,
			SenderName:  f.SenderName,
			SenderPhone: f.SenderPhone,
			Content:     f.Content,
			Timestamp:   f.Timestamp,
		}, nil
	case "status":
		return domain.StatusEvent{UserPhone: f.UserPhone, Online: f.Online}, nil
	case "typing":
		return domain.TypingEvent{UserPhone: f.UserPhone, IsTyping: f.IsTyping}, nil
	case "read":
		return domain.ReadEvent{ChatID: f.ChatID, ReadBy: f.ReadBy}, nil
	case "onlineUsers":
		return domain.OnlineUsersEvent{Users: f.Users}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", f.Type)
	}
}
