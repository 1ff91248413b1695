// Package state holds the authoritative client-side view of chats, presence
// and typing activity, and reconciles real-time events against it. Real-time
// delivery and bulk REST fetches overlap, so every mutation here is
// idempotent: duplicates and self-echoes are discarded, never appended twice.
package state

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"beeline/internal/bus"
	"beeline/internal/domain"
	"beeline/internal/metrics"
)

const defaultTypingExpiry = 3 * time.Second

// Config configures a Store.
type Config struct {
	SelfPhone    string
	Logger       *slog.Logger
	TypingExpiry time.Duration // how long a typing mark survives server silence (default 3s)
	Now          func() time.Time
}

// Store is the client state mutated by the reconciliation policy. The
// selected chat is a separate copy of one chat, the way an open chat window
// holds it, and is kept in sync by the same reconcile step as the list.
type Store struct {
	self         string
	logger       *slog.Logger
	typingExpiry time.Duration
	now          func() time.Time

	mu       sync.Mutex
	chats    []domain.Chat
	selected *domain.Chat
	online   map[string]struct{}
	typing   map[string]bool
	reads    map[string]map[string]bool // chat id -> set of identities that read it
}

// New creates an empty store for the given local identity.
func New(cfg Config) *Store {
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = defaultTypingExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		self:         cfg.SelfPhone,
		logger:       cfg.Logger,
		typingExpiry: cfg.TypingExpiry,
		now:          cfg.Now,
		online:       make(map[string]struct{}),
		typing:       make(map[string]bool),
		reads:        make(map[string]map[string]bool),
	}
}

// Attach subscribes the store's reconciliation handlers to the dispatcher
// and returns a function that removes them again.
func (s *Store) Attach(d *bus.Dispatcher) func() {
	msgID := d.On(domain.KindMessage, func(ev domain.Event) {
		if m, ok := ev.(domain.MessageEvent); ok {
			s.ApplyMessage(m)
		}
	})
	statusID := d.On(domain.KindStatus, func(ev domain.Event) {
		s.ApplyPresence(ev)
	})
	typingID := d.On(domain.KindTyping, func(ev domain.Event) {
		if t, ok := ev.(domain.TypingEvent); ok {
			s.ApplyTyping(t)
		}
	})
	readID := d.On(domain.KindRead, func(ev domain.Event) {
		if r, ok := ev.(domain.ReadEvent); ok {
			s.ApplyRead(r)
		}
	})
	return func() {
		d.Off(domain.KindMessage, msgID)
		d.Off(domain.KindStatus, statusID)
		d.Off(domain.KindTyping, typingID)
		d.Off(domain.KindRead, readID)
	}
}

// ApplyMessage reconciles one real-time message event. Self-originated
// echoes are discarded: the authoritative copy of our own messages comes
// from the bulk fetch after the REST POST. Returns whether a message was
// appended to the chat list.
func (s *Store) ApplyMessage(ev domain.MessageEvent) bool {
	if ev.SenderPhone == s.self {
		s.logger.Debug("suppressing self-originated echo", "chat_id", ev.ChatID)
		metrics.Duplicates.Inc()
		return false
	}

	msg := domain.Message{
		ID:          ev.MessageID,
		SenderName:  ev.SenderName,
		SenderPhone: ev.SenderPhone,
		Content:     ev.Content,
		Timestamp:   ev.Timestamp,
		Type:        domain.MessageText,
	}
	if msg.ID == "" {
		msg.ID = strconv.FormatInt(s.now().UnixMilli(), 10)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	appended := false
	for i := range s.chats {
		if s.chats[i].ID == ev.ChatID {
			appended = reconcile(&s.chats[i], msg)
			break
		}
	}
	// The open chat window holds its own copy; the identical append-or-
	// discard keeps it current without a full reload.
	if s.selected != nil && s.selected.ID == ev.ChatID {
		reconcile(s.selected, msg)
	}

	if appended {
		metrics.Appended.Inc()
	} else {
		metrics.Duplicates.Inc()
	}
	return appended
}

// reconcile appends msg to the chat unless an equal message already exists,
// updating the chat's summary fields only on an actual append. This is the
// single dedup step shared by the chat list and the selected view.
func reconcile(c *domain.Chat, msg domain.Message) bool {
	if c.Contains(msg) {
		return false
	}
	c.Messages = append(c.Messages, msg)
	c.LastMessage = msg.Content
	c.LastMessageTime = msg.Timestamp
	return true
}

// SetChats replaces the chat list with a server-confirmed bulk fetch. The
// selected view is re-pointed at the fresh copy of the same chat.
func (s *Store) SetChats(chats []domain.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = chats
	if s.selected == nil {
		return
	}
	for i := range chats {
		if chats[i].ID == s.selected.ID {
			cp := cloneChat(chats[i])
			s.selected = &cp
			return
		}
	}
	s.selected = nil
}

// Select makes the chat with the given id the open one. Returns false when
// the id is unknown.
func (s *Store) Select(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			cp := cloneChat(s.chats[i])
			s.selected = &cp
			return true
		}
	}
	return false
}

// ClearSelection closes the open chat view.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
}

// Selected returns a copy of the open chat, if any.
func (s *Store) Selected() (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return domain.Chat{}, false
	}
	return cloneChat(*s.selected), true
}

// Chats returns a copy of the chat list.
func (s *Store) Chats() []domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Chat, len(s.chats))
	for i := range s.chats {
		out[i] = cloneChat(s.chats[i])
	}
	return out
}

// ApplyPresence folds a presence event into the online set: a snapshot
// replaces the whole set, a single status toggles one identity.
func (s *Store) ApplyPresence(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e := ev.(type) {
	case domain.OnlineUsersEvent:
		s.online = make(map[string]struct{}, len(e.Users))
		for _, u := range e.Users {
			s.online[u] = struct{}{}
		}
	case domain.StatusEvent:
		if e.Online {
			s.online[e.UserPhone] = struct{}{}
		} else {
			delete(s.online, e.UserPhone)
		}
	}
}

// IsOnline reports whether the identity is currently online.
func (s *Store) IsOnline(phone string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[phone]
	return ok
}

// Online returns the online identities, sorted.
func (s *Store) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.online))
	for u := range s.online {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ApplyTyping marks an identity as typing and schedules an automatic clear
// after the expiry. A fresh typing event schedules a fresh timer; a stale
// clear firing after a newer mark is tolerated because clearing is
// idempotent and the server re-sends while typing continues.
func (s *Store) ApplyTyping(ev domain.TypingEvent) {
	s.mu.Lock()
	s.typing[ev.UserPhone] = ev.IsTyping
	s.mu.Unlock()

	if ev.IsTyping {
		time.AfterFunc(s.typingExpiry, func() {
			s.mu.Lock()
			s.typing[ev.UserPhone] = false
			s.mu.Unlock()
		})
	}
}

// IsTyping reports whether the identity is currently marked typing.
func (s *Store) IsTyping(phone string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[phone]
}

// TypingIn returns which participants of the chat, other than self, are
// typing.
func (s *Store) TypingIn(c domain.Chat) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range c.Participants {
		if p != s.self && s.typing[p] {
			out = append(out, p)
		}
	}
	return out
}

// ApplyRead records a read receipt.
func (s *Store) ApplyRead(ev domain.ReadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.reads[ev.ChatID]
	if set == nil {
		set = make(map[string]bool)
		s.reads[ev.ChatID] = set
	}
	set[ev.ReadBy] = true
}

// ReadBy returns who has read the chat, sorted.
func (s *Store) ReadBy(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.reads[chatID]))
	for u := range s.reads[chatID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// cloneChat deep-copies the message slice so the selected view and the list
// never share append capacity.
func cloneChat(c domain.Chat) domain.Chat {
	cp := c
	cp.Messages = make([]domain.Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return cp
}
