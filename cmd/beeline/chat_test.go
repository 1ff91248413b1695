package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"beeline/internal/domain"
	"beeline/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeSocket records every outbound call in order.
type fakeSocket struct {
	calls []string
}

func (f *fakeSocket) SendMessage(chatID, recipientPhone, senderName, content string) {
	f.calls = append(f.calls, "message "+chatID+" "+recipientPhone+" "+content)
}

func (f *fakeSocket) SendTyping(recipientPhone string, isTyping bool) {
	if isTyping {
		f.calls = append(f.calls, "typing "+recipientPhone+" start")
	} else {
		f.calls = append(f.calls, "typing "+recipientPhone+" stop")
	}
}

func (f *fakeSocket) SendReadReceipt(chatID string) {
	f.calls = append(f.calls, "read "+chatID)
}

type fakeREST struct {
	postErr error
	posted  []string
}

func (f *fakeREST) Chats(ctx context.Context, phone string) ([]domain.Chat, error) {
	return nil, nil
}

func (f *fakeREST) PostMessage(ctx context.Context, chatID string, sender domain.User, content string) error {
	f.posted = append(f.posted, chatID+" "+content)
	return f.postErr
}

func newTestUI(t *testing.T, rest *fakeREST, sock *fakeSocket) *chatUI {
	t.Helper()
	chats := state.New(state.Config{SelfPhone: "+1000", Logger: testLogger()})
	chats.SetChats([]domain.Chat{
		{ID: "c1", Name: "Bob", Participants: []string{"+1000", "+2000"}},
		{ID: "g1", Name: "team", IsGroup: true, Participants: []string{"+1000", "+2000", "+3000"}},
	})
	return &chatUI{
		ctx:    context.Background(),
		user:   domain.User{UserName: "Alice", UserPhone: "+1000"},
		rest:   rest,
		client: sock,
		chats:  chats,
		out:    &bytes.Buffer{},
	}
}

func TestSendMessage_TypingBracketsTheSend(t *testing.T) {
	rest := &fakeREST{}
	sock := &fakeSocket{}
	u := newTestUI(t, rest, sock)
	u.chats.Select("c1")

	u.sendMessage("hello")

	want := []string{
		"typing +2000 start",
		"message c1 +2000 hello",
		"typing +2000 stop",
	}
	if len(sock.calls) != len(want) {
		t.Fatalf("calls = %v", sock.calls)
	}
	for i, w := range want {
		if sock.calls[i] != w {
			t.Errorf("call %d = %q, want %q", i, sock.calls[i], w)
		}
	}
	if len(rest.posted) != 1 || rest.posted[0] != "c1 hello" {
		t.Errorf("posted = %v", rest.posted)
	}
}

func TestSendMessage_GroupFansOutPerRecipient(t *testing.T) {
	sock := &fakeSocket{}
	u := newTestUI(t, &fakeREST{}, sock)
	u.chats.Select("g1")

	u.sendMessage("hi all")

	var messages, stops int
	for _, c := range sock.calls {
		if strings.HasPrefix(c, "message ") {
			messages++
		}
		if strings.HasSuffix(c, " stop") {
			stops++
		}
	}
	if messages != 2 || stops != 2 {
		t.Errorf("expected fan-out to 2 recipients, calls = %v", sock.calls)
	}
}

func TestSendMessage_TypingClearedOnPostFailure(t *testing.T) {
	sock := &fakeSocket{}
	u := newTestUI(t, &fakeREST{postErr: errors.New("boom")}, sock)
	u.chats.Select("c1")

	u.sendMessage("hello")

	if last := sock.calls[len(sock.calls)-1]; last != "typing +2000 stop" {
		t.Errorf("typing indicator left dangling, calls = %v", sock.calls)
	}
}

func TestSendMessage_NoChatOpen(t *testing.T) {
	sock := &fakeSocket{}
	u := newTestUI(t, &fakeREST{}, sock)

	u.sendMessage("hello")

	if len(sock.calls) != 0 {
		t.Errorf("nothing may be sent without an open chat, calls = %v", sock.calls)
	}
}

func TestOpen_SendsReadReceipt(t *testing.T) {
	sock := &fakeSocket{}
	u := newTestUI(t, &fakeREST{}, sock)

	u.open("1")

	if len(sock.calls) != 1 || sock.calls[0] != "read c1" {
		t.Errorf("calls = %v", sock.calls)
	}
}
