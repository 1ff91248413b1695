package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"beeline/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Logger: testLogger()})
}

func TestMain(m *testing.M) {
	retryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

func TestLogin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "secret" {
			t.Errorf("unexpected credentials %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"sessionId": "sess-1",
			"user":      map[string]string{"userName": "alice", "userPhone": "+1000"},
		})
	}))
	defer srv.Close()

	user, sessionID, err := newTestClient(srv).Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sessionID != "sess-1" {
		t.Errorf("sessionID = %q", sessionID)
	}
	if user.UserName != "alice" || user.UserPhone != "+1000" {
		t.Errorf("user = %+v", user)
	}
}

func TestLogin_ServerReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "invalid credentials"})
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv).Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "login: invalid credentials" {
		t.Errorf("err = %q", got)
	}
}

func TestChats_DecodesServerCasing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("userPhone"); got != "+1000" {
			t.Errorf("userPhone = %q", got)
		}
		w.Write([]byte(`[{
			"ChatId": "c1",
			"ChatName": "Bob",
			"ChatMessages": [
				{"messageId": "m1", "senderName": "Bob", "senderPhone": "+2000", "content": "hi", "timestamp": "t1", "messageType": "TEXT"}
			],
			"lastMessage": "hi",
			"lastMessageTime": "t1",
			"participants": ["+1000", "+2000"],
			"isGroup": false
		}]`))
	}))
	defer srv.Close()

	chats, err := newTestClient(srv).Chats(context.Background(), "+1000")
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats", len(chats))
	}
	c := chats[0]
	if c.ID != "c1" || c.Name != "Bob" || c.LastMessage != "hi" || c.IsGroup {
		t.Errorf("chat = %+v", c)
	}
	if len(c.Messages) != 1 || c.Messages[0].ID != "m1" || c.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", c.Messages)
	}
	if got := c.Recipients("+1000"); len(got) != 1 || got[0] != "+2000" {
		t.Errorf("recipients = %v", got)
	}
}

func TestPostMessage_Body(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	sender := domain.User{UserName: "Alice", UserPhone: "+1000"}
	if err := newTestClient(srv).PostMessage(context.Background(), "c1", sender, "hello"); err != nil {
		t.Fatalf("post message: %v", err)
	}
	want := map[string]any{
		"chatId":      "c1",
		"senderName":  "Alice",
		"senderPhone": "+1000",
		"content":     "hello",
		"messageType": "TEXT",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("body[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestRetry_RecoversFromTransientServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"valid": true})
	}))
	defer srv.Close()

	valid, err := newTestClient(srv).CheckSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("check session: %v", err)
	}
	if !valid {
		t.Error("expected valid session")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestRetry_GivesUpAfterBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CheckSession(context.Background(), "sess-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != maxRetries+1 {
		t.Errorf("expected %d attempts, got %d", maxRetries+1, got)
	}
}

func TestRetry_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient(srv).Register(context.Background(), "alice", "pw", "+1000")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestRemoveContact_QueryParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("userPhone") != "+1000" || q.Get("contactPhone") != "+2000" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	if err := newTestClient(srv).RemoveContact(context.Background(), "+1000", "+2000"); err != nil {
		t.Fatalf("remove contact: %v", err)
	}
}

func TestGroupActions_Discriminated(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			bodies = append(bodies, body)
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	ctx := context.Background()
	if err := c.CreateGroup(ctx, "team", "+1000", []string{"+2000"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.RenameGroup(ctx, "g1", "+1000", "new team"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := c.AddGroupMember(ctx, "g1", "+1000", "+3000"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if len(bodies) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(bodies))
	}
	if _, hasAction := bodies[0]["action"]; hasAction {
		t.Error("create group must not carry an action discriminator")
	}
	if bodies[1]["action"] != "updateName" || bodies[1]["newName"] != "new team" {
		t.Errorf("rename body = %v", bodies[1])
	}
	if bodies[2]["action"] != "addMember" || bodies[2]["memberPhone"] != "+3000" {
		t.Errorf("add member body = %v", bodies[2])
	}
}

func TestContacts_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"contacts": [
			{"contactName": "bob", "contactDisplayName": "Bob B", "contactPhone": "+2000", "isRegistered": true},
			{"contactName": "carol", "contactPhone": "+3000", "isRegistered": false}
		]}`))
	}))
	defer srv.Close()

	contacts, err := newTestClient(srv).Contacts(context.Background(), "+1000")
	if err != nil {
		t.Fatalf("contacts: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts", len(contacts))
	}
	if contacts[0].Name() != "Bob B" {
		t.Errorf("display name preferred, got %q", contacts[0].Name())
	}
	if contacts[1].Name() != "carol" {
		t.Errorf("fallback to contact name, got %q", contacts[1].Name())
	}
}
