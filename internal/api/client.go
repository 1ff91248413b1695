// Package api is the REST client for the messaging service: session
// lifecycle, bulk chat fetch, message posting and contact/group management.
// The bulk chat fetch is the durability source of truth that real-time
// delivery reconciles against.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"beeline/internal/domain"
)

// Client talks to the service REST API.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// Config configures the REST client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// New creates a REST client for the given API base URL.
func New(cfg Config) *Client {
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   newHTTPClient(cfg.Timeout),
		logger: cfg.Logger,
	}
}

// apiError is a server-reported failure on an otherwise successful exchange.
type apiError struct {
	op  string
	msg string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.op, e.msg)
}

// statusResponse is the generic {success, error|message} envelope most
// mutating endpoints reply with.
type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r statusResponse) err(op string) error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = r.Message
	}
	if msg == "" {
		msg = "request failed"
	}
	return &apiError{op: op, msg: msg}
}

// --- session ---

type loginResponse struct {
	statusResponse
	SessionID string      `json:"sessionId"`
	User      domain.User `json:"user"`
}

// Login authenticates and returns the user plus an opaque session id.
func (c *Client) Login(ctx context.Context, username, password string) (domain.User, string, error) {
	var resp loginResponse
	err := c.post(ctx, "/login", map[string]any{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return domain.User{}, "", err
	}
	if err := resp.err("login"); err != nil {
		return domain.User{}, "", err
	}
	return resp.User, resp.SessionID, nil
}

// Register creates an account. The caller logs in afterwards.
func (c *Client) Register(ctx context.Context, username, password, phone string) error {
	var resp statusResponse
	err := c.post(ctx, "/register", map[string]any{
		"username": username,
		"password": password,
		"phone":    phone,
	}, &resp)
	if err != nil {
		return err
	}
	return resp.err("register")
}

// CheckSession reports whether the session id is still valid.
func (c *Client) CheckSession(ctx context.Context, sessionID string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.get(ctx, "/check-session", url.Values{"sessionId": {sessionID}}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// Logout invalidates the session server-side.
func (c *Client) Logout(ctx context.Context, sessionID string) error {
	var resp statusResponse
	return c.post(ctx, "/logout", map[string]any{"sessionId": sessionID}, &resp)
}

// --- chats and messages ---

// chatPayload is the server's bulk-fetch shape; field casing is the
// server's, not ours.
type chatPayload struct {
	ChatID          string           `json:"ChatId"`
	ChatName        string           `json:"ChatName"`
	ChatMessages    []domain.Message `json:"ChatMessages"`
	LastMessage     string           `json:"lastMessage"`
	LastMessageTime string           `json:"lastMessageTime"`
	Participants    []string         `json:"participants"`
	IsGroup         bool             `json:"isGroup"`
	GroupAdmin      string           `json:"groupAdmin"`
}

// Chats fetches all chats for the identity.
func (c *Client) Chats(ctx context.Context, userPhone string) ([]domain.Chat, error) {
	var payload []chatPayload
	err := c.get(ctx, "/chats", url.Values{"userPhone": {userPhone}}, &payload)
	if err != nil {
		return nil, err
	}
	chats := make([]domain.Chat, 0, len(payload))
	for _, p := range payload {
		chats = append(chats, domain.Chat{
			ID:              p.ChatID,
			Name:            p.ChatName,
			Messages:        p.ChatMessages,
			LastMessage:     p.LastMessage,
			LastMessageTime: p.LastMessageTime,
			Participants:    p.Participants,
			IsGroup:         p.IsGroup,
			GroupAdmin:      p.GroupAdmin,
		})
	}
	return chats, nil
}

// PostMessage durably stores a message. The websocket send is fire-and-
// forget; this is the path that assigns the message its server id.
func (c *Client) PostMessage(ctx context.Context, chatID string, sender domain.User, content string) error {
	var resp statusResponse
	err := c.post(ctx, "/messages", map[string]any{
		"chatId":      chatID,
		"senderName":  sender.UserName,
		"senderPhone": sender.UserPhone,
		"content":     content,
		"messageType": string(domain.MessageText),
	}, &resp)
	if err != nil {
		return err
	}
	return resp.err("post message")
}

// --- contacts ---

// AddContactResult reports what the server did with a new contact.
type AddContactResult struct {
	IsRegistered bool
	ChatCreated  bool
}

// Contacts lists the identity's address book.
func (c *Client) Contacts(ctx context.Context, userPhone string) ([]domain.Contact, error) {
	var resp struct {
		Contacts []domain.Contact `json:"contacts"`
	}
	err := c.get(ctx, "/contacts", url.Values{"userPhone": {userPhone}}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

// AddContact saves a contact; the server creates a chat when the contact is
// a registered user.
func (c *Client) AddContact(ctx context.Context, userPhone, contactPhone, contactName string) (AddContactResult, error) {
	var resp struct {
		statusResponse
		IsRegistered bool `json:"isRegistered"`
		ChatCreated  bool `json:"chatCreated"`
	}
	err := c.post(ctx, "/contacts", map[string]any{
		"userPhone":    userPhone,
		"contactPhone": contactPhone,
		"contactName":  contactName,
	}, &resp)
	if err != nil {
		return AddContactResult{}, err
	}
	if err := resp.err("add contact"); err != nil {
		return AddContactResult{}, err
	}
	return AddContactResult{IsRegistered: resp.IsRegistered, ChatCreated: resp.ChatCreated}, nil
}

// RemoveContact deletes a contact from the address book.
func (c *Client) RemoveContact(ctx context.Context, userPhone, contactPhone string) error {
	var resp statusResponse
	err := c.delete(ctx, "/contacts", url.Values{
		"userPhone":    {userPhone},
		"contactPhone": {contactPhone},
	}, &resp)
	if err != nil {
		return err
	}
	return resp.err("remove contact")
}

// --- groups ---

// GroupInfo is the group detail view.
type GroupInfo struct {
	GroupName string               `json:"groupName"`
	Members   []domain.GroupMember `json:"members"`
}

// Group fetches a group's name and member list.
func (c *Client) Group(ctx context.Context, chatID string) (GroupInfo, error) {
	var resp GroupInfo
	err := c.get(ctx, "/groups", url.Values{"chatId": {chatID}}, &resp)
	return resp, err
}

// CreateGroup creates a group chat with the creator as admin.
func (c *Client) CreateGroup(ctx context.Context, groupName, creatorPhone string, members []string) error {
	var resp statusResponse
	err := c.post(ctx, "/groups", map[string]any{
		"groupName":    groupName,
		"creatorPhone": creatorPhone,
		"members":      members,
	}, &resp)
	if err != nil {
		return err
	}
	return resp.err("create group")
}

// RenameGroup updates the group name; admin only.
func (c *Client) RenameGroup(ctx context.Context, chatID, adminPhone, newName string) error {
	var resp statusResponse
	err := c.post(ctx, "/groups", map[string]any{
		"action":     "updateName",
		"chatId":     chatID,
		"adminPhone": adminPhone,
		"newName":    newName,
	}, &resp)
	if err != nil {
		return err
	}
	return resp.err("rename group")
}

// AddGroupMember adds a registered contact to the group; admin only.
func (c *Client) AddGroupMember(ctx context.Context, chatID, adminPhone, memberPhone string) error {
	var resp statusResponse
	err := c.post(ctx, "/groups", map[string]any{
		"action":      "addMember",
		"chatId":      chatID,
		"adminPhone":  adminPhone,
		"memberPhone": memberPhone,
	}, &resp)
	if err != nil {
		return err
	}
	return resp.err("add group member")
}

// RemoveGroupMember removes a member; leaving is removing yourself.
func (c *Client) RemoveGroupMember(ctx context.Context, chatID, adminPhone, memberPhone string) error {
	var resp statusResponse
	err := c.delete(ctx, "/groups", url.Values{
		"chatId":      {chatID},
		"memberPhone": {memberPhone},
		"adminPhone":  {adminPhone},
	}, &resp)
	if err != nil {
		return err
	}
	return resp.err("remove group member")
}

// --- transport helpers ---

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	resp, err := doWithRetry(ctx, c.http, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, c.logger)
	if err != nil {
		return err
	}
	return decodeBody(resp, path, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", path, err)
	}
	resp, err := doWithRetry(ctx, c.http, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, c.logger)
	if err != nil {
		return err
	}
	return decodeBody(resp, path, out)
}

func (c *Client) delete(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.base + path + "?" + query.Encode()
	resp, err := doWithRetry(ctx, c.http, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	}, c.logger)
	if err != nil {
		return err
	}
	return decodeBody(resp, path, out)
}

func decodeBody(resp *http.Response, path string, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
