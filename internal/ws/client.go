// Package ws owns the persistent websocket connection to the messaging
// server: the registration handshake, best-effort sends, the receive loop
// that feeds the event dispatcher, and bounded automatic reconnection.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"beeline/internal/bus"
	"beeline/internal/domain"
	"beeline/internal/metrics"

	"github.com/gorilla/websocket"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	defaultMaxReconnects  = 5
	defaultReconnectDelay = 2 * time.Second
)

// Config configures the websocket client.
type Config struct {
	URL            string
	Bus            *bus.Dispatcher
	Logger         *slog.Logger
	MaxReconnects  int           // attempts after an unexpected close (default 5)
	ReconnectDelay time.Duration // fixed delay between attempts (default 2s)
	Dialer         *websocket.Dialer
}

// Client is one persistent connection per logged-in identity. Create it at
// login, Disconnect it at logout; it is not shared process-wide state.
type Client struct {
	url            string
	bus            *bus.Dispatcher
	logger         *slog.Logger
	maxReconnects  int
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	phone    string
	attempts int
	// gen is bumped by Connect and Disconnect. A pending reconnect or a
	// stale read loop carries the gen it was started under and gives up
	// when the client has moved on.
	gen uint64

	writeMu sync.Mutex
}

// NewClient creates a disconnected client.
func NewClient(cfg Config) *Client {
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		url:            cfg.URL,
		bus:            cfg.Bus,
		logger:         cfg.Logger,
		maxReconnects:  cfg.MaxReconnects,
		reconnectDelay: cfg.ReconnectDelay,
		dialer:         cfg.Dialer,
	}
}

// Connect opens the channel and registers phone with the server. It returns
// once the open handshake completed and the register frame was written. A
// transport error before open is returned to the caller and does not start
// the retry loop; only a close after a successful open does.
func (c *Client) Connect(ctx context.Context, phone string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect: connection is %s", c.state)
	}
	c.state = StateConnecting
	c.phone = phone
	c.attempts = 0
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.dial(ctx, gen); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// dial performs one connection attempt under the given generation. On
// success it installs the socket, registers, notifies subscribers and starts
// the read loop. It does not touch lifecycle state on failure.
func (c *Client) dial(ctx context.Context, gen uint64) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		// Disconnect won the race while we were dialing.
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("dial %s: connection torn down", c.url)
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	phone := c.phone
	c.mu.Unlock()

	// Register before anything else goes over the fresh socket. A write
	// failure here surfaces through the read loop as an unexpected close.
	if err := c.write(conn, frame{Type: "register", UserPhone: phone}); err != nil {
		c.logger.Warn("register frame failed", "err", err)
	}

	c.logger.Info("websocket connected", "url", c.url, "user_phone", phone)
	metrics.Connected.Set(1)
	c.bus.Emit(domain.ConnectionEvent{Connected: true})

	go c.readLoop(conn, gen)
	return nil
}

// Disconnect closes the channel and cancels any pending reconnect. It is
// idempotent and never returns an error.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	c.conn = nil
	c.phone = ""
	c.attempts = 0
	wasOpen := c.state == StateOpen
	if wasOpen {
		c.state = StateClosing
	} else {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}

	if wasOpen {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Info("websocket disconnected")
		metrics.Connected.Set(0)
		c.bus.Emit(domain.ConnectionEvent{Connected: false})
	}
}

// readLoop drains the socket and hands decoded events to the dispatcher in
// arrival order. It exits on the first read error.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		metrics.FramesReceived.Inc()

		ev, err := decodeEvent(data)
		if err != nil {
			metrics.FramesDropped.Inc()
			c.logger.Warn("dropping inbound frame", "err", err)
			continue
		}
		c.bus.Emit(ev)
	}
}

// handleClose reacts to a transport-initiated close: notify subscribers and,
// within the attempt budget, schedule a reconnect.
func (c *Client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen {
		// Caller-initiated disconnect; already handled.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	retry := c.phone != "" && c.attempts < c.maxReconnects
	if retry {
		c.attempts++
		c.state = StateConnecting
	} else {
		c.state = StateDisconnected
	}
	attempt := c.attempts
	c.mu.Unlock()

	c.logger.Warn("websocket connection lost", "err", cause)
	metrics.Connected.Set(0)
	c.bus.Emit(domain.ConnectionEvent{Connected: false})

	if retry {
		c.scheduleReconnect(gen, attempt)
	}
}

func (c *Client) scheduleReconnect(gen uint64, attempt int) {
	c.logger.Info("reconnecting", "attempt", attempt, "max", c.maxReconnects, "delay", c.reconnectDelay)
	metrics.Reconnects.Inc()
	time.AfterFunc(c.reconnectDelay, func() { c.redial(gen) })
}

// redial runs one scheduled reconnect attempt. A failed attempt consumes
// budget and schedules the next; an exhausted budget leaves the client
// Disconnected until the caller connects again.
func (c *Client) redial(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// Disconnect during the delay.
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	err := c.dial(context.Background(), gen)
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.attempts < c.maxReconnects {
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()
		c.logger.Warn("reconnect attempt failed", "err", err)
		c.scheduleReconnect(gen, attempt)
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	c.logger.Warn("reconnect budget exhausted, staying disconnected", "attempts", c.maxReconnects)
}

// SendMessage sends a chat message to one recipient. Best-effort: silently
// dropped when the channel is not open, the REST POST is the durable path.
func (c *Client) SendMessage(chatID, recipientPhone, senderName, content string) {
	c.send(frame{
		Type:           "message",
		ChatID:         chatID,
		RecipientPhone: recipientPhone,
		SenderName:     senderName,
		Content:        content,
	})
}

// SendTyping sends a typing indicator to one recipient.
func (c *Client) SendTyping(recipientPhone string, isTyping bool) {
	c.send(frame{Type: "typing", RecipientPhone: recipientPhone, IsTyping: isTyping})
}

// SendReadReceipt marks a chat read by the registered identity.
func (c *Client) SendReadReceipt(chatID string) {
	c.mu.Lock()
	phone := c.phone
	c.mu.Unlock()
	c.send(frame{Type: "read", ChatID: chatID, ReadBy: phone})
}

func (c *Client) send(f frame) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		metrics.SendsDiscarded.Inc()
		c.logger.Debug("dropping outbound frame, not connected", "type", f.Type)
		return
	}
	if err := c.write(conn, f); err != nil {
		c.logger.Debug("websocket write failed", "type", f.Type, "err", err)
		return
	}
	metrics.FramesSent.Inc()
}

func (c *Client) write(conn *websocket.Conn, f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(f)
}

// Connected reports whether the channel is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
