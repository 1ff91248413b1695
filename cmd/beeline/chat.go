package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"beeline/internal/bus"
	"beeline/internal/domain"
	"beeline/internal/metrics"
	"beeline/internal/poll"
	"beeline/internal/state"
	"beeline/internal/ws"

	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat session",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	store, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sessionID, user, ok, err := store.Load()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("not signed in, run 'beeline login'")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := newAPI(cfg)
	if valid, err := rest.CheckSession(ctx, sessionID); err == nil && !valid {
		return fmt.Errorf("session expired, run 'beeline login'")
	}

	dispatcher := bus.New(logger)
	chats := state.New(state.Config{
		SelfPhone:    user.UserPhone,
		Logger:       logger,
		TypingExpiry: time.Duration(cfg.Client.TypingExpirySeconds) * time.Second,
	})
	detach := chats.Attach(dispatcher)
	defer detach()

	client := ws.NewClient(ws.Config{
		URL:            cfg.Server.WSURL,
		Bus:            dispatcher,
		Logger:         logger,
		MaxReconnects:  cfg.Client.MaxReconnects,
		ReconnectDelay: time.Duration(cfg.Client.ReconnectDelaySeconds) * time.Second,
	})
	defer client.Disconnect()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr)
	}

	// Initial load before going real-time, same as the browser client.
	if initial, err := rest.Chats(ctx, user.UserPhone); err != nil {
		logger.Warn("initial chat load failed", "err", err)
	} else {
		chats.SetChats(initial)
	}

	poller := poll.New(poll.Config{
		Interval: time.Duration(cfg.Client.PollIntervalSeconds) * time.Second,
		Fetch: func(ctx context.Context) ([]domain.Chat, error) {
			return rest.Chats(ctx, user.UserPhone)
		},
		Store:  chats,
		Logger: logger,
	})
	// Attach before Connect so the poller sees the very first
	// connection-state notification.
	detachPoller := poller.Attach(dispatcher)
	defer detachPoller()

	if err := client.Connect(ctx, user.UserPhone); err != nil {
		// Degraded mode: the poller covers us until the next connect.
		logger.Warn("websocket connect failed, running on polling fallback", "err", err)
	}

	go poller.Run(ctx)

	ui := &chatUI{
		ctx:    ctx,
		user:   user,
		rest:   rest,
		client: client,
		chats:  chats,
		out:    os.Stdout,
	}
	ui.subscribe(dispatcher)

	return ui.repl(os.Stdin)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("metrics listener starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics listener failed", "err", err)
	}
}

// socket is the outbound surface of the websocket client the UI needs.
type socket interface {
	SendMessage(chatID, recipientPhone, senderName, content string)
	SendTyping(recipientPhone string, isTyping bool)
	SendReadReceipt(chatID string)
}

// chatUI is the terminal rendering of client state: it prints whatever the
// reconciliation layer reports and sends what the user types.
type chatUI struct {
	ctx    context.Context
	user   domain.User
	rest   interface {
		Chats(ctx context.Context, phone string) ([]domain.Chat, error)
		PostMessage(ctx context.Context, chatID string, sender domain.User, content string) error
	}
	client socket
	chats  *state.Store
	out    io.Writer
}

// subscribe renders real-time activity as it is dispatched.
func (u *chatUI) subscribe(d *bus.Dispatcher) {
	d.On(domain.KindMessage, func(ev domain.Event) {
		m, ok := ev.(domain.MessageEvent)
		if !ok || m.SenderPhone == u.user.UserPhone {
			return
		}
		if sel, open := u.chats.Selected(); open && sel.ID == m.ChatID {
			fmt.Fprintf(u.out, "\r\033[K%s: %s\n> ", m.SenderName, m.Content)
		} else {
			fmt.Fprintf(u.out, "\r\033[K[%s] new message from %s\n> ", m.ChatID, m.SenderName)
		}
	})
	d.On(domain.KindTyping, func(ev domain.Event) {
		t, ok := ev.(domain.TypingEvent)
		if !ok || !t.IsTyping {
			return
		}
		if sel, open := u.chats.Selected(); open {
			for _, p := range sel.Participants {
				if p == t.UserPhone {
					fmt.Fprintf(u.out, "\r\033[K%s is typing...\n> ", t.UserPhone)
				}
			}
		}
	})
	d.On(domain.KindConnection, func(ev domain.Event) {
		if ce, ok := ev.(domain.ConnectionEvent); ok {
			if ce.Connected {
				fmt.Fprintf(u.out, "\r\033[K[connected]\n> ")
			} else {
				fmt.Fprintf(u.out, "\r\033[K[offline, polling]\n> ")
			}
		}
	})
}

func (u *chatUI) repl(in io.Reader) error {
	fmt.Fprintf(u.out, "Beeline. /chats lists chats, /open <n> opens one, /who shows presence, /quit exits.\n> ")

	scanner := bufio.NewScanner(in)
	for {
		select {
		case <-u.ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(u.out, "> ")
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := u.command(line); quit {
				return nil
			}
			fmt.Fprint(u.out, "> ")
			continue
		}

		u.sendMessage(line)
		fmt.Fprint(u.out, "> ")
	}
}

// command handles a /-prefixed REPL command. Returns true to quit.
func (u *chatUI) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true

	case "/chats":
		for i, c := range u.chats.Chats() {
			marker := " "
			if sel, ok := u.chats.Selected(); ok && sel.ID == c.ID {
				marker = "*"
			}
			last := c.LastMessage
			if last == "" {
				last = "No messages yet"
			}
			fmt.Fprintf(u.out, "%s %2d. %-20s %s\n", marker, i+1, c.Name, last)
		}

	case "/open":
		if len(fields) < 2 {
			fmt.Fprintln(u.out, "usage: /open <number|chat id>")
			return false
		}
		u.open(fields[1])

	case "/who":
		online := u.chats.Online()
		if len(online) == 0 {
			fmt.Fprintln(u.out, "nobody online")
		} else {
			fmt.Fprintln(u.out, strings.Join(online, ", "))
		}

	default:
		fmt.Fprintf(u.out, "unknown command %s\n", fields[0])
	}
	return false
}

func (u *chatUI) open(ref string) {
	all := u.chats.Chats()
	chatID := ref
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(all) {
		chatID = all[n-1].ID
	}
	if !u.chats.Select(chatID) {
		fmt.Fprintf(u.out, "no chat %q\n", ref)
		return
	}

	sel, _ := u.chats.Selected()
	fmt.Fprintf(u.out, "--- %s ---\n", sel.Name)
	for _, m := range sel.Messages {
		fmt.Fprintf(u.out, "%s: %s\n", m.SenderName, m.Content)
	}
	u.client.SendReadReceipt(sel.ID)
}

// sendMessage delivers a typed line: fire-and-forget over the socket for
// latency, REST POST for durability, then a reload for server-assigned ids.
func (u *chatUI) sendMessage(content string) {
	sel, ok := u.chats.Selected()
	if !ok {
		fmt.Fprintln(u.out, "no chat open, use /open")
		return
	}

	// Line input surfaces no keystrokes, so the typing indicator brackets
	// the send: it shows while the durable POST is in flight.
	recipients := sel.Recipients(u.user.UserPhone)
	for _, recipient := range recipients {
		u.client.SendTyping(recipient, true)
		u.client.SendMessage(sel.ID, recipient, u.user.UserName, content)
	}
	defer func() {
		for _, recipient := range recipients {
			u.client.SendTyping(recipient, false)
		}
	}()

	if err := u.rest.PostMessage(u.ctx, sel.ID, u.user, content); err != nil {
		fmt.Fprintf(u.out, "send failed: %v\n", err)
		return
	}
	if refreshed, err := u.rest.Chats(u.ctx, u.user.UserPhone); err == nil {
		u.chats.SetChats(refreshed)
	}
}
