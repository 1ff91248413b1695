// Package poll is the degraded-mode path: while the websocket is down and a
// chat is open, it refreshes client state from the bulk chat fetch on a
// fixed interval. The connection-state notification stops it the instant
// real-time delivery is back, so the two paths never both run.
package poll

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"beeline/internal/bus"
	"beeline/internal/domain"
	"beeline/internal/state"
)

const defaultInterval = 2 * time.Second

// FetchFunc loads the bulk chat list, normally api.Client.Chats bound to
// the local identity.
type FetchFunc func(ctx context.Context) ([]domain.Chat, error)

// Config configures a Poller.
type Config struct {
	Interval time.Duration // default 2s
	Fetch    FetchFunc
	Store    *state.Store
	Logger   *slog.Logger
}

// Poller periodically reconciles the store from the REST API while the
// real-time channel is unavailable.
type Poller struct {
	interval  time.Duration
	fetch     FetchFunc
	store     *state.Store
	logger    *slog.Logger
	connected atomic.Bool
}

// New creates a Poller; it does nothing until Run.
func New(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Poller{
		interval: cfg.Interval,
		fetch:    cfg.Fetch,
		store:    cfg.Store,
		logger:   cfg.Logger,
	}
}

// Attach subscribes the poller's connection tracker to the dispatcher and
// returns a function that removes it again. Attach before the websocket
// connects: a connected=true emitted with nobody listening would leave the
// poller fetching alongside a healthy socket.
func (p *Poller) Attach(d *bus.Dispatcher) func() {
	id := d.On(domain.KindConnection, func(ev domain.Event) {
		if ce, ok := ev.(domain.ConnectionEvent); ok {
			p.connected.Store(ce.Connected)
		}
	})
	return func() { d.Off(domain.KindConnection, id) }
}

// Run blocks until ctx is cancelled, polling on every tick where the
// connection is down and a chat is selected.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if p.connected.Load() {
		return
	}
	if _, ok := p.store.Selected(); !ok {
		return
	}
	chats, err := p.fetch(ctx)
	if err != nil {
		p.logger.Warn("fallback poll failed", "err", err)
		return
	}
	p.store.SetChats(chats)
}
