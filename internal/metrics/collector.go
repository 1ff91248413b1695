// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for the client. It renders text/plain in Prometheus exposition
// format without pulling in prometheus/client_golang.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector the client packages record into.
var Collector = NewCollector()

// MetricsCollector aggregates counters and gauges.
type MetricsCollector struct {
	counters  sync.Map // name -> *Counter
	gauges    sync.Map // name -> *Gauge
	startTime time.Time
}

// NewCollector creates a new collector.
func NewCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns or creates a counter with the given name.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	if v, ok := c.counters.Load(name); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help}
	actual, _ := c.counters.LoadOrStore(name, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name.
func (c *MetricsCollector) Gauge(name, help string) *Gauge {
	if v, ok := c.gauges.Load(name); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help}
	actual, _ := c.gauges.LoadOrStore(name, g)
	return actual.(*Gauge)
}

// Export renders all metrics in Prometheus text exposition format.
func (c *MetricsCollector) Export() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP beeline_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE beeline_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "beeline_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	var counters []*Counter
	c.counters.Range(func(_, value any) bool {
		counters = append(counters, value.(*Counter))
		return true
	})
	sort.Slice(counters, func(i, j int) bool { return counters[i].name < counters[j].name })
	for _, ctr := range counters {
		fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
		fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
		fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
	}

	var gauges []*Gauge
	c.gauges.Range(func(_, value any) bool {
		gauges = append(gauges, value.(*Gauge))
		return true
	})
	sort.Slice(gauges, func(i, j int) bool { return gauges[i].name < gauges[j].name })
	for _, g := range gauges {
		fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
		fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
		fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
	}

	return sb.String()
}

// Handler returns an http.HandlerFunc serving the exposition text, for the
// opt-in debug listener.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(c.Export()))
	}
}

// Client-side metrics recorded by the connection, dispatch and
// reconciliation layers.
var (
	FramesReceived   = Collector.Counter("beeline_frames_received_total", "Frames read from the websocket")
	FramesDropped    = Collector.Counter("beeline_frames_dropped_total", "Frames dropped: undecodable or unknown type")
	FramesSent       = Collector.Counter("beeline_frames_sent_total", "Frames written to the websocket")
	SendsDiscarded   = Collector.Counter("beeline_sends_discarded_total", "Outbound frames dropped while not connected")
	Reconnects       = Collector.Counter("beeline_reconnect_attempts_total", "Automatic reconnect attempts")
	HandlerPanics    = Collector.Counter("beeline_handler_panics_total", "Subscriber panics recovered by the dispatcher")
	EventsDispatched = Collector.Counter("beeline_events_dispatched_total", "Events fanned out to subscribers")
	Appended         = Collector.Counter("beeline_messages_appended_total", "Real-time messages appended to a chat")
	Duplicates       = Collector.Counter("beeline_messages_duplicate_total", "Real-time messages discarded as duplicates or self-echo")
	Connected        = Collector.Gauge("beeline_connected", "1 while the websocket is open")
)
