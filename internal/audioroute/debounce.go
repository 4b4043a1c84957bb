// Package audioroute coalesces audio route-change signals (headset plug,
// bluetooth connection state, SCO updates) before reporting them to the
// application layer. Route hardware tends to emit bursts of broadcasts for a
// single physical event; a short debounce turns the burst into one report.
package audioroute

import (
	"sync"
	"time"
)

// debounceDelay is how long the monitor waits for a burst to settle before
// emitting the route snapshot.
const debounceDelay = 200 * time.Millisecond

// Debouncer runs fn once per burst of Trigger calls: each Trigger cancels
// the pending run and schedules a new one after the delay.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fn    func()
}

// NewDebouncer creates a debouncer invoking fn after delay.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger cancels any pending invocation and schedules a new one.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels any pending invocation.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// RouteInfo is a snapshot of the active audio route.
type RouteInfo struct {
	Route           string `json:"route"` // "earpiece", "speaker", "wired", "bluetooth"
	BluetoothScoOn  bool   `json:"bluetooth_sco_on"`
	WiredHeadsetOn  bool   `json:"wired_headset_on"`
	SpeakerphoneOn  bool   `json:"speakerphone_on"`
	BluetoothDevice string `json:"bluetooth_device,omitempty"`
}

// RouteSource reads the current route from the audio hardware layer.
type RouteSource interface {
	CurrentRoute() RouteInfo
}

// Monitor watches route-change signals and emits debounced, deduplicated
// route snapshots to a sink callback. Identical consecutive snapshots are
// not re-emitted.
type Monitor struct {
	source RouteSource
	sink   func(RouteInfo)

	mu        sync.Mutex
	lastRoute *RouteInfo
	debounce  *Debouncer
}

// NewMonitor creates a monitor emitting to sink.
func NewMonitor(source RouteSource, sink func(RouteInfo)) *Monitor {
	m := &Monitor{source: source, sink: sink}
	m.debounce = NewDebouncer(debounceDelay, m.emitIfChanged)
	return m
}

// Signal notes a route-change broadcast. The route is read and reported only
// after the burst settles.
func (m *Monitor) Signal() {
	m.debounce.Trigger()
}

// Emit reads and reports the current route immediately, bypassing the
// debounce. Used for the initial snapshot when a listener attaches.
func (m *Monitor) Emit() {
	m.emitIfChanged()
}

// Stop cancels any pending emission and forgets the last reported route.
func (m *Monitor) Stop() {
	m.debounce.Stop()
	m.mu.Lock()
	m.lastRoute = nil
	m.mu.Unlock()
}

func (m *Monitor) emitIfChanged() {
	route := m.source.CurrentRoute()

	m.mu.Lock()
	if m.lastRoute != nil && *m.lastRoute == route {
		m.mu.Unlock()
		return
	}
	m.lastRoute = &route
	m.mu.Unlock()

	m.sink(route)
}
