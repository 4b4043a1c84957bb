package audioroute

import "sync"

// StateSource is a RouteSource fed by snapshots reported over the transport
// layer rather than read from audio hardware. The most recent report wins.
type StateSource struct {
	mu    sync.Mutex
	route RouteInfo
}

// NewStateSource creates an empty state source.
func NewStateSource() *StateSource {
	return &StateSource{}
}

// Set replaces the current route snapshot.
func (s *StateSource) Set(route RouteInfo) {
	s.mu.Lock()
	s.route = route
	s.mu.Unlock()
}

// CurrentRoute returns the most recently reported snapshot.
func (s *StateSource) CurrentRoute() RouteInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Intake couples a StateSource with a Monitor: each reported snapshot replaces
// the current route and arms the debounce, so a burst of reports settles into
// a single emission of the final state.
type Intake struct {
	source  *StateSource
	monitor *Monitor
}

// NewIntake creates an intake emitting debounced snapshots to sink.
func NewIntake(sink func(RouteInfo)) *Intake {
	source := NewStateSource()
	return &Intake{
		source:  source,
		monitor: NewMonitor(source, sink),
	}
}

// Report records a route snapshot and arms the debounce.
func (i *Intake) Report(route RouteInfo) {
	i.source.Set(route)
	i.monitor.Signal()
}

// Stop cancels any pending emission.
func (i *Intake) Stop() {
	i.monitor.Stop()
}
