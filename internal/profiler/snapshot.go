package profiler

import (
	"slices"
	"time"

	"github.com/coral-mesh/vmprof/internal/clock"
)

// Snapshot is a point-in-time copy of a profiler's aggregates. It shares no
// state with the profiler and stays valid after further events.
type Snapshot struct {
	SessionID string
	// Statistics and CallGraph are private copies; they can be enumerated
	// concurrently with the live profiler.
	Statistics *Statistics
	CallGraph  *CallGraph
	Anomalies  Anomalies
	// OpenFrames is the call stack depth when the snapshot was taken.
	OpenFrames int
	// Elapsed is the profiled wall time: attach to snapshot, or attach to
	// detach once detached.
	Elapsed  time.Duration
	Detached bool
	// CallGraphEnabled is false when edges were not recorded.
	CallGraphEnabled bool
}

// Snapshot copies the current aggregates.
func (p *Profiler) Snapshot() Snapshot {
	end := p.stoppedAt
	if !p.detached {
		end = p.clock.Now()
	}
	stats := p.stats.clone()
	return Snapshot{
		SessionID:        p.sessionID,
		Statistics:       stats,
		CallGraph:        p.graph.clone(stats),
		Anomalies:        p.anomalies,
		OpenFrames:       p.stack.Len(),
		Elapsed:          clock.Sub(end, p.attached),
		Detached:         p.detached,
		CallGraphEnabled: p.callGraph,
	}
}

// Functions returns every function aggregate in insertion order.
func (s Snapshot) Functions() []FunctionStatistics {
	if s.Statistics == nil {
		return nil
	}
	return slices.Collect(s.Statistics.All())
}

// Edges returns every call graph edge in insertion order.
func (s Snapshot) Edges() []Edge {
	if s.CallGraph == nil {
		return nil
	}
	return slices.Collect(s.CallGraph.Edges())
}

// Totals sums self time and inclusive time over all functions.
func (s Snapshot) Totals() (self, total time.Duration) {
	if s.Statistics == nil {
		return 0, 0
	}
	for fs := range s.Statistics.All() {
		self += fs.SelfTime()
		total += fs.TotalTime
	}
	return self, total
}
