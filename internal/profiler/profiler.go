package profiler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/vmprof/internal/clock"
	"github.com/coral-mesh/vmprof/internal/logging"
)

// EventSink is the set of VM events the profiler consumes. The hook
// installation that produces them belongs to the host integration.
type EventSink interface {
	// OnEnter is delivered when a bytecode function starts executing with its
	// activation record based at framePointer.
	OnEnter(address, framePointer Address)
	// OnStep is delivered at instruction boundaries with the VM's current
	// frame pointer.
	OnStep(current Address)
	// OnNativeEnter and OnNativeLeave bracket a native call. The host
	// delivers the leave even when the native fails.
	OnNativeEnter(address Address)
	OnNativeLeave()
	// OnExportEnter and OnExportLeave bracket a host call into a public
	// function, including the first call into an idle VM.
	OnExportEnter(address Address)
	OnExportLeave()
}

// Resolver maps a code address to symbol information.
type Resolver interface {
	Resolve(address Address) (name string, kind Kind, ok bool)
}

// Options configures a Profiler.
type Options struct {
	// Clock defaults to the system monotonic clock.
	Clock clock.Clock
	// Resolver is optional; unresolved functions are named after their address.
	Resolver Resolver
	Logger   zerolog.Logger
	// StackGrowth selects the frame pointer comparison used for return detection.
	StackGrowth StackGrowth
	// DisableCallGraph turns off edge recording.
	DisableCallGraph bool
	// SessionID labels log events and snapshots.
	SessionID string
}

// Anomalies counts the inconsistencies the profiler recovered from.
type Anomalies struct {
	// Desyncs counts steps whose frame pointer disagreed with the tracked
	// stack and leaves whose call had already been discarded.
	Desyncs int64
	// UnmatchedLeaves counts native or export leaves with no call of that
	// kind to close.
	UnmatchedLeaves int64
	// ClockAnomalies counts calls whose measured duration was negative.
	ClockAnomalies int64
	// ForceClosed counts frames closed without their own return signal.
	ForceClosed int64
	// Discarded counts frames dropped while resynchronizing.
	Discarded int64
	// DuplicateEnters counts entry events for an already live activation.
	DuplicateEnters int64
}

// Total returns the number of recorded anomalies, duplicate enters excluded.
func (a Anomalies) Total() int64 {
	return a.Desyncs + a.UnmatchedLeaves + a.ClockAnomalies + a.ForceClosed + a.Discarded
}

// Profiler tracks the call stack of one VM instance and aggregates statistics.
//
// Event methods must be called from the VM's thread. Snapshot must be called
// from the same thread or after Detach.
type Profiler struct {
	logger    zerolog.Logger
	clock     clock.Clock
	resolver  Resolver
	callGraph bool
	sessionID string

	stack *CallStack
	stats *Statistics
	graph *CallGraph

	// barriers records native and export calls in entry order, independently
	// of the stack, so a leave knows which function it expects to close.
	barriers []barrier

	anomalies Anomalies
	attached  time.Duration
	detached  bool
	stoppedAt time.Duration
}

var _ EventSink = (*Profiler)(nil)

type barrier struct {
	kind    FrameKind
	address Address
}

// New creates a profiler that starts measuring immediately.
func New(opts Options) *Profiler {
	c := opts.Clock
	if c == nil {
		c = clock.NewMonotonic()
	}
	stats := NewStatistics()
	logger := logging.WithComponent(opts.Logger, "profiler")
	if opts.SessionID != "" {
		logger = logger.With().Str("session_id", opts.SessionID).Logger()
	}
	return &Profiler{
		logger:    logger,
		clock:     c,
		resolver:  opts.Resolver,
		callGraph: !opts.DisableCallGraph,
		sessionID: opts.SessionID,
		stack:     NewCallStack(opts.StackGrowth),
		stats:     stats,
		graph:     NewCallGraph(stats),
		attached:  c.Now(),
	}
}

// SessionID returns the session label given at construction.
func (p *Profiler) SessionID() string {
	return p.sessionID
}

// Depth returns the number of live frames.
func (p *Profiler) Depth() int {
	return p.stack.Len()
}

// Anomalies returns the anomaly counters.
func (p *Profiler) Anomalies() Anomalies {
	return p.anomalies
}

// OnEnter begins a bytecode function.
//
// An entry for the activation already on top of the stack is ignored, and an
// entry for the public on top of the stack as an export frame anchors that
// frame, or confirms its anchor, instead of pushing a second one. Frames the
// new frame pointer shows to have returned are closed first.
func (p *Profiler) OnEnter(address, framePointer Address) {
	if p.detached {
		return
	}
	if top := p.stack.top(); top != nil {
		if top.Kind == FrameBytecode && top.Address == address && top.FramePointer == framePointer {
			p.anomalies.DuplicateEnters++
			p.logger.Trace().
				Uint64("address", uint64(address)).
				Uint64("frame_pointer", uint64(framePointer)).
				Msg("Ignoring duplicate function entry")
			return
		}
		if top.Kind == FrameExport && top.Address == address &&
			(!top.HasFramePointer || top.FramePointer == framePointer) {
			top.FramePointer = framePointer
			top.HasFramePointer = true
			return
		}
	}

	if p.stack.returnedOrSibling(framePointer) {
		now := p.clock.Now()
		for p.stack.returnedOrSibling(framePointer) {
			popped, _ := p.stack.Pop(now)
			p.endFunction(popped)
		}
	}

	p.beginFunction(address, KindNormal, Frame{
		Address:         address,
		Kind:            FrameBytecode,
		FramePointer:    framePointer,
		HasFramePointer: true,
	})
}

// OnStep closes every bytecode function the current frame pointer shows to
// have returned and resynchronizes the stack if the frame it returned into is
// not the one the VM reports.
func (p *Profiler) OnStep(current Address) {
	if p.detached || p.stack.Empty() {
		return
	}
	if top := p.stack.top(); top.Kind == FrameExport && !top.HasFramePointer {
		top.FramePointer = current
		top.HasFramePointer = true
		return
	}

	n := p.stack.PopReturned(current, p.clock.Now(), func(popped Popped) {
		p.endFunction(popped)
	})
	if n == 0 || p.stack.Consistent(current) {
		return
	}

	dropped := p.stack.Resync(current)
	p.anomalies.Desyncs++
	p.anomalies.Discarded += int64(len(dropped))
	ev := p.logger.Warn().
		Str("anomaly", "desync").
		Uint64("frame_pointer", uint64(current)).
		Int("discarded", len(dropped)).
		Int("depth", p.stack.Len())
	if len(dropped) > 0 {
		ev = ev.Uint64("address", uint64(dropped[0].Address))
	}
	ev.Msg("Call stack out of sync with VM, resynchronizing")
}

// OnNativeEnter begins a native call.
func (p *Profiler) OnNativeEnter(address Address) {
	if p.detached {
		return
	}
	p.barriers = append(p.barriers, barrier{kind: FrameNative, address: address})
	p.beginFunction(address, KindNative, Frame{Address: address, Kind: FrameNative})
}

// OnNativeLeave ends the innermost native call.
func (p *Profiler) OnNativeLeave() {
	p.leave(FrameNative)
}

// OnExportEnter begins a host call into a public function.
func (p *Profiler) OnExportEnter(address Address) {
	if p.detached {
		return
	}
	p.barriers = append(p.barriers, barrier{kind: FrameExport, address: address})
	p.beginFunction(address, KindPublic, Frame{Address: address, Kind: FrameExport})
}

// OnExportLeave ends the innermost public call.
func (p *Profiler) OnExportLeave() {
	p.leave(FrameExport)
}

// leave closes the topmost frame of the given kind. Frames above it never saw
// their return (the VM aborted) and are closed at the same instant. The frame
// must belong to the function of the matching enter; when resynchronization
// discarded that frame the leave is a desync and nothing is closed.
func (p *Profiler) leave(kind FrameKind) {
	if p.detached {
		return
	}
	now := p.clock.Now()
	expected, ok := p.popBarrier(kind)
	if !ok {
		p.anomalies.UnmatchedLeaves++
		p.logger.Warn().
			Str("anomaly", "unmatched_leave").
			Str("frame_kind", kind.String()).
			Int("depth", p.stack.Len()).
			Msg("Leave event without a matching call, ignoring")
		return
	}

	idx := p.stack.topmost(kind)
	if idx < 0 || p.stack.frames[idx].Address != expected {
		p.anomalies.Desyncs++
		ev := p.logger.Warn().
			Str("anomaly", "desync").
			Str("frame_kind", kind.String()).
			Uint64("expected", uint64(expected))
		if idx >= 0 {
			ev = ev.Uint64("address", uint64(p.stack.frames[idx].Address))
		}
		ev.Msg("Leave does not match the open call, ignoring")
		return
	}

	if stale := p.stack.Len() - 1 - idx; stale > 0 {
		p.anomalies.ForceClosed += int64(stale)
		p.logger.Warn().
			Str("anomaly", "force_close").
			Str("frame_kind", kind.String()).
			Int("frames", stale).
			Msg("Closing frames left open by a non-local exit")
		for p.stack.Len()-1 > idx {
			popped, _ := p.stack.Pop(now)
			p.endFunction(popped)
		}
	}

	popped, _ := p.stack.Pop(now)
	p.endFunction(popped)
}

// popBarrier removes the most recent barrier of the given kind together with
// any barriers entered after it, which can no longer see their leave.
func (p *Profiler) popBarrier(kind FrameKind) (Address, bool) {
	for i := len(p.barriers) - 1; i >= 0; i-- {
		if p.barriers[i].kind == kind {
			address := p.barriers[i].address
			p.barriers = p.barriers[:i]
			return address, true
		}
	}
	return 0, false
}

// Detach stops profiling. Frames still open are closed at the detach time so
// no statistics are lost. Later events are ignored. The final snapshot is
// returned; calling Detach again returns the same data.
func (p *Profiler) Detach() Snapshot {
	if p.detached {
		return p.Snapshot()
	}
	now := p.clock.Now()
	if open := p.stack.Len(); open > 0 {
		p.anomalies.ForceClosed += int64(open)
		p.logger.Warn().
			Str("anomaly", "open_at_detach").
			Int("frames", open).
			Msg("Profiler detached with functions still executing")
		for !p.stack.Empty() {
			popped, _ := p.stack.Pop(now)
			p.endFunction(popped)
		}
	}
	p.barriers = nil
	p.detached = true
	p.stoppedAt = now
	p.logger.Debug().
		Int("functions", p.stats.Len()).
		Int("edges", p.graph.Len()).
		Int64("anomalies", p.anomalies.Total()).
		Msg("Profiler detached")
	return p.Snapshot()
}

// Detached reports whether Detach has been called.
func (p *Profiler) Detached() bool {
	return p.detached
}

func (p *Profiler) beginFunction(address Address, kind Kind, f Frame) {
	p.ensureFunction(address, kind)
	if p.callGraph {
		if top := p.stack.top(); top != nil {
			caller := top.Address
			p.graph.RecordCall(&caller, address)
		} else {
			p.graph.RecordCall(nil, address)
		}
	}
	// Read the clock last so bookkeeping is not charged to the callee.
	f.Start = p.clock.Now()
	p.stack.Push(f)
}

// endFunction records a popped frame.
func (p *Profiler) endFunction(popped Popped) {
	f := popped.Frame
	if popped.ClockAnomaly {
		p.anomalies.ClockAnomalies++
		p.logger.Warn().
			Str("anomaly", "clock").
			Uint64("address", uint64(f.Address)).
			Msg("Clock went backwards, call duration clamped to zero")
	}

	p.stats.record(f.Address, popped.Elapsed, f.ChildTime)
	if !p.callGraph {
		return
	}
	if popped.HasParent {
		parent := popped.Parent
		p.graph.FinalizeCall(&parent, f.Address, popped.Elapsed)
	} else {
		p.graph.FinalizeCall(nil, f.Address, popped.Elapsed)
	}
}

func (p *Profiler) ensureFunction(address Address, kind Kind) {
	if _, ok := p.stats.Lookup(address); ok {
		return
	}
	name := ""
	if p.resolver != nil {
		if n, k, ok := p.resolver.Resolve(address); ok {
			name, kind = n, k
		}
	}
	p.stats.GetOrCreate(address, name, kind)
}
