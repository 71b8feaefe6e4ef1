package trace

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/vmprof/internal/clock"
	"github.com/coral-mesh/vmprof/internal/logging"
	"github.com/coral-mesh/vmprof/internal/profiler"
)

// Recorder is an event sink that writes every event to a trace and then
// forwards it to an optional next sink. Write errors are logged once and
// recording stops; events keep flowing to the next sink.
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    *json.Encoder
	clock  clock.Clock
	next   profiler.EventSink
	logger zerolog.Logger
	failed bool
}

var _ profiler.EventSink = (*Recorder)(nil)

// NewRecorder creates a recorder writing to w with timestamps from c.
func NewRecorder(w io.Writer, c clock.Clock, next profiler.EventSink, logger zerolog.Logger) *Recorder {
	bw := bufio.NewWriter(w)
	return &Recorder{
		w:      bw,
		enc:    json.NewEncoder(bw),
		clock:  c,
		next:   next,
		logger: logging.WithComponent(logger, "trace_recorder"),
	}
}

func (r *Recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return
	}
	ev.Timestamp = int64(r.clock.Now())
	if err := r.enc.Encode(ev); err != nil {
		r.failed = true
		r.logger.Error().Err(err).Msg("Failed to write trace event, recording stopped")
	}
}

// Flush writes buffered events.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Flush()
}

func (r *Recorder) OnEnter(address, framePointer profiler.Address) {
	r.record(Event{Kind: KindEnter, Address: uint64(address), FramePointer: uint64(framePointer)})
	if r.next != nil {
		r.next.OnEnter(address, framePointer)
	}
}

func (r *Recorder) OnStep(current profiler.Address) {
	r.record(Event{Kind: KindStep, FramePointer: uint64(current)})
	if r.next != nil {
		r.next.OnStep(current)
	}
}

func (r *Recorder) OnNativeEnter(address profiler.Address) {
	r.record(Event{Kind: KindNativeEnter, Address: uint64(address)})
	if r.next != nil {
		r.next.OnNativeEnter(address)
	}
}

func (r *Recorder) OnNativeLeave() {
	r.record(Event{Kind: KindNativeLeave})
	if r.next != nil {
		r.next.OnNativeLeave()
	}
}

func (r *Recorder) OnExportEnter(address profiler.Address) {
	r.record(Event{Kind: KindExportEnter, Address: uint64(address)})
	if r.next != nil {
		r.next.OnExportEnter(address)
	}
}

func (r *Recorder) OnExportLeave() {
	r.record(Event{Kind: KindExportLeave})
	if r.next != nil {
		r.next.OnExportLeave()
	}
}
