package trace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/vmprof/internal/clock"
	"github.com/coral-mesh/vmprof/internal/logging"
	"github.com/coral-mesh/vmprof/internal/profiler"
)

// maxLineSize bounds a single trace line.
const maxLineSize = 64 * 1024

// checkEvery is how many events are replayed between context checks.
const checkEvery = 4096

// Result summarises a replay.
type Result struct {
	Events int
	// Skipped counts malformed lines that were logged and ignored.
	Skipped int
	// First and Last are the first and last event timestamps.
	First, Last time.Duration
}

// Replayer feeds a recorded trace into an event sink, moving a manual clock
// to each event's timestamp before delivering it. Timestamps are rebased so
// the first event happens at zero, the time a profiler created on a fresh
// manual clock was attached.
type Replayer struct {
	clock  *clock.Manual
	logger zerolog.Logger
	// Strict makes malformed lines fatal instead of skipped.
	Strict bool
}

// NewReplayer creates a replayer driving c.
func NewReplayer(c *clock.Manual, logger zerolog.Logger) *Replayer {
	return &Replayer{
		clock:  c,
		logger: logging.WithComponent(logger, "trace_replayer"),
	}
}

// Replay reads events from r and delivers them to sink.
func (rp *Replayer) Replay(ctx context.Context, r io.Reader, sink profiler.EventSink) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		var ev Event
		err := json.Unmarshal(raw, &ev)
		if err == nil {
			err = ev.Validate()
		}
		if err != nil {
			if rp.Strict {
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			res.Skipped++
			rp.logger.Warn().Err(err).Int("line", line).Msg("Skipping malformed trace line")
			continue
		}

		ts := time.Duration(ev.Timestamp)
		if res.Events == 0 {
			res.First = ts
		}
		res.Last = ts
		rp.clock.Set(ts - res.First)
		Deliver(sink, ev)
		res.Events++

		if res.Events%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("failed to read trace: %w", err)
	}

	rp.logger.Debug().
		Int("events", res.Events).
		Int("skipped", res.Skipped).
		Dur("span", res.Last-res.First).
		Msg("Trace replayed")
	return res, nil
}

// Deliver calls the sink method matching ev.
func Deliver(sink profiler.EventSink, ev Event) {
	switch ev.Kind {
	case KindEnter:
		sink.OnEnter(profiler.Address(ev.Address), profiler.Address(ev.FramePointer))
	case KindStep:
		sink.OnStep(profiler.Address(ev.FramePointer))
	case KindNativeEnter:
		sink.OnNativeEnter(profiler.Address(ev.Address))
	case KindNativeLeave:
		sink.OnNativeLeave()
	case KindExportEnter:
		sink.OnExportEnter(profiler.Address(ev.Address))
	case KindExportLeave:
		sink.OnExportLeave()
	}
}
