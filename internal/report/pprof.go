package report

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"github.com/coral-mesh/vmprof/internal/profiler"
)

// PprofWriter renders a gzipped pprof profile. Every function becomes a
// location with one sample holding its totals. Call graph edges become
// zero-valued two-frame samples labelled with the edge's call count and time,
// so `pprof -top` shows self time and `pprof -peek` shows callers.
type PprofWriter struct{}

func (PprofWriter) Write(w io.Writer, r Report) error {
	prof, err := BuildProfile(r)
	if err != nil {
		return err
	}
	if err := prof.Write(w); err != nil {
		return fmt.Errorf("failed to write pprof profile: %w", err)
	}
	return nil
}

// BuildProfile converts a report to a pprof profile with sample types
// calls/count, self/nanoseconds and total/nanoseconds.
func BuildProfile(r Report) (*profile.Profile, error) {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "calls", Unit: "count"},
			{Type: "self", Unit: "nanoseconds"},
			{Type: "total", Unit: "nanoseconds"},
		},
		DefaultSampleType: "self",
		PeriodType:        &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:            1,
		TimeNanos:         r.Generated.UnixNano(),
		DurationNanos:     int64(r.Snapshot.Elapsed),
	}
	if r.Script != "" {
		prof.Comments = append(prof.Comments, "script: "+r.Script)
	}
	if r.Generator != "" {
		prof.Comments = append(prof.Comments, r.Generator)
	}

	locations := make(map[profiler.Address]*profile.Location)
	location := func(fn profiler.Function) *profile.Location {
		if loc, ok := locations[fn.Address]; ok {
			return loc
		}
		id := uint64(len(locations) + 1)
		f := &profile.Function{
			ID:         id,
			Name:       fn.Name,
			SystemName: fn.Name,
			Filename:   r.Script,
		}
		loc := &profile.Location{
			ID:      id,
			Address: uint64(fn.Address),
			Line:    []profile.Line{{Function: f}},
		}
		prof.Function = append(prof.Function, f)
		prof.Location = append(prof.Location, loc)
		locations[fn.Address] = loc
		return loc
	}

	for _, fs := range r.Snapshot.Functions() {
		if fs.NumCalls == 0 {
			continue
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{location(fs.Function)},
			Value:    []int64{fs.NumCalls, int64(fs.SelfTime()), int64(fs.TotalTime)},
			Label:    map[string][]string{"kind": {fs.Function.Kind.String()}},
		})
	}

	// Edge values live in labels; the time is already in the callee's sample.
	for _, e := range r.Snapshot.Edges() {
		if e.Caller == nil {
			continue
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{location(e.Callee), location(*e.Caller)},
			Value:    []int64{0, 0, 0},
			NumLabel: map[string][]int64{
				"edge_calls": {e.NumCalls},
				"edge_time":  {int64(e.TotalTime)},
			},
			NumUnit: map[string][]string{
				"edge_calls": {"count"},
				"edge_time":  {"nanoseconds"},
			},
		})
	}

	if err := prof.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid pprof profile: %w", err)
	}
	return prof, nil
}
