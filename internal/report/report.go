// Package report renders profiler snapshots.
package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/coral-mesh/vmprof/internal/profiler"
)

// Format names an output format.
type Format string

const (
	FormatText  Format = "text"
	FormatXML   Format = "xml"
	FormatHTML  Format = "html"
	FormatPprof Format = "pprof"
	FormatDot   Format = "dot"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatXML, FormatHTML, FormatPprof, FormatDot}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if slices.Contains(Formats(), f) {
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q (want one of %v)", s, Formats())
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatText:
		return "txt"
	case FormatPprof:
		return "pb.gz"
	default:
		return string(f)
	}
}

// Report is what a writer renders.
type Report struct {
	// Script is the name of the profiled script.
	Script    string
	Generated time.Time
	// Generator names the tool version; optional.
	Generator string
	Snapshot  profiler.Snapshot
}

// Writer renders a report.
type Writer interface {
	Write(w io.Writer, r Report) error
}

// NewWriter returns the writer for format.
func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatText:
		return TextWriter{}, nil
	case FormatXML:
		return XMLWriter{}, nil
	case FormatHTML:
		return HTMLWriter{}, nil
	case FormatPprof:
		return PprofWriter{}, nil
	case FormatDot:
		return DotWriter{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Row is one function with derived figures.
type Row struct {
	Function profiler.Function
	Calls    int64
	Self     time.Duration
	Child    time.Duration
	Total    time.Duration
	Average  time.Duration
	// SelfPercent and TotalPercent are shares of the summed self and total
	// times of all functions.
	SelfPercent  float64
	TotalPercent float64
}

// Rows derives report rows from a snapshot, ordered by self time, then total
// time, then name. Functions that were never called are left out.
func Rows(snap profiler.Snapshot) []Row {
	selfAll, totalAll := snap.Totals()

	var rows []Row
	for _, fs := range snap.Functions() {
		if fs.NumCalls == 0 {
			continue
		}
		rows = append(rows, Row{
			Function:     fs.Function,
			Calls:        fs.NumCalls,
			Self:         fs.SelfTime(),
			Child:        fs.ChildTime,
			Total:        fs.TotalTime,
			Average:      fs.AverageTime(),
			SelfPercent:  percent(fs.SelfTime(), selfAll),
			TotalPercent: percent(fs.TotalTime, totalAll),
		})
	}
	slices.SortStableFunc(rows, func(a, b Row) int {
		if c := cmp.Compare(b.Self, a.Self); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Function.Name, b.Function.Name)
	})
	return rows
}

func percent(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}

// callerName returns the display name of an edge's caller.
func callerName(e profiler.Edge) string {
	if e.Caller == nil {
		return "<host>"
	}
	return e.Caller.Name
}
