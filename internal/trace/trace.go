// Package trace records and replays VM event streams.
//
// A trace is a JSON lines file, one event per line:
//
//	{"ts":0,"event":"export_enter","address":8}
//	{"ts":1200,"event":"step","fp":16380}
//	{"ts":1500,"event":"enter","address":496,"fp":16360}
//	{"ts":9100,"event":"export_leave"}
//
// ts is a monotonic timestamp in nanoseconds. Blank lines and lines starting
// with '#' are ignored.
package trace

import (
	"fmt"
)

// Kind is the type of a recorded event.
type Kind string

const (
	KindEnter       Kind = "enter"
	KindStep        Kind = "step"
	KindNativeEnter Kind = "native_enter"
	KindNativeLeave Kind = "native_leave"
	KindExportEnter Kind = "export_enter"
	KindExportLeave Kind = "export_leave"
)

// Event is one line of a trace.
type Event struct {
	Timestamp int64  `json:"ts"`
	Kind      Kind   `json:"event"`
	Address   uint64 `json:"address,omitempty"`
	// FramePointer is the entry frame pointer for enter events and the
	// current frame pointer for step events.
	FramePointer uint64 `json:"fp,omitempty"`
}

// Validate checks that the event kind is known.
func (e Event) Validate() error {
	switch e.Kind {
	case KindEnter, KindStep, KindNativeEnter, KindNativeLeave, KindExportEnter, KindExportLeave:
		return nil
	case "":
		return fmt.Errorf("missing event kind")
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
}
