package profiler

import (
	"fmt"
	"iter"
	"time"

	"github.com/coral-mesh/vmprof/internal/clock"
)

// StackGrowth is the direction in which the VM stack grows on a call.
type StackGrowth uint8

const (
	// GrowsDown means a callee's frame pointer is lower than its caller's.
	// This is the AMX convention and the default.
	GrowsDown StackGrowth = iota
	// GrowsUp means a callee's frame pointer is higher than its caller's.
	GrowsUp
)

// String returns "down" or "up".
func (g StackGrowth) String() string {
	if g == GrowsUp {
		return "up"
	}
	return "down"
}

// ParseStackGrowth is the inverse of StackGrowth.String.
func ParseStackGrowth(s string) (StackGrowth, error) {
	switch s {
	case "down", "":
		return GrowsDown, nil
	case "up":
		return GrowsUp, nil
	default:
		return GrowsDown, fmt.Errorf("unknown stack growth %q (want down or up)", s)
	}
}

// HasReturned reports whether the activation record based at framePointer
// no longer exists when the VM reports current as its frame pointer. This is
// the only place frame pointers are compared for ordering.
func (g StackGrowth) HasReturned(current, framePointer Address) bool {
	if g == GrowsUp {
		return current < framePointer
	}
	return current > framePointer
}

// FrameKind tells how a frame entered the stack and therefore how it leaves.
type FrameKind uint8

const (
	// FrameBytecode frames are entered by OnEnter and popped when a step shows
	// they have returned.
	FrameBytecode FrameKind = iota
	// FrameNative frames bracket a native call.
	FrameNative
	// FrameExport frames bracket a host call into a public function.
	FrameExport
)

func (k FrameKind) String() string {
	switch k {
	case FrameNative:
		return "native"
	case FrameExport:
		return "export"
	default:
		return "bytecode"
	}
}

// Frame is one live invocation.
type Frame struct {
	Address Address
	Kind    FrameKind
	// FramePointer is valid when HasFramePointer is set. Native frames never
	// have one; export frames learn theirs from the first step inside them.
	FramePointer    Address
	HasFramePointer bool
	Start           time.Duration
	ChildTime       time.Duration
}

// Popped describes a frame that has just been removed from the stack.
type Popped struct {
	Frame   Frame
	Elapsed time.Duration
	// ClockAnomaly is set when the clock went backwards during the call.
	ClockAnomaly bool
	// Parent is the frame that became the top, if any.
	Parent    Address
	HasParent bool
}

// CallStack mirrors the VM call stack. The last element is the most recently
// entered frame that has not yet returned.
type CallStack struct {
	growth StackGrowth
	frames []Frame
}

// NewCallStack creates an empty stack for a VM with the given stack growth.
func NewCallStack(growth StackGrowth) *CallStack {
	return &CallStack{growth: growth}
}

// Growth returns the stack growth convention.
func (s *CallStack) Growth() StackGrowth {
	return s.growth
}

// Len returns the number of live frames.
func (s *CallStack) Len() int {
	return len(s.frames)
}

// Empty reports whether no function is executing.
func (s *CallStack) Empty() bool {
	return len(s.frames) == 0
}

// Top returns the most recently entered live frame.
func (s *CallStack) Top() (Frame, bool) {
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *CallStack) top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// Frames yields the live frames from the bottom of the stack to the top.
func (s *CallStack) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for _, f := range s.frames {
			if !yield(f) {
				return
			}
		}
	}
}

// Push enters a new frame.
func (s *CallStack) Push(f Frame) {
	f.ChildTime = 0
	s.frames = append(s.frames, f)
}

// Pop removes the top frame at time now and charges its elapsed time to the
// new top as child time.
func (s *CallStack) Pop(now time.Duration) (Popped, bool) {
	if len(s.frames) == 0 {
		return Popped{}, false
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]

	elapsed, anomaly := clock.Elapsed(f.Start, now)
	p := Popped{Frame: f, Elapsed: elapsed, ClockAnomaly: anomaly}
	if parent := s.top(); parent != nil {
		parent.ChildTime += elapsed
		p.Parent = parent.Address
		p.HasParent = true
	}
	return p, true
}

// PopReturned pops bytecode frames for as long as the top one has returned
// according to current, calling onPop for each. A single step may unwind any
// number of frames. Native and export frames stop the unwinding; they are
// closed by their explicit leave events.
func (s *CallStack) PopReturned(current Address, now time.Duration, onPop func(Popped)) int {
	n := 0
	for {
		top := s.top()
		if top == nil || top.Kind != FrameBytecode || !s.growth.HasReturned(current, top.FramePointer) {
			return n
		}
		p, _ := s.Pop(now)
		n++
		onPop(p)
	}
}

// returnedOrSibling reports whether the top frame is a bytecode frame that
// has returned according to current, or that sits at the same depth.
func (s *CallStack) returnedOrSibling(current Address) bool {
	top := s.top()
	if top == nil || top.Kind != FrameBytecode {
		return false
	}
	return top.FramePointer == current || s.growth.HasReturned(current, top.FramePointer)
}

// Consistent reports whether the top frame agrees with current. A frame
// whose frame pointer is still unknown agrees with anything.
func (s *CallStack) Consistent(current Address) bool {
	top := s.top()
	if top == nil || !top.HasFramePointer {
		return true
	}
	return top.FramePointer == current
}

// Resync drops frames from the top until the top frame's frame pointer equals
// current. If no frame matches, the stack is cleared. Dropped frames are
// returned top first and are not charged to anyone.
func (s *CallStack) Resync(current Address) []Frame {
	keep := 0
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if f.HasFramePointer && f.FramePointer == current {
			keep = i + 1
			break
		}
	}
	dropped := make([]Frame, 0, len(s.frames)-keep)
	for i := len(s.frames) - 1; i >= keep; i-- {
		dropped = append(dropped, s.frames[i])
	}
	s.frames = s.frames[:keep]
	return dropped
}

// topmost returns the index of the highest frame of the given kind, or -1.
func (s *CallStack) topmost(kind FrameKind) int {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Kind == kind {
			return i
		}
	}
	return -1
}
