package profiler

import (
	"iter"
	"time"

	"github.com/coral-mesh/vmprof/internal/clock"
)

// FunctionStatistics is the running aggregate for one function.
type FunctionStatistics struct {
	Function Function
	// NumCalls counts completed calls.
	NumCalls int64
	// TotalTime is the sum of inclusive call durations.
	TotalTime time.Duration
	// ChildTime is the part of TotalTime spent in callees.
	ChildTime time.Duration
}

// SelfTime is the time spent in the function's own instructions.
func (s FunctionStatistics) SelfTime() time.Duration {
	return clock.Sub(s.TotalTime, s.ChildTime)
}

// AverageTime is the mean inclusive duration of a call.
func (s FunctionStatistics) AverageTime() time.Duration {
	if s.NumCalls == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.NumCalls)
}

// Statistics owns every Function and its FunctionStatistics, keyed by entry
// address. Entries are stored by value in insertion order and never removed.
type Statistics struct {
	entries []FunctionStatistics
	index   map[Address]int
}

// NewStatistics creates an empty directory.
func NewStatistics() *Statistics {
	return &Statistics{index: make(map[Address]int)}
}

// GetOrCreate returns the aggregate for address, creating a zero-valued one
// with the given name and kind if the address has not been seen. Name and kind
// of an existing entry are never changed.
func (s *Statistics) GetOrCreate(address Address, name string, kind Kind) FunctionStatistics {
	return s.entries[s.slot(address, name, kind)]
}

// slot returns the arena index for address, inserting if needed.
func (s *Statistics) slot(address Address, name string, kind Kind) int {
	if i, ok := s.index[address]; ok {
		return i
	}
	if name == "" {
		name = AnonymousName(address)
	}
	s.entries = append(s.entries, FunctionStatistics{
		Function: Function{Address: address, Name: name, Kind: kind},
	})
	i := len(s.entries) - 1
	s.index[address] = i
	return i
}

// Lookup returns the function registered at address.
func (s *Statistics) Lookup(address Address) (Function, bool) {
	i, ok := s.index[address]
	if !ok {
		return Function{}, false
	}
	return s.entries[i].Function, true
}

// Get returns the aggregate for address.
func (s *Statistics) Get(address Address) (FunctionStatistics, bool) {
	i, ok := s.index[address]
	if !ok {
		return FunctionStatistics{}, false
	}
	return s.entries[i], true
}

// Len returns the number of known functions.
func (s *Statistics) Len() int {
	return len(s.entries)
}

// All yields every aggregate in the order the functions were first observed.
// The sequence can be ranged over any number of times; it must not be used
// while events are being delivered.
func (s *Statistics) All() iter.Seq[FunctionStatistics] {
	return func(yield func(FunctionStatistics) bool) {
		for _, e := range s.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Restore sets the aggregate for fs.Function.Address to fs, inserting the
// function if needed. It rebuilds statistics read back from storage.
func (s *Statistics) Restore(fs FunctionStatistics) {
	i := s.slot(fs.Function.Address, fs.Function.Name, fs.Function.Kind)
	fs.Function = s.entries[i].Function
	s.entries[i] = fs
}

// record adds one completed call. childTime is capped at elapsed so that
// self time can never be negative.
func (s *Statistics) record(address Address, elapsed, childTime time.Duration) {
	i, ok := s.index[address]
	if !ok {
		return
	}
	if childTime > elapsed {
		childTime = elapsed
	}
	e := &s.entries[i]
	e.NumCalls++
	e.TotalTime += elapsed
	e.ChildTime += childTime
}

// clone returns a deep copy.
func (s *Statistics) clone() *Statistics {
	c := &Statistics{
		entries: make([]FunctionStatistics, len(s.entries)),
		index:   make(map[Address]int, len(s.index)),
	}
	copy(c.entries, s.entries)
	for k, v := range s.index {
		c.index[k] = v
	}
	return c
}
