package storage

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/vmprof/internal/profiler"
)

// Fingerprint hashes the aggregates of a snapshot. Two snapshots with the
// same functions, counters and edges in the same order hash equal.
func Fingerprint(snap profiler.Snapshot) uint64 {
	h := xxh3.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}

	for _, fs := range snap.Functions() {
		put(uint64(fs.Function.Address))
		_, _ = h.WriteString(fs.Function.Name)
		put(uint64(fs.Function.Kind))
		put(uint64(fs.NumCalls))
		put(uint64(fs.TotalTime))
		put(uint64(fs.ChildTime))
	}
	// Separates the function list from the edge list.
	put(^uint64(0))
	for _, e := range snap.Edges() {
		if e.Caller == nil {
			put(0)
		} else {
			put(1)
			put(uint64(e.Caller.Address))
		}
		put(uint64(e.Callee.Address))
		put(uint64(e.NumCalls))
		put(uint64(e.TotalTime))
	}
	return h.Sum64()
}
