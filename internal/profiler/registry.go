package profiler

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/vmprof/internal/logging"
)

// Handle identifies a VM instance, typically the host's pointer to it.
type Handle uintptr

// ErrAlreadyAttached is returned by Attach for a handle that has a profiler.
var ErrAlreadyAttached = errors.New("profiler already attached")

// Registry owns the profilers of all attached VM instances. It is safe for
// concurrent use; each profiler itself is only used from its VM's thread.
type Registry struct {
	mu        sync.RWMutex
	profilers map[Handle]*Profiler
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		profilers: make(map[Handle]*Profiler),
		logger:    logging.WithComponent(logger, "profiler_registry"),
	}
}

// Attach creates a profiler for handle. A session ID is generated when opts
// does not carry one.
func (r *Registry) Attach(handle Handle, opts Options) (*Profiler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profilers[handle]; ok {
		return nil, fmt.Errorf("vm %#x: %w", uintptr(handle), ErrAlreadyAttached)
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	p := New(opts)
	r.profilers[handle] = p

	r.logger.Info().
		Str("session_id", opts.SessionID).
		Uint64("vm", uint64(handle)).
		Msg("Profiler attached")
	return p, nil
}

// Get returns the profiler attached to handle.
func (r *Registry) Get(handle Handle) (*Profiler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profilers[handle]
	return p, ok
}

// Detach removes the profiler for handle and returns its final snapshot.
func (r *Registry) Detach(handle Handle) (Snapshot, bool) {
	r.mu.Lock()
	p, ok := r.profilers[handle]
	delete(r.profilers, handle)
	r.mu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	snap := p.Detach()
	r.logger.Info().
		Str("session_id", snap.SessionID).
		Uint64("vm", uint64(handle)).
		Int("functions", snap.Statistics.Len()).
		Msg("Profiler detached")
	return snap, true
}

// Handles returns the attached handles in ascending order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]Handle, 0, len(r.profilers))
	for h := range r.profilers {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	return handles
}

// Len returns the number of attached profilers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profilers)
}
