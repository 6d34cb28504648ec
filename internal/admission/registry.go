package admission

import (
	"context"
	"sync"

	"github.com/willowglen/reportpdf/internal/domain"
)

// Registry enforces at-most-one-active-job-per-key. A key stays held from
// admission until the terminal status publish releases it; a trigger for
// a held key is a duplicate and produces no status event.
type Registry interface {
	// Admit returns true when the key was free and is now held.
	Admit(ctx context.Context, key domain.JobKey) (bool, error)
	// Release frees the key so a future retrigger is admitted again.
	Release(ctx context.Context, key domain.JobKey) error
}

// MemoryRegistry is the default single-instance implementation. The
// in-flight set is the orchestrator's only mutable shared state, guarded
// by one mutex. Process restart empties the set; interrupted jobs are
// abandoned and recovered by the caller's own timeout.
type MemoryRegistry struct {
	mu       sync.Mutex
	inflight map[domain.JobKey]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		inflight: make(map[domain.JobKey]struct{}),
	}
}

func (r *MemoryRegistry) Admit(_ context.Context, key domain.JobKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.inflight[key]; held {
		return false, nil
	}
	r.inflight[key] = struct{}{}
	return true, nil
}

func (r *MemoryRegistry) Release(_ context.Context, key domain.JobKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inflight, key)
	return nil
}

func (r *MemoryRegistry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
