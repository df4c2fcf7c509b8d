// Package memory provides in-process adapters used by tests and by the
// server when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gosane/domain/deconv"
	"gosane/ports"
)

// RunRepository keeps run records in a mutex-guarded map.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[deconv.RunID]*deconv.Run
}

// NewRunRepository creates an empty in-memory repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[deconv.RunID]*deconv.Run)}
}

var _ ports.RunRepository = (*RunRepository)(nil)

// Create stores a copy of the run record.
func (r *RunRepository) Create(ctx context.Context, run *deconv.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	cp.Iterations = append([]deconv.IterationMetrics(nil), run.Iterations...)
	r.runs[run.ID] = &cp
	return nil
}

// UpdateStatus updates a run's state, stamping the finish time for terminal
// statuses.
func (r *RunRepository) UpdateStatus(ctx context.Context, id deconv.RunID, status deconv.Status, complete bool, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return deconv.ErrRunNotFound
	}
	run.Status = status
	run.Complete = complete
	run.Error = errMsg
	if status.Terminal() {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	return nil
}

// AppendIteration records one major-iteration metric row.
func (r *RunRepository) AppendIteration(ctx context.Context, id deconv.RunID, m deconv.IterationMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return deconv.ErrRunNotFound
	}
	run.Iterations = append(run.Iterations, m)
	return nil
}

// Get returns a copy of one run.
func (r *RunRepository) Get(ctx context.Context, id deconv.RunID) (*deconv.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, deconv.ErrRunNotFound
	}
	cp := *run
	cp.Iterations = append([]deconv.IterationMetrics(nil), run.Iterations...)
	return &cp, nil
}

// List returns every run, newest first.
func (r *RunRepository) List(ctx context.Context) ([]*deconv.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*deconv.Run, 0, len(r.runs))
	for _, run := range r.runs {
		cp := *run
		cp.Iterations = append([]deconv.IterationMetrics(nil), run.Iterations...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
