package deconv

import (
	"time"

	"github.com/google/uuid"
)

// RunID identifies a deconvolution run.
type RunID string

// NewRunID creates a new unique run identifier using UUID v7 for
// time-ordered generation, falling back to v4.
func NewRunID() RunID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return RunID(id.String())
}

// String returns the string representation.
func (id RunID) String() string { return string(id) }

// Status describes how a run ended, or that it has not ended yet.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	// StatusCompleted means the algorithm converged: the residual stddev
	// improvement dropped below the accuracy threshold, the flux threshold
	// was reached, or a pass did no further work.
	StatusCompleted Status = "completed"
	// StatusStalled means every scale performed poorly and the inner loop
	// exhausted them.
	StatusStalled Status = "stalled"
	// StatusNoSignal means no significant wavelet coefficients remained.
	StatusNoSignal Status = "no-signal"
	// StatusIterCap means the major loop hit its iteration budget.
	StatusIterCap Status = "iter-cap"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStalled, StatusNoSignal, StatusIterCap, StatusFailed:
		return true
	}
	return false
}

// IterationMetrics records the observable outcome of one major iteration.
type IterationMetrics struct {
	MajorIter   int     `json:"major_iter" db:"major_iter"`
	ScaleCount  int     `json:"scale_count" db:"scale_count"`
	MaxScale    int     `json:"max_scale" db:"max_scale"`
	MaxCoeff    float64 `json:"max_coeff" db:"max_coeff"`
	MinorIters  int     `json:"minor_iters" db:"minor_iters"`
	SNR         float64 `json:"snr" db:"snr"`
	ResidualStd float64 `json:"residual_std" db:"residual_std"`
	StdRatio    float64 `json:"std_ratio" db:"std_ratio"`
	Reverted    bool    `json:"reverted" db:"reverted"`
}

// Run is the persistent record of a deconvolution run.
type Run struct {
	ID         RunID              `json:"id" db:"id"`
	DirtyName  string             `json:"dirty_name" db:"dirty_name"`
	PSFName    string             `json:"psf_name" db:"psf_name"`
	Params     Params             `json:"params" db:"-"`
	Status     Status             `json:"status" db:"status"`
	Complete   bool               `json:"complete" db:"complete"`
	Error      string             `json:"error,omitempty" db:"error"`
	StartedAt  time.Time          `json:"started_at" db:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty" db:"finished_at"`
	Iterations []IterationMetrics `json:"iterations,omitempty" db:"-"`
}

// NewRun creates a pending run record.
func NewRun(dirtyName, psfName string, params Params) *Run {
	return &Run{
		ID:        NewRunID(),
		DirtyName: dirtyName,
		PSFName:   psfName,
		Params:    params,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
}
