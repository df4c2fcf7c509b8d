package ports

import (
	"context"

	"gosane/domain/deconv"
)

// RunRepository persists deconvolution run records.
type RunRepository interface {
	Create(ctx context.Context, run *deconv.Run) error
	UpdateStatus(ctx context.Context, id deconv.RunID, status deconv.Status, complete bool, errMsg string) error
	AppendIteration(ctx context.Context, id deconv.RunID, metrics deconv.IterationMetrics) error
	Get(ctx context.Context, id deconv.RunID) (*deconv.Run, error)
	List(ctx context.Context) ([]*deconv.Run, error)
}
