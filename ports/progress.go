package ports

import (
	"gosane/domain/deconv"
)

// ProgressSink receives run lifecycle events as they happen. Implementations
// must be safe for use from the run goroutine.
type ProgressSink interface {
	RunStarted(run *deconv.Run)
	MajorIteration(id deconv.RunID, metrics deconv.IterationMetrics)
	RunFinished(id deconv.RunID, status deconv.Status, errMsg string)
}

// NopProgress discards all events.
type NopProgress struct{}

func (NopProgress) RunStarted(*deconv.Run)                               {}
func (NopProgress) MajorIteration(deconv.RunID, deconv.IterationMetrics) {}
func (NopProgress) RunFinished(deconv.RunID, deconv.Status, string)      {}
