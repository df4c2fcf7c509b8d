package app

import (
	"context"

	"gosane/domain/deconv"
	"gosane/domain/grid"
)

// MoresaneByScale runs the major loop at increasing analysis depth,
// attempting to remove all structure at the lower scales before admitting
// higher ones. Each pass deconvolves the residual of the previous one; the
// model accumulates across passes. The walk stops when a pass does no work,
// or when the depth passes StopScale or the grid's admissible maximum.
func (d *Deconvolver) MoresaneByScale(ctx context.Context, s *Session, params deconv.Params) (deconv.Status, error) {
	originalDirty := s.Dirty
	defer func() {
		s.Dirty = originalDirty
		s.Complete = false
	}()

	scaleCount := params.StartScale
	if scaleCount < 1 {
		scaleCount = 1
	}
	status := deconv.StatusCompleted

	for !s.Complete {
		d.log.Info("moresane pass", "scale_count", scaleCount)

		p := params
		p.ScaleCount = scaleCount
		st, err := d.Moresane(ctx, s, p)
		if err != nil {
			return deconv.StatusFailed, err
		}
		status = st

		s.Dirty = s.Residual
		scaleCount++

		if scaleCount > grid.MaxScaleCount(originalDirty.Side) || scaleCount > params.StopScale {
			d.log.Info("maximum scale reached - finished")
			break
		}
	}
	return status, nil
}
