package iuwt

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"gosane/domain/grid"
)

// Parallel computes the transform with the row and column passes of each
// smoothing step fanned out over a bounded worker pool. Each pass writes
// disjoint stripes, so the output is bit-identical to the serial transform.
type Parallel struct {
	workers int
}

// NewParallel creates a parallel decomposer. workers <= 0 selects the number
// of CPUs.
func NewParallel(workers int) *Parallel {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Parallel{workers: workers}
}

func (d *Parallel) smooth(src *grid.Image, s int) *grid.Image {
	n := src.Side
	stripe := (n + d.workers - 1) / d.workers

	tmp := grid.New(n)
	var g errgroup.Group
	for lo := 0; lo < n; lo += stripe {
		lo, hi := lo, lo+stripe
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			for r := lo; r < hi; r++ {
				smoothRow(tmp.Row(r), src.Row(r), s)
			}
			return nil
		})
	}
	g.Wait()

	out := grid.New(n)
	g = errgroup.Group{}
	for lo := 0; lo < n; lo += stripe {
		lo, hi := lo, lo+stripe
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			smoothCols(out, tmp, s, lo, hi)
			return nil
		})
	}
	g.Wait()
	return out
}

// Decompose analyzes img into scaleCount detail scales, dropping the first
// scaleAdjust planes from the output.
func (d *Parallel) Decompose(ctx context.Context, img *grid.Image, scaleCount, scaleAdjust int) (*grid.Cube, error) {
	cube, _, err := decompose(ctx, img, scaleCount, scaleAdjust, d.smooth)
	return cube, err
}

// Recompose synthesizes an image as the sum of the emitted detail planes.
func (d *Parallel) Recompose(ctx context.Context, cube *grid.Cube, scaleAdjust int) (*grid.Image, error) {
	return recompose(ctx, cube)
}
