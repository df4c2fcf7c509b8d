package ports

import (
	"context"

	"gosane/domain/grid"
)

// Decomposer is the isotropic undecimated wavelet transform the driver is
// written against. Implementations may execute serially, across a worker
// pool, or on an accelerator; output must agree beyond float rounding.
type Decomposer interface {
	// Decompose analyzes img into scaleCount detail scales, omitting the
	// first scaleAdjust of them. The coarse smoothing still proceeds through
	// the omitted scales.
	Decompose(ctx context.Context, img *grid.Image, scaleCount, scaleAdjust int) (*grid.Cube, error)

	// Recompose synthesizes an image from detail scales, treating scales
	// below scaleAdjust as zero.
	Recompose(ctx context.Context, cube *grid.Cube, scaleAdjust int) (*grid.Image, error)
}
