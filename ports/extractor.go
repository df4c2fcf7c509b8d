package ports

import (
	"gosane/domain/grid"
)

// SourceExtractor isolates significant structure in a thresholded wavelet
// cube.
type SourceExtractor interface {
	// Extract labels connected components per scale and retains those whose
	// peak coefficient reaches tolerance times the scale maximum, plus any
	// component overlapping a retained component one scale coarser. It
	// returns the retained coefficients and their mask.
	Extract(cube *grid.Cube, tolerance float64, negComp bool) (*grid.Cube, *grid.Mask)
}
