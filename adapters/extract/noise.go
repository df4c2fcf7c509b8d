// Package extract covers the denoising and source-isolation stages of the
// deconvolver: MAD noise estimation per wavelet scale, hard thresholding
// with edge suppression, and tolerance-based connected-component extraction.
package extract

import (
	"math"

	"github.com/montanaflynn/stats"

	"gosane/domain/grid"
)

// madToSigma converts a median absolute deviation to a Gaussian sigma.
const madToSigma = 0.6745

// EstimateThresholds returns one MAD-derived noise sigma per scale of the
// cube. edgeExcl pixels along the border and a central square of half-width
// intExcl are excluded from the median so deterministic structure does not
// inflate the estimate.
func EstimateThresholds(cube *grid.Cube, edgeExcl, intExcl int) []float64 {
	side := cube.Side
	mid := side / 2

	include := func(r, c int) bool {
		if edgeExcl > 0 {
			if r < edgeExcl || r >= side-edgeExcl || c < edgeExcl || c >= side-edgeExcl {
				return false
			}
		}
		if intExcl > 0 {
			if r >= mid-intExcl && r < mid+intExcl && c >= mid-intExcl && c < mid+intExcl {
				return false
			}
		}
		return true
	}

	out := make([]float64, cube.Scales)
	sample := make([]float64, 0, side*side)
	for i := 0; i < cube.Scales; i++ {
		plane := cube.Plane(i)
		sample = sample[:0]
		for r := 0; r < side; r++ {
			for c := 0; c < side; c++ {
				if include(r, c) {
					sample = append(sample, math.Abs(plane[r*side+c]))
				}
			}
		}
		med, err := stats.Median(sample)
		if err != nil {
			med = 0
		}
		out[i] = med / madToSigma
	}
	return out
}
