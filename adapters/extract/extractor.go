package extract

import (
	"gosane/domain/grid"
)

// Extractor isolates significant sources in a thresholded coefficient cube.
// It implements ports.SourceExtractor.
type Extractor struct{}

// NewExtractor creates a source extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract walks the cube from the coarsest plane to the finest. On each
// plane it labels the 8-connected components and retains those whose peak
// magnitude reaches tolerance times the plane maximum, together with any
// component overlapping a pixel retained one scale coarser. Retained
// coefficients are copied to the output cube; everything else stays zero.
func (e *Extractor) Extract(cube *grid.Cube, tolerance float64, negComp bool) (*grid.Cube, *grid.Mask) {
	side := cube.Side
	sources := grid.NewCube(cube.Scales, side)
	mask := grid.NewMask(cube.Scales, side)

	active := func(v float64) bool { return v > 0 }
	if negComp {
		active = func(v float64) bool { return v != 0 }
	}

	var coarser []bool
	for i := cube.Scales - 1; i >= 0; i-- {
		plane := cube.Plane(i)

		planeMax := 0.0
		for _, v := range plane {
			if v > planeMax {
				planeMax = v
			}
			if negComp && -v > planeMax {
				planeMax = -v
			}
		}
		if planeMax == 0 {
			coarser = mask.Plane(i)
			continue
		}

		uf := label(plane, side, active)

		// A component is retained if its peak clears the tolerance cut or if
		// any of its pixels overlaps the retained mask one scale coarser.
		overlap := make(map[int32]bool)
		if coarser != nil {
			for k := range plane {
				if active(plane[k]) && coarser[k] {
					overlap[uf.find(int32(k))] = true
				}
			}
		}

		cut := tolerance * planeMax
		out := sources.Plane(i)
		kept := mask.Plane(i)
		for k, v := range plane {
			if !active(v) {
				continue
			}
			root := uf.find(int32(k))
			if uf.peak[root] >= cut || overlap[root] {
				out[k] = v
				kept[k] = true
			}
		}
		coarser = kept
	}
	return sources, mask
}
