package app

import (
	"fmt"

	"gosane/domain/deconv"
	"gosane/domain/grid"
)

// Session owns every mutable array of one deconvolution: the dirty image,
// the PSF, the accumulating model and the residual. It is exclusively owned
// by the goroutine driving it; a second session is fully independent.
type Session struct {
	Dirty    *grid.Image
	PSF      *grid.Image
	Mask     *grid.Image // optional deconvolution mask, prepared by NewSession
	Model    *grid.Image
	Residual *grid.Image
	Restored *grid.Image

	// Complete is raised when a pass does no further work; the by-scale
	// driver uses it as its stopping signal.
	Complete bool
}

// NewSession validates the input shapes and initialises the model to zero
// and the residual to a copy of the dirty image. The PSF must share the
// dirty image's side or be exactly double it. A mask, when given, is
// normalised to its maximum and smoothed with a 5×5 box so hard mask edges
// do not imprint on the decomposition.
func NewSession(dirty, psf, mask *grid.Image) (*Session, error) {
	side := dirty.Side
	if side%2 == 1 {
		return nil, deconv.ErrUnevenImage
	}
	if !grid.IsPowerOfTwo(side) || side < 4 {
		return nil, deconv.ErrNotPowerOfTwo
	}
	if psf.Side != side && psf.Side != 2*side {
		return nil, fmt.Errorf("%w: psf side %d, dirty side %d", deconv.ErrShapeMismatch, psf.Side, side)
	}
	if mask != nil && mask.Side != side {
		return nil, fmt.Errorf("%w: mask side %d, dirty side %d", deconv.ErrShapeMismatch, mask.Side, side)
	}

	s := &Session{
		Dirty:    dirty,
		PSF:      psf,
		Model:    grid.New(side),
		Residual: dirty.Clone(),
	}
	if mask != nil {
		s.Mask = prepareMask(mask)
	}
	return s, nil
}

// prepareMask normalises and feathers a deconvolution mask.
func prepareMask(mask *grid.Image) *grid.Image {
	out := mask.Clone()
	if max := out.Max(); max > 0 {
		for i := range out.Data {
			out.Data[i] /= max
		}
	}
	out = boxSmooth(out, 2)
	if max := out.Max(); max > 0 {
		for i := range out.Data {
			out.Data[i] /= max
		}
	}
	return out
}

// boxSmooth convolves with a (2r+1)² box, truncated at the borders.
func boxSmooth(img *grid.Image, radius int) *grid.Image {
	n := img.Side
	out := grid.New(n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			sum := 0.0
			for dr := -radius; dr <= radius; dr++ {
				rr := r + dr
				if rr < 0 || rr >= n {
					continue
				}
				for dc := -radius; dc <= radius; dc++ {
					cc := c + dc
					if cc < 0 || cc >= n {
						continue
					}
					sum += img.At(rr, cc)
				}
			}
			out.Set(r, c, sum)
		}
	}
	return out
}
