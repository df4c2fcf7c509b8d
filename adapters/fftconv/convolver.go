package fftconv

import (
	"fmt"

	"gosane/domain/deconv"
	"gosane/domain/grid"
	"gosane/ports"
)

// Convolver implements ports.Convolver with real-to-complex FFTs. Spectra it
// returns are immutable and shareable; the convolver itself serializes plan
// access and may be used from several goroutines.
type Convolver struct {
	cache *planCache
}

// New creates an FFT convolver.
func New() *Convolver {
	return &Convolver{cache: newPlanCache()}
}

// spectrum is a precomputed PSF half-spectrum.
type spectrum struct {
	side int // side of the images the spectrum convolves against
	size int // side of the transform grid (side, or 2*side for linear)
	mode deconv.ConvMode
	data []complex128
}

func (s *spectrum) Side() int             { return s.side }
func (s *spectrum) Mode() deconv.ConvMode { return s.mode }

// Precompute transforms the PSF for repeated convolution against side-sized
// images. In linear mode the PSF is zero-padded to double size first; a PSF
// already supplied at double size is transformed as-is. In circular mode a
// double-size PSF is reduced to its central quadrant.
func (c *Convolver) Precompute(psf *grid.Image, mode deconv.ConvMode, side int) (ports.PSFSpectrum, error) {
	switch mode {
	case deconv.ConvLinear:
		var padded *grid.Image
		switch psf.Side {
		case 2 * side:
			padded = psf
		case side:
			padded = padToDouble(psf)
		default:
			return nil, fmt.Errorf("%w: psf side %d, image side %d", deconv.ErrShapeMismatch, psf.Side, side)
		}
		p := c.cache.get(2 * side)
		return &spectrum{side: side, size: 2 * side, mode: mode, data: p.rfft2(padded)}, nil

	case deconv.ConvCircular:
		var sub *grid.Image
		switch psf.Side {
		case side:
			sub = psf
		case 2 * side:
			sub = psf.Central(side)
		default:
			return nil, fmt.Errorf("%w: psf side %d, image side %d", deconv.ErrShapeMismatch, psf.Side, side)
		}
		p := c.cache.get(side)
		return &spectrum{side: side, size: side, mode: mode, data: p.rfft2(sub)}, nil
	}
	return nil, deconv.NewParamError("conv_mode", "must be linear or circular")
}

// Convolve returns img ⊛ PSF. Linear mode pads to double size, multiplies
// half-spectra, inverts, recentres and extracts the central quadrant;
// circular mode multiplies at native size and recentres, so a δ-function PSF
// at the grid centre acts as the identity in both modes.
func (c *Convolver) Convolve(img *grid.Image, psf ports.PSFSpectrum) (*grid.Image, error) {
	s, ok := psf.(*spectrum)
	if !ok {
		return nil, fmt.Errorf("%w: foreign spectrum type %T", deconv.ErrShapeMismatch, psf)
	}
	if img.Side != s.side {
		return nil, fmt.Errorf("%w: image side %d, spectrum expects %d", deconv.ErrShapeMismatch, img.Side, s.side)
	}

	p := c.cache.get(s.size)

	in := img
	if s.mode == deconv.ConvLinear {
		in = padToDouble(img)
	}

	spec := p.rfft2(in)
	for i := range spec {
		spec[i] *= s.data[i]
	}
	out := fftShift(p.irfft2(spec))

	if s.mode == deconv.ConvLinear {
		out = out.Central(img.Side)
	}
	return out, nil
}
