package ports

import (
	"gosane/domain/deconv"
	"gosane/domain/grid"
)

// PSFSpectrum is a precomputed half-spectrum of the point-spread function.
// It is read-only after construction and freely shareable between goroutines.
type PSFSpectrum interface {
	// Side returns the grid side the spectrum convolves against.
	Side() int
	// Mode returns the convolution semantics the spectrum was built for.
	Mode() deconv.ConvMode
}

// Convolver performs 2D convolution against a precomputed PSF spectrum.
type Convolver interface {
	// Precompute transforms the PSF once for repeated convolution against
	// images of the given side. A PSF supplied at double the target side is
	// used directly in linear mode.
	Precompute(psf *grid.Image, mode deconv.ConvMode, side int) (PSFSpectrum, error)

	// Convolve returns image ⊛ PSF at the image's own size. The image side
	// must match the spectrum's.
	Convolve(img *grid.Image, spectrum PSFSpectrum) (*grid.Image, error)
}
