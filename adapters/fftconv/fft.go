package fftconv

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"gosane/domain/grid"
)

// plan bundles the row and column transforms for one grid side. Gonum's
// transforms carry scratch state, so a plan is locked for the duration of
// each 2D transform.
type plan struct {
	mu    sync.Mutex
	real  *fourier.FFT
	cmplx *fourier.CmplxFFT
	side  int
}

// planCache reuses fourier plans across convolutions. Plans hold scratch
// buffers, so each is guarded for exclusive use.
type planCache struct {
	mu    sync.Mutex
	plans map[int]*plan
}

func newPlanCache() *planCache {
	return &planCache{plans: make(map[int]*plan)}
}

func (c *planCache) get(side int) *plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.plans[side]
	if !ok {
		p = &plan{
			real:  fourier.NewFFT(side),
			cmplx: fourier.NewCmplxFFT(side),
			side:  side,
		}
		c.plans[side] = p
	}
	return p
}

// rfft2 computes the real-to-complex 2D transform of a side×side image:
// a real FFT along rows followed by a complex FFT down the retained
// columns. The result has side rows of side/2+1 coefficients.
func (p *plan) rfft2(img *grid.Image) []complex128 {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.side
	half := n/2 + 1
	out := make([]complex128, n*half)

	for r := 0; r < n; r++ {
		p.real.Coefficients(out[r*half:(r+1)*half], img.Row(r))
	}

	col := make([]complex128, n)
	tmp := make([]complex128, n)
	for c := 0; c < half; c++ {
		for r := 0; r < n; r++ {
			col[r] = out[r*half+c]
		}
		p.cmplx.Coefficients(tmp, col)
		for r := 0; r < n; r++ {
			out[r*half+c] = tmp[r]
		}
	}
	return out
}

// irfft2 inverts rfft2. Gonum's Sequence methods return the unnormalized
// inverse, so the result is scaled by 1/side² here.
func (p *plan) irfft2(spec []complex128) *grid.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.side
	half := n/2 + 1
	work := make([]complex128, len(spec))
	copy(work, spec)

	col := make([]complex128, n)
	tmp := make([]complex128, n)
	for c := 0; c < half; c++ {
		for r := 0; r < n; r++ {
			col[r] = work[r*half+c]
		}
		p.cmplx.Sequence(tmp, col)
		for r := 0; r < n; r++ {
			work[r*half+c] = tmp[r]
		}
	}

	out := grid.New(n)
	scale := 1 / float64(n*n)
	for r := 0; r < n; r++ {
		p.real.Sequence(out.Row(r), work[r*half:(r+1)*half])
		row := out.Row(r)
		for c := range row {
			row[c] *= scale
		}
	}
	return out
}

// fftShift swaps the quadrants of an even-sided image so that the origin
// moves to the centre.
func fftShift(img *grid.Image) *grid.Image {
	n := img.Side
	h := n / 2
	out := grid.New(n)
	for r := 0; r < n; r++ {
		src := img.Row(r)
		dst := out.Row((r + h) % n)
		for c := 0; c < n; c++ {
			dst[(c+h)%n] = src[c]
		}
	}
	return out
}

// padToDouble embeds img at the centre of a grid of twice the side. A PSF
// padded this way shares the layout of a natively double-size PSF.
func padToDouble(img *grid.Image) *grid.Image {
	n := img.Side
	out := grid.New(2 * n)
	off := n / 2
	for r := 0; r < n; r++ {
		copy(out.Row(r+off)[off:off+n], img.Row(r))
	}
	return out
}
