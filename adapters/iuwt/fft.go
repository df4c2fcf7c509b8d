package iuwt

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"gosane/domain/grid"
)

// FFT offloads each smoothing step to frequency-space convolution. Rows and
// columns are mirror-extended to period 2n-2 first, which makes the circular
// convolution coincide with the reflective boundary rule of the direct
// implementation, so all modes agree to float rounding.
type FFT struct {
	mu      sync.Mutex
	plans   map[int]*fourier.FFT
	kernels map[[2]int][]complex128
}

// NewFFT creates an FFT-backed decomposer.
func NewFFT() *FFT {
	return &FFT{
		plans:   make(map[int]*fourier.FFT),
		kernels: make(map[[2]int][]complex128),
	}
}

func (d *FFT) plan(m int) *fourier.FFT {
	p, ok := d.plans[m]
	if !ok {
		p = fourier.NewFFT(m)
		d.plans[m] = p
	}
	return p
}

// kernel returns the half-spectrum of the dilated B3-spline kernel on a ring
// of circumference m.
func (d *FFT) kernel(m, s int) []complex128 {
	key := [2]int{m, s}
	if k, ok := d.kernels[key]; ok {
		return k
	}
	taps := make([]float64, m)
	taps[0] += 6.0 / 16
	taps[s%m] += 4.0 / 16
	taps[(m-s%m)%m] += 4.0 / 16
	taps[(2*s)%m] += 1.0 / 16
	taps[(m-(2*s)%m)%m] += 1.0 / 16

	spec := make([]complex128, m/2+1)
	d.plan(m).Coefficients(spec, taps)
	d.kernels[key] = spec
	return spec
}

// smoothLine convolves one mirror-extended line with the dilated kernel.
func (d *FFT) smoothLine(dst, src []float64, s int) {
	n := len(src)
	m := 2*n - 2

	ext := make([]float64, m)
	copy(ext, src)
	for j := 1; j < n-1; j++ {
		ext[n-1+j] = src[n-1-j]
	}

	p := d.plan(m)
	kernel := d.kernel(m, s)
	spec := make([]complex128, m/2+1)
	p.Coefficients(spec, ext)
	for i := range spec {
		spec[i] *= kernel[i]
	}
	out := make([]float64, m)
	p.Sequence(out, spec)
	scale := 1 / float64(m)
	for j := 0; j < n; j++ {
		dst[j] = out[j] * scale
	}
}

func (d *FFT) smooth(src *grid.Image, s int) *grid.Image {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := src.Side
	tmp := grid.New(n)
	for r := 0; r < n; r++ {
		d.smoothLine(tmp.Row(r), src.Row(r), s)
	}

	out := grid.New(n)
	colIn := make([]float64, n)
	colOut := make([]float64, n)
	for c := 0; c < n; c++ {
		for r := 0; r < n; r++ {
			colIn[r] = tmp.At(r, c)
		}
		d.smoothLine(colOut, colIn, s)
		for r := 0; r < n; r++ {
			out.Set(r, c, colOut[r])
		}
	}
	return out
}

// Decompose analyzes img into scaleCount detail scales, dropping the first
// scaleAdjust planes from the output.
func (d *FFT) Decompose(ctx context.Context, img *grid.Image, scaleCount, scaleAdjust int) (*grid.Cube, error) {
	cube, _, err := decompose(ctx, img, scaleCount, scaleAdjust, d.smooth)
	return cube, err
}

// Recompose synthesizes an image as the sum of the emitted detail planes.
func (d *FFT) Recompose(ctx context.Context, cube *grid.Cube, scaleAdjust int) (*grid.Image, error) {
	return recompose(ctx, cube)
}
