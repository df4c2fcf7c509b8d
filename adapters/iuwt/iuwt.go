// Package iuwt implements the isotropic undecimated wavelet transform with
// the B3-spline scaling function, computed à-trous: the kernel (1,4,6,4,1)/16
// is dilated at scale i by inserting 2^i - 1 zeros between taps, so no
// subsampling takes place and every detail plane keeps the full grid size.
package iuwt

import (
	"context"

	"gosane/domain/grid"
)

// reflect mirrors an out-of-range index back into [0, n) without duplicating
// the edge sample.
func reflect(idx, n int) int {
	if idx < 0 {
		idx = -idx
	}
	if idx >= n {
		idx = 2*(n-1) - idx
	}
	return idx
}

// smoothRow applies the dilated B3-spline kernel along one row. Taps sit at
// offsets 0, ±s and ±2s with weights 6/16, 4/16 and 1/16.
func smoothRow(dst, src []float64, s int) {
	n := len(src)
	for j := 0; j < n; j++ {
		v := 6 * src[j]
		v += 4 * (src[reflect(j-s, n)] + src[reflect(j+s, n)])
		v += src[reflect(j-2*s, n)] + src[reflect(j+2*s, n)]
		dst[j] = v / 16
	}
}

// smoothCols applies the kernel down every column of src, writing into dst.
func smoothCols(dst, src *grid.Image, s int, lo, hi int) {
	n := src.Side
	colIn := make([]float64, n)
	colOut := make([]float64, n)
	for c := lo; c < hi; c++ {
		for r := 0; r < n; r++ {
			colIn[r] = src.At(r, c)
		}
		smoothRow(colOut, colIn, s)
		for r := 0; r < n; r++ {
			dst.Set(r, c, colOut[r])
		}
	}
}

// smooth performs one separable à-trous smoothing step at dilation s.
func smooth(src *grid.Image, s int) *grid.Image {
	n := src.Side
	tmp := grid.New(n)
	for r := 0; r < n; r++ {
		smoothRow(tmp.Row(r), src.Row(r), s)
	}
	out := grid.New(n)
	smoothCols(out, tmp, s, 0, n)
	return out
}

// Serial computes the transform sequentially on the calling goroutine.
type Serial struct{}

// NewSerial creates a serial decomposer.
func NewSerial() *Serial { return &Serial{} }

// Decompose analyzes img into scaleCount detail scales, dropping the first
// scaleAdjust planes from the output. The smoothing recursion still passes
// through the dropped scales.
func (d *Serial) Decompose(ctx context.Context, img *grid.Image, scaleCount, scaleAdjust int) (*grid.Cube, error) {
	cube, _, err := decompose(ctx, img, scaleCount, scaleAdjust, smooth)
	return cube, err
}

// Recompose synthesizes an image as the sum of the emitted detail planes.
// For the B3-spline à-trous transform the detail planes telescope, so the
// sum plus the final smoothed plane reproduces the input exactly; scales
// below scaleAdjust contribute nothing here.
func (d *Serial) Recompose(ctx context.Context, cube *grid.Cube, scaleAdjust int) (*grid.Image, error) {
	return recompose(ctx, cube)
}

// DecomposeSmooth is Decompose keeping the residual smoothed plane c_S. The
// sum of the detail planes and c_S reconstructs the input to float rounding.
func DecomposeSmooth(ctx context.Context, img *grid.Image, scaleCount int) (*grid.Cube, *grid.Image, error) {
	return decompose(ctx, img, scaleCount, 0, smooth)
}

type smoothFunc func(src *grid.Image, s int) *grid.Image

func decompose(ctx context.Context, img *grid.Image, scaleCount, scaleAdjust int, step smoothFunc) (*grid.Cube, *grid.Image, error) {
	cube := grid.NewCube(scaleCount-scaleAdjust, img.Side)
	c0 := img
	for i := 0; i < scaleCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		c1 := step(c0, 1<<i)
		if i >= scaleAdjust {
			w := cube.Plane(i - scaleAdjust)
			for k := range w {
				w[k] = c0.Data[k] - c1.Data[k]
			}
		}
		c0 = c1
	}
	return cube, c0, nil
}

func recompose(ctx context.Context, cube *grid.Cube) (*grid.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := grid.New(cube.Side)
	for i := 0; i < cube.Scales; i++ {
		plane := cube.Plane(i)
		for k := range plane {
			out.Data[k] += plane[k]
		}
	}
	return out, nil
}
