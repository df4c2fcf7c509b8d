package iuwt

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"gosane/domain/grid"
	"gosane/internal/testkit"
)

func TestTightFrame(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		side := rapid.SampledFrom([]int{8, 16, 32}).Draw(t, "side")
		scales := rapid.IntRange(1, grid.MaxScaleCount(side)).Draw(t, "scales")
		seed := rapid.Int64().Draw(t, "seed")

		img := testkit.AddNoise(grid.New(side), 1, seed)

		details, smooth, err := DecomposeSmooth(context.Background(), img, scales)
		require.NoError(t, err)

		rec, err := NewSerial().Recompose(context.Background(), details, 0)
		require.NoError(t, err)
		for i := range rec.Data {
			rec.Data[i] += smooth.Data[i]
		}

		maxIn := 0.0
		for _, v := range img.Data {
			if a := math.Abs(v); a > maxIn {
				maxIn = a
			}
		}
		for i := range rec.Data {
			if math.Abs(rec.Data[i]-img.Data[i]) > 1e-5*maxIn {
				t.Fatalf("reconstruction error %g at %d exceeds 1e-5 of peak %g",
					rec.Data[i]-img.Data[i], i, maxIn)
			}
		}
	})
}

func TestDetailPlanesTelescope(t *testing.T) {
	// Each detail plane is the difference of consecutive smoothings, so two
	// decompositions at different depths agree on their shared planes.
	img := testkit.AddNoise(grid.New(32), 1, 5)
	ctx := context.Background()

	shallow, err := NewSerial().Decompose(ctx, img, 2, 0)
	require.NoError(t, err)
	deep, err := NewSerial().Decompose(ctx, img, 4, 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		assert.Equal(t, shallow.Plane(i), deep.Plane(i), "plane %d", i)
	}
}

func TestScaleAdjustDropsFinePlanes(t *testing.T) {
	img := testkit.AddNoise(grid.New(32), 1, 9)
	ctx := context.Background()

	full, err := NewSerial().Decompose(ctx, img, 4, 0)
	require.NoError(t, err)
	adjusted, err := NewSerial().Decompose(ctx, img, 4, 2)
	require.NoError(t, err)

	require.Equal(t, 2, adjusted.Scales)
	assert.Equal(t, full.Plane(2), adjusted.Plane(0))
	assert.Equal(t, full.Plane(3), adjusted.Plane(1))
}

func TestParallelMatchesSerial(t *testing.T) {
	img := testkit.AddNoise(grid.New(64), 1, 17)
	ctx := context.Background()

	ser, err := NewSerial().Decompose(ctx, img, 5, 0)
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 3, 8} {
		par, err := NewParallel(workers).Decompose(ctx, img, 5, 0)
		require.NoError(t, err)
		assert.Equal(t, ser.Data, par.Data, "workers=%d", workers)
	}
}

func TestFFTMatchesSerial(t *testing.T) {
	img := testkit.AddNoise(grid.New(64), 1, 23)
	ctx := context.Background()

	ser, err := NewSerial().Decompose(ctx, img, 5, 0)
	require.NoError(t, err)
	fft, err := NewFFT().Decompose(ctx, img, 5, 0)
	require.NoError(t, err)

	require.Equal(t, ser.Scales, fft.Scales)
	for i := range ser.Data {
		assert.InDelta(t, ser.Data[i], fft.Data[i], 1e-9, "index %d", i)
	}
}

func TestSmoothPreservesFlux(t *testing.T) {
	// The kernel is normalized, so smoothing a constant image is a no-op.
	img := grid.New(16)
	for i := range img.Data {
		img.Data[i] = 3.5
	}
	out := smooth(img, 2)
	for i := range out.Data {
		assert.InDelta(t, 3.5, out.Data[i], 1e-12)
	}
}

func TestDecomposeIsolatesScale(t *testing.T) {
	// A point source concentrates its energy in the fine planes; a broad
	// blob leaves the finest plane nearly empty relative to its peak.
	side := 64
	ctx := context.Background()

	point, err := NewSerial().Decompose(ctx, testkit.Delta(side, 32, 32, 1), 5, 0)
	require.NoError(t, err)
	blob, err := NewSerial().Decompose(ctx, testkit.GaussianBlob(side, 32, 32, 16, 1), 5, 0)
	require.NoError(t, err)

	pointFine := point.PlaneImage(0).Max()
	blobFine := blob.PlaneImage(0).Max()
	assert.Greater(t, pointFine, 10*blobFine)
}

func TestRecomposeIgnoresAdjustedScales(t *testing.T) {
	cube := grid.NewCube(2, 8)
	for i := range cube.Data {
		cube.Data[i] = 1
	}
	out, err := NewSerial().Recompose(context.Background(), cube, 3)
	require.NoError(t, err)
	for _, v := range out.Data {
		assert.Equal(t, 2.0, v)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSerial().Decompose(ctx, grid.New(16), 3, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
