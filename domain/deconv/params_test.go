package deconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	p, err := DefaultParams().Normalize(256)
	require.NoError(t, err)

	assert.Equal(t, 256, p.Subregion)
	assert.Equal(t, 7, p.ScaleCount)
	assert.Equal(t, 4.0, p.SigmaLevel)
	assert.Equal(t, 0.1, p.LoopGain)
	assert.Equal(t, 0.75, p.Tolerance)
	assert.Equal(t, 1e-6, p.Accuracy)
	assert.Equal(t, 100, p.MajorLoopMiter)
	assert.Equal(t, 30, p.MinorLoopMiter)
	assert.Equal(t, ConvLinear, p.ConvMode)
}

func TestNormalizeCapsScaleCount(t *testing.T) {
	p := DefaultParams()
	p.ScaleCount = 99
	p, err := p.Normalize(128)
	require.NoError(t, err)
	assert.Equal(t, 6, p.ScaleCount)
}

func TestNormalizeRejectsBadShapes(t *testing.T) {
	_, err := DefaultParams().Normalize(255)
	assert.ErrorIs(t, err, ErrUnevenImage)

	_, err = DefaultParams().Normalize(96)
	assert.ErrorIs(t, err, ErrNotPowerOfTwo)
}

func TestNormalizeRejectsBadParams(t *testing.T) {
	p := DefaultParams()
	p.Tolerance = 1.5
	_, err := p.Normalize(64)
	assert.ErrorIs(t, err, ErrInvalidParams)

	p = DefaultParams()
	p.LoopGain = 0
	_, err = p.Normalize(64)
	assert.ErrorIs(t, err, ErrInvalidParams)

	p = DefaultParams()
	p.ConvMode = "fancy"
	_, err = p.Normalize(64)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	for _, s := range []Status{StatusCompleted, StatusStalled, StatusNoSignal, StatusIterCap, StatusFailed} {
		assert.True(t, s.Terminal(), string(s))
	}
}
