package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosane/domain/deconv"
)

func TestRunRepositoryLifecycle(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	run := deconv.NewRun("dirty.fits", "psf.fits", deconv.DefaultParams())
	require.NoError(t, repo.Create(ctx, run))

	require.NoError(t, repo.AppendIteration(ctx, run.ID, deconv.IterationMetrics{MajorIter: 1, ResidualStd: 0.5}))
	require.NoError(t, repo.AppendIteration(ctx, run.ID, deconv.IterationMetrics{MajorIter: 2, ResidualStd: 0.4}))
	require.NoError(t, repo.UpdateStatus(ctx, run.ID, deconv.StatusCompleted, true, ""))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, deconv.StatusCompleted, got.Status)
	assert.True(t, got.Complete)
	assert.NotNil(t, got.FinishedAt)
	require.Len(t, got.Iterations, 2)
	assert.Equal(t, 0.4, got.Iterations[1].ResidualStd)

	// Mutating the returned copy does not leak back.
	got.Iterations[0].ResidualStd = 99
	again, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, again.Iterations[0].ResidualStd)
}

func TestRunRepositoryNotFound(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, deconv.ErrRunNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", deconv.StatusFailed, false, "x"), deconv.ErrRunNotFound)
	assert.ErrorIs(t, repo.AppendIteration(ctx, "missing", deconv.IterationMetrics{}), deconv.ErrRunNotFound)
}

func TestRunRepositoryListNewestFirst(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	first := deconv.NewRun("a", "p", deconv.DefaultParams())
	second := deconv.NewRun("b", "p", deconv.DefaultParams())
	second.StartedAt = first.StartedAt.Add(1)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	runs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
}
