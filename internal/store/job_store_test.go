package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/store"
	"github.com/nhle/chattask/tests/testutil"
)

func newJob(key, id string, runAt time.Time) *model.Job {
	return &model.Job{Key: key, ID: id, Payload: `{"k":"` + key + `"}`, RunAt: runAt, MaxAttempts: 3}
}

func TestReplaceJobKeepsOnePerKey(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	now := time.Now()

	require.NoError(t, s.ReplaceJob(ctx, newJob("reminder:1", "a", now.Add(time.Hour))))
	require.NoError(t, s.ReplaceJob(ctx, newJob("reminder:1", "b", now.Add(-time.Second))))

	job, err := s.GetJobByKey(ctx, "reminder:1")
	require.NoError(t, err)
	assert.Equal(t, "b", job.ID)
	assert.Equal(t, model.JobPending, job.State)

	stats, err := s.JobStats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, model.JobStats{Waiting: 1}, stats)
}

func TestClaimCompleteFail(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	now := time.Now()

	require.NoError(t, s.ReplaceJob(ctx, newJob("a", "ja", now.Add(-2*time.Second))))
	require.NoError(t, s.ReplaceJob(ctx, newJob("b", "jb", now.Add(-time.Second))))
	require.NoError(t, s.ReplaceJob(ctx, newJob("c", "jc", now.Add(time.Hour))))

	claimed, err := s.ClaimDueJobs(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "ja", claimed[0].ID)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Equal(t, model.JobActive, claimed[0].State)

	again, err := s.ClaimDueJobs(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, s.CompleteJob(ctx, "ja"))
	retryAt := now.Add(time.Minute)
	require.NoError(t, s.FailJob(ctx, "jb", "timeout", &retryAt))

	stats, err := s.JobStats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, model.JobStats{Completed: 1, Delayed: 2}, stats)

	b, err := s.GetJobByKey(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "timeout", *b.LastError)

	claimed, err = s.ClaimDueJobs(ctx, retryAt, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)
	require.NoError(t, s.FailJob(ctx, "jb", "timeout again", nil))

	stats, err = s.JobStats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, model.JobStats{Completed: 1, Failed: 1, Delayed: 1}, stats)

	pruned, err := s.PruneJobs(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)
}

func TestDeletePendingJobAndReset(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	now := time.Now()

	require.NoError(t, s.ReplaceJob(ctx, newJob("a", "ja", now.Add(time.Hour))))
	ok, err := s.DeletePendingJob(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DeletePendingJob(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.GetJobByKey(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.ReplaceJob(ctx, newJob("b", "jb", now.Add(-time.Second))))
	_, err = s.ClaimDueJobs(ctx, now, 1)
	require.NoError(t, err)

	// Running jobs cannot be deleted.
	ok, err = s.DeletePendingJob(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.ResetActiveJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	b, err := s.GetJobByKey(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, b.State)
}
