package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/chattask/internal/model"
)

// ReplaceJob deletes any job stored under job.Key and inserts job in the
// same transaction.
func (s *SQLStore) ReplaceJob(ctx context.Context, job *model.Job) error {
	now := s.now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.State == "" {
		job.State = model.JobPending
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM jobs WHERE job_key = ?"), job.Key); err != nil {
		return fmt.Errorf("clearing job %s: %w", job.Key, err)
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO jobs (
			job_key, id, payload, state, run_at,
			attempts, max_attempts, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.Key, job.ID, job.Payload, job.State, job.RunAt.UTC(),
		job.Attempts, job.MaxAttempts, job.LastError, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.Key, err)
	}

	return tx.Commit()
}

// DeletePendingJob removes a job that has not started running.
func (s *SQLStore) DeletePendingJob(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.q(
		"DELETE FROM jobs WHERE job_key = ? AND state = ?"), key, model.JobPending)
	if err != nil {
		return false, fmt.Errorf("deleting job %s: %w", key, err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetJobByKey retrieves the job stored under key.
func (s *SQLStore) GetJobByKey(ctx context.Context, key string) (*model.Job, error) {
	var job model.Job
	if err := s.db.GetContext(ctx, &job, s.q("SELECT * FROM jobs WHERE job_key = ?"), key); err != nil {
		return nil, notFound(err, "getting job "+key)
	}
	return &job, nil
}

// ClaimDueJobs selects due pending jobs and moves each to active with a
// compare-and-set, so concurrent claimers never share a job.
func (s *SQLStore) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]model.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var due []model.Job
	err = tx.SelectContext(ctx, &due, s.q(fmt.Sprintf(`
		SELECT * FROM jobs
		WHERE state = ? AND run_at <= ?
		ORDER BY run_at ASC, id ASC
		LIMIT %d`, limit)),
		model.JobPending, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("selecting due jobs: %w", err)
	}

	updated := s.now().UTC()
	claimed := make([]model.Job, 0, len(due))
	for _, job := range due {
		result, err := tx.ExecContext(ctx, s.q(`
			UPDATE jobs SET state = ?, attempts = attempts + 1, updated_at = ?
			WHERE id = ? AND state = ?`),
			model.JobActive, updated, job.ID, model.JobPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claiming job %s: %w", job.Key, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			continue
		}
		job.State = model.JobActive
		job.Attempts++
		job.UpdatedAt = updated
		claimed = append(claimed, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claims: %w", err)
	}
	return claimed, nil
}

// CompleteJob marks an active job completed. A job replaced while running
// is already gone and is ignored.
func (s *SQLStore) CompleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(
		"UPDATE jobs SET state = ?, last_error = NULL, updated_at = ? WHERE id = ? AND state = ?"),
		model.JobCompleted, s.now().UTC(), id, model.JobActive,
	)
	if err != nil {
		return fmt.Errorf("completing job %s: %w", id, err)
	}
	return nil
}

// FailJob records a failed attempt, rescheduling it when retryAt is set.
func (s *SQLStore) FailJob(ctx context.Context, id, errMsg string, retryAt *time.Time) error {
	now := s.now().UTC()
	var err error
	if retryAt != nil {
		_, err = s.db.ExecContext(ctx, s.q(
			"UPDATE jobs SET state = ?, run_at = ?, last_error = ?, updated_at = ? WHERE id = ? AND state = ?"),
			model.JobPending, retryAt.UTC(), errMsg, now, id, model.JobActive,
		)
	} else {
		_, err = s.db.ExecContext(ctx, s.q(
			"UPDATE jobs SET state = ?, last_error = ?, updated_at = ? WHERE id = ? AND state = ?"),
			model.JobFailed, errMsg, now, id, model.JobActive,
		)
	}
	if err != nil {
		return fmt.Errorf("failing job %s: %w", id, err)
	}
	return nil
}

// ResetActiveJobs returns every active job to pending.
func (s *SQLStore) ResetActiveJobs(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, s.q(
		"UPDATE jobs SET state = ?, updated_at = ? WHERE state = ?"),
		model.JobPending, s.now().UTC(), model.JobActive,
	)
	if err != nil {
		return 0, fmt.Errorf("resetting active jobs: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// PruneJobs deletes finished jobs last touched before cutoff.
func (s *SQLStore) PruneJobs(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, s.q(
		"DELETE FROM jobs WHERE state IN (?, ?) AND updated_at < ?"),
		model.JobCompleted, model.JobFailed, before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning jobs: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// JobStats counts jobs by state relative to now.
func (s *SQLStore) JobStats(ctx context.Context, now time.Time) (model.JobStats, error) {
	var stats model.JobStats
	err := s.db.GetContext(ctx, &stats, s.q(`
		SELECT
			COALESCE(SUM(CASE WHEN state = 'pending' AND run_at <= ? THEN 1 ELSE 0 END), 0) AS waiting,
			COALESCE(SUM(CASE WHEN state = 'active' THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
			COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(CASE WHEN state = 'pending' AND run_at > ? THEN 1 ELSE 0 END), 0) AS delayed
		FROM jobs`),
		now.UTC(), now.UTC(),
	)
	if err != nil {
		return model.JobStats{}, fmt.Errorf("counting jobs: %w", err)
	}
	return stats, nil
}
