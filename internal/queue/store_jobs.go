package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postflow/internal/lifecycle"
)

// ClaimNextJob atomically marks the oldest eligible pending job of a stage as
// running and returns it. It returns nil when nothing is eligible.
func (s *Store) ClaimNextJob(ctx context.Context, stage lifecycle.Stage, now time.Time) (*Job, error) {
	ctx = ensureContext(ctx)
	stamp := formatTime(now)
	var job *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE stage_jobs
            SET status = ?, attempt_count = attempt_count + 1, started_at = ?, heartbeat_at = ?, finished_at = NULL, updated_at = ?
            WHERE id = (
                SELECT id FROM stage_jobs
                WHERE stage = ? AND status = ? AND not_before <= ?
                ORDER BY id
                LIMIT 1
            ) AND status = ?
            RETURNING `+jobColumns,
			string(JobRunning), stamp, stamp, stamp,
			string(stage), string(JobPending), stamp,
			string(JobPending),
		)
		claimed, err := scanJob(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				job = nil
				return nil
			}
			return err
		}
		job = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s job: %w", stage, err)
	}
	return job, nil
}

// GetJob fetches a job by id, returning nil when it does not exist.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM stage_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// JobsForContent lists every job of an item in creation order.
func (s *Store) JobsForContent(ctx context.Context, contentID string) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM stage_jobs WHERE content_id = ? ORDER BY id`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for content %s: %w", contentID, err)
	}
	return collectJobs(rows)
}

// ActiveJobs lists pending and running jobs of an item.
func (s *Store) ActiveJobs(ctx context.Context, contentID string) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM stage_jobs WHERE content_id = ? AND status IN (?, ?) ORDER BY id`,
		contentID, string(JobPending), string(JobRunning),
	)
	if err != nil {
		return nil, fmt.Errorf("list active jobs for content %s: %w", contentID, err)
	}
	return collectJobs(rows)
}

// UpdateJobHeartbeat refreshes the heartbeat of running jobs.
func (s *Store) UpdateJobHeartbeat(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+3)
	args = append(args, formatTime(now), formatTime(now))
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(JobRunning))
	_, err := s.execWithRetry(ctx,
		`UPDATE stage_jobs SET heartbeat_at = ?, updated_at = ? WHERE id IN (`+makePlaceholders(len(ids))+`) AND status = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update job heartbeat: %w", err)
	}
	return nil
}

// UpdateJob applies one guarded job update without touching its item. It is
// used for retries and for discarding results the item no longer accepts.
func (s *Store) UpdateJob(ctx context.Context, update JobUpdate) error {
	ctx = ensureContext(ctx)
	now := s.Now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateJob(ctx, tx, update, now)
	})
}
