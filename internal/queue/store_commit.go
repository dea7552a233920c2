package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"postflow/internal/lifecycle"
	"postflow/internal/platform"
)

// JobUpdate moves one job from an expected status to a new one.
type JobUpdate struct {
	ID           int64
	ExpectStatus JobStatus
	Status       JobStatus
	LastError    *ErrorRecord
	// NotBefore reschedules the job when set (retry backoff).
	NotBefore *time.Time
}

// NewJob describes a job to enqueue.
type NewJob struct {
	Stage     lifecycle.Stage
	Platform  platform.Name
	Round     int
	NotBefore time.Time
}

// Mutation is everything one orchestrator decision writes. It is applied
// atomically by Commit.
type Mutation struct {
	// Create inserts Item instead of updating it.
	Create bool
	Item   *Item
	// CancelActiveJobs cancels every pending or running job of the item.
	CancelActiveJobs bool
	JobUpdates       []JobUpdate
	NewJobs          []NewJob
	Transitions      []Transition
	Decision         *Decision
}

// Commit applies a mutation in one transaction. The item write is guarded by
// its version token and every job update by its expected status; either
// mismatch aborts with ErrConcurrentModification. Enqueueing a second active
// job for the same (content, stage, platform) aborts with ErrDuplicateJob.
// On success Item.Version and Item.UpdatedAt reflect the stored row.
func (s *Store) Commit(ctx context.Context, m Mutation) ([]*Job, error) {
	if m.Item == nil {
		return nil, fmt.Errorf("commit: item is required")
	}
	ctx = ensureContext(ctx)
	now := s.Now()
	item := m.Item

	var created []*Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created = created[:0]
		if err := writeItem(ctx, tx, item, m.Create, now); err != nil {
			return err
		}
		if m.CancelActiveJobs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE stage_jobs
                SET status = ?, heartbeat_at = NULL, finished_at = ?, updated_at = ?
                WHERE content_id = ? AND status IN (?, ?)`,
				string(JobCancelled), formatTime(now), formatTime(now), item.ID, string(JobPending), string(JobRunning),
			); err != nil {
				return fmt.Errorf("cancel jobs for content %s: %w", item.ID, err)
			}
		}
		for _, update := range m.JobUpdates {
			if err := updateJob(ctx, tx, update, now); err != nil {
				return err
			}
		}
		for _, spec := range m.NewJobs {
			job, err := insertJob(ctx, tx, item.ID, spec, now)
			if err != nil {
				return err
			}
			created = append(created, job)
		}
		for _, tr := range m.Transitions {
			var jobID any
			if tr.JobID > 0 {
				jobID = tr.JobID
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO state_transitions (content_id, from_state, to_state, event, job_id, created_at)
                VALUES (?, ?, ?, ?, ?, ?)`,
				item.ID, string(tr.From), string(tr.To), string(tr.Event), jobID, formatTime(now),
			); err != nil {
				return fmt.Errorf("record transition for content %s: %w", item.ID, err)
			}
		}
		if m.Decision != nil {
			if err := insertDecision(ctx, tx, item.ID, m.Decision, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.Create {
		item.Version = 1
		item.CreatedAt = now
	} else {
		item.Version++
	}
	item.UpdatedAt = now
	if m.Decision != nil {
		m.Decision.ContentID = item.ID
		m.Decision.CreatedAt = now
	}
	return created, nil
}

func writeItem(ctx context.Context, tx *sql.Tx, item *Item, create bool, now time.Time) error {
	staged := *item
	staged.UpdatedAt = now
	if create {
		staged.Version = 1
		staged.CreatedAt = now
	} else {
		staged.Version = item.Version + 1
	}
	values, err := itemValues(&staged)
	if err != nil {
		return fmt.Errorf("encode content %s: %w", item.ID, err)
	}

	if create {
		args := append([]any{item.ID}, values...)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO content_items (`+itemColumns+`) VALUES (`+makePlaceholders(len(args))+`)`,
			args...,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert content %s: already exists: %w", item.ID, ErrConcurrentModification)
			}
			return fmt.Errorf("insert content %s: %w", item.ID, err)
		}
		return nil
	}

	args := append(values, item.ID, item.Version)
	res, err := tx.ExecContext(ctx,
		`UPDATE content_items SET
            owner_id = ?, text = ?, media_json = ?, hashtags_json = ?, target_platforms_json = ?,
            state = ?, moderation_json = ?, analysis_json = ?, renders_json = ?, render_round = ?,
            schedule_time = ?, publish_results_json = ?, version = ?, origin = ?, callback_url = ?,
            analyze_with_ai = ?, prompt = ?, cancel_requested = ?, cancelled_at = ?,
            last_error_kind = ?, last_error_message = ?, created_at = ?, updated_at = ?
        WHERE id = ? AND version = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update content %s: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update content %s: %w", item.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update content %s at version %d: %w", item.ID, item.Version, ErrConcurrentModification)
	}
	return nil
}

func updateJob(ctx context.Context, tx *sql.Tx, update JobUpdate, now time.Time) error {
	errKind, errMessage := errorKindValue(update.LastError)
	var finished any
	if !update.Status.IsActive() {
		finished = formatTime(now)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE stage_jobs SET
            status = ?,
            last_error_kind = ?,
            last_error_message = ?,
            not_before = COALESCE(?, not_before),
            heartbeat_at = NULL,
            finished_at = ?,
            updated_at = ?
        WHERE id = ? AND status = ?`,
		string(update.Status), errKind, errMessage, nullableTime(update.NotBefore), finished, formatTime(now),
		update.ID, string(update.ExpectStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update job %d: %w", update.ID, ErrDuplicateJob)
		}
		return fmt.Errorf("update job %d: %w", update.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %d: %w", update.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("job %d is no longer %s: %w", update.ID, update.ExpectStatus, ErrConcurrentModification)
	}
	return nil
}

func insertJob(ctx context.Context, tx *sql.Tx, contentID string, spec NewJob, now time.Time) (*Job, error) {
	notBefore := spec.NotBefore
	if notBefore.IsZero() {
		notBefore = now
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO stage_jobs (content_id, stage, platform, round, status, attempt_count, not_before, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		contentID, string(spec.Stage), string(spec.Platform), spec.Round, string(JobPending),
		formatTime(notBefore), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("enqueue %s for content %s: %w", jobLabel(spec.Stage, spec.Platform), contentID, ErrDuplicateJob)
		}
		return nil, fmt.Errorf("enqueue %s for content %s: %w", jobLabel(spec.Stage, spec.Platform), contentID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: last insert id: %w", spec.Stage, err)
	}
	return &Job{
		ID:        id,
		ContentID: contentID,
		Stage:     spec.Stage,
		Platform:  spec.Platform,
		Round:     spec.Round,
		Status:    JobPending,
		NotBefore: notBefore.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func insertDecision(ctx context.Context, tx *sql.Tx, contentID string, decision *Decision, now time.Time) error {
	edits, err := encodeOptional(decision.Edits)
	if err != nil {
		return fmt.Errorf("encode edits: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO approval_decisions (content_id, reviewer_id, decision, edits_json, schedule_time, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		contentID, decision.ReviewerID, string(decision.Decision), edits, nullableTime(decision.ScheduleTime), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("record decision for content %s: %w", contentID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		decision.ID = id
	}
	return nil
}

func jobLabel(stage lifecycle.Stage, name platform.Name) string {
	return Job{Stage: stage, Platform: name}.Label()
}
