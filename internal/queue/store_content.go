package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postflow/internal/lifecycle"
)

// GetContent fetches an item by id, returning nil when it does not exist.
func (s *Store) GetContent(ctx context.Context, id string) (*Item, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content %s: %w", id, err)
	}
	return item, nil
}

// ListContent returns items in creation order, optionally filtered by state.
func (s *Store) ListContent(ctx context.Context, states ...lifecycle.State) ([]*Item, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + itemColumns + ` FROM content_items`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, string(state))
		}
	}
	query += ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return collectItems(rows)
}

// DueScheduled returns scheduled items whose schedule time has passed and
// which have no pending cancellation, oldest schedule first.
func (s *Store) DueScheduled(ctx context.Context, now time.Time) ([]*Item, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM content_items
        WHERE state = ? AND schedule_time IS NOT NULL AND schedule_time <= ? AND cancel_requested = 0
        ORDER BY schedule_time, id`,
		string(lifecycle.StateScheduled), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("due scheduled content: %w", err)
	}
	return collectItems(rows)
}

// NextScheduleTime returns the earliest pending schedule time.
func (s *Store) NextScheduleTime(ctx context.Context) (time.Time, bool, error) {
	ctx = ensureContext(ctx)
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(schedule_time) FROM content_items WHERE state = ? AND cancel_requested = 0`,
		string(lifecycle.StateScheduled),
	).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("next schedule time: %w", err)
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	return parseTime(raw.String), true, nil
}

// Transitions returns the recorded state history of an item.
func (s *Store) Transitions(ctx context.Context, contentID string) ([]Transition, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content_id, from_state, to_state, event, job_id, created_at
        FROM state_transitions WHERE content_id = ? ORDER BY id`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions for content %s: %w", contentID, err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr      Transition
			from    string
			to      string
			event   string
			jobID   sql.NullInt64
			created string
		)
		if err := rows.Scan(&tr.ID, &tr.ContentID, &from, &to, &event, &jobID, &created); err != nil {
			return nil, err
		}
		tr.From = lifecycle.State(from)
		tr.To = lifecycle.State(to)
		tr.Event = lifecycle.Event(event)
		tr.JobID = jobID.Int64
		tr.CreatedAt = parseTime(created)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Decisions returns the review decisions of an item, oldest first.
func (s *Store) Decisions(ctx context.Context, contentID string) ([]Decision, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content_id, reviewer_id, decision, edits_json, schedule_time, created_at
        FROM approval_decisions WHERE content_id = ? ORDER BY id`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions for content %s: %w", contentID, err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d        Decision
			kind     string
			edits    sql.NullString
			schedule sql.NullString
			created  string
		)
		if err := rows.Scan(&d.ID, &d.ContentID, &d.ReviewerID, &kind, &edits, &schedule, &created); err != nil {
			return nil, err
		}
		d.Decision = DecisionKind(kind)
		if edits.Valid {
			var decoded Edits
			if err := decodeJSON(edits, &decoded); err != nil {
				return nil, fmt.Errorf("decode edits for decision %d: %w", d.ID, err)
			}
			d.Edits = &decoded
		}
		d.ScheduleTime = parseNullTime(schedule)
		d.CreatedAt = parseTime(created)
		out = append(out, d)
	}
	return out, rows.Err()
}
