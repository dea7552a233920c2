package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"postflow/internal/lifecycle"
)

// RunningJobs lists every job currently marked running.
func (s *Store) RunningJobs(ctx context.Context) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM stage_jobs WHERE status = ? ORDER BY id`,
		string(JobRunning),
	)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	return collectJobs(rows)
}

// StaleRunningJobs lists running jobs whose heartbeat is older than cutoff.
func (s *Store) StaleRunningJobs(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM stage_jobs
        WHERE status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)
        ORDER BY id`,
		string(JobRunning), formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return collectJobs(rows)
}

// Stats counts items per state and jobs per stage and status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{
		States: make(map[lifecycle.State]int),
		Jobs:   make(map[lifecycle.Stage]map[JobStatus]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM content_items GROUP BY state`)
	if err != nil {
		return stats, fmt.Errorf("content stats: %w", err)
	}
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.States[lifecycle.State(state)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT stage, status, COUNT(1) FROM stage_jobs GROUP BY stage, status`)
	if err != nil {
		return stats, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stage  string
			status string
			count  int
		)
		if err := rows.Scan(&stage, &status, &count); err != nil {
			return stats, err
		}
		byStatus, ok := stats.Jobs[lifecycle.Stage(stage)]
		if !ok {
			byStatus = make(map[JobStatus]int)
			stats.Jobs[lifecycle.Stage(stage)] = byStatus
		}
		byStatus[JobStatus(status)] = count
	}
	return stats, rows.Err()
}

// CheckHealth returns diagnostic information about the state database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("state database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat state database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("state database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping state database: %w", err)
	}
	version, err := s.readSchemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM content_items").Scan(&health.ContentItems); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count content items: %w", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
