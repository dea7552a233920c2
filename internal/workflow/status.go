package workflow

import (
	"context"

	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	LastError    string
	Stats        queue.Stats
	Pools        []PoolStatus
	Capabilities []stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	pools := make([]PoolStatus, 0, len(m.pools))
	for _, stg := range lifecycle.AllStages() {
		if pool := m.pools[stg]; pool != nil {
			pools = append(pools, pool.Status())
		}
	}

	summary := StatusSummary{
		Running:      running,
		Stats:        stats,
		Pools:        pools,
		Capabilities: m.executor.Capabilities().Health(ctx),
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}
