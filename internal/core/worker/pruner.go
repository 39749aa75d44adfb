package worker

import (
	"context"
	"log/slog"
	"time"
)

// HealthPruner deletes health records checked before a cutoff.
type HealthPruner interface {
	DeleteHealthOlderThan(ctx context.Context, before time.Time) (int, error)
}

// Pruner deletes old health records based on the retention policy.
type Pruner struct {
	retention time.Duration
	repo      HealthPruner
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. A zero retention disables pruning.
func NewPruner(retention time.Duration, repo HealthPruner) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes records older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int {
	threshold := p.now().Add(-p.retention)

	n, err := p.repo.DeleteHealthOlderThan(ctx, threshold)
	if err != nil {
		slog.Error("[Pruner] failed to prune health records", "before", threshold, "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("[Pruner] pruned health records", "count", n, "before", threshold)
	}
	return n
}
