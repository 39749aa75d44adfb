package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/storage"
	"github.com/vietddude/rpcmon/internal/monitoring/sweeper"
)

// reportTTL rate limits store queries from frequent health polls.
const reportTTL = 10 * time.Second

// Store is the read side of persistence the monitor needs.
type Store interface {
	storage.ProviderRepository
	storage.HealthRepository
	storage.AlertRepository
}

// SweepInfo reports the last finished sweep.
type SweepInfo interface {
	LastSweep() (sweeper.Summary, time.Time)
}

// Monitor aggregates provider status from the store.
type Monitor struct {
	store      Store
	sweeps     SweepInfo
	lastCheck  time.Time
	lastReport *HealthReport
	lastGen    uint64
	gen        atomic.Uint64 // bumped on every new record
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. sweeps may be nil.
func NewMonitor(store Store, sweeps SweepInfo) *Monitor {
	return &Monitor{store: store, sweeps: sweeps}
}

// SetSweepInfo attaches the sweep source after construction.
func (m *Monitor) SetSweepInfo(sweeps SweepInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps = sweeps
}

// CheckHealth builds the fleet report, reusing a recent one when available.
func (m *Monitor) CheckHealth(ctx context.Context) (*HealthReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gen := m.gen.Load()
	if m.lastReport != nil && m.lastGen == gen && time.Since(m.lastCheck) < reportTTL {
		return m.lastReport, nil
	}

	providers, err := m.store.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := m.store.ListUnresolvedAlerts(ctx)
	if err != nil {
		return nil, err
	}
	open := make(map[string]*domain.Alert, len(alerts))
	for _, a := range alerts {
		if a.Severity != domain.SeverityError {
			continue
		}
		if _, ok := open[a.ProviderID]; !ok {
			open[a.ProviderID] = a
		}
	}

	report := &HealthReport{
		Providers:   make([]ProviderHealth, 0, len(providers)),
		OpenAlerts:  len(alerts),
		GeneratedAt: time.Now().UTC(),
	}
	for _, p := range providers {
		ph := ProviderHealth{
			ProviderID: p.ID,
			Name:       p.Name,
			URL:        p.URL,
			Status:     "unknown",
			OpenAlert:  open[p.ID],
		}

		latest, err := m.store.LatestHealth(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("latest health of %s: %w", p.ID, err)
		}
		if latest != nil {
			ph.Latest = latest
			ph.Status = string(latest.Verdict)
		}

		ph.UptimePercent, err = m.store.Uptime(ctx, p.ID, storage.DefaultUptimeWindow)
		if err != nil {
			return nil, fmt.Errorf("uptime of %s: %w", p.ID, err)
		}

		report.Providers = append(report.Providers, ph)
	}
	report.SystemStatus = aggregate(report.Providers)

	if m.sweeps != nil {
		if summary, at := m.sweeps.LastSweep(); !at.IsZero() {
			report.LastSweepAt = &at
			report.LastSweep = &summary
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	m.lastGen = gen
	return report, nil
}

// Observe invalidates the cached report once a new record exists.
func (m *Monitor) Observe(context.Context, domain.Provider, *domain.HealthRecord, domain.Transition) {
	m.gen.Add(1)
}
