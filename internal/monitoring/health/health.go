// Package health reports fleet status over HTTP and gRPC.
package health

import (
	"time"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/monitoring/sweeper"
)

// SystemStatus represents the overall health state of the fleet.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProviderHealth contains the current state of one provider.
type ProviderHealth struct {
	ProviderID    string               `json:"provider_id"`
	Name          string               `json:"name"`
	URL           string               `json:"url"`
	Status        string               `json:"status"` // online, offline or unknown
	Latest        *domain.HealthRecord `json:"latest,omitempty"`
	UptimePercent float64              `json:"uptime_percent"`
	OpenAlert     *domain.Alert        `json:"open_alert,omitempty"`
}

// HealthReport contains the full fleet report.
type HealthReport struct {
	SystemStatus SystemStatus     `json:"system_status"`
	Providers    []ProviderHealth `json:"providers"`
	OpenAlerts   int              `json:"open_alerts"`
	LastSweepAt  *time.Time       `json:"last_sweep_at,omitempty"`
	LastSweep    *sweeper.Summary `json:"last_sweep,omitempty"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// aggregate derives the fleet status: critical when every provider has an
// open alert, degraded when some do.
func aggregate(providers []ProviderHealth) SystemStatus {
	down := 0
	for _, p := range providers {
		if p.OpenAlert != nil {
			down++
		}
	}
	switch {
	case down == 0:
		return StatusHealthy
	case down == len(providers):
		return StatusCritical
	default:
		return StatusDegraded
	}
}
