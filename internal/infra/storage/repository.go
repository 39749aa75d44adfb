package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/rpcmon/internal/core/domain"
)

var (
	// ErrProviderNotFound is returned when a provider doesn't exist
	ErrProviderNotFound = errors.New("provider not found")

	// ErrOpenAlertExists is returned when a second open error alert would be created
	ErrOpenAlertExists = errors.New("provider already has an open error alert")
)

// DefaultUptimeWindow is the number of most recent records uptime is computed over.
const DefaultUptimeWindow = 100

// ProviderRepository is the read side of the provider registry
type ProviderRepository interface {
	// ListProviders returns a snapshot of every registered provider
	ListProviders(ctx context.Context) ([]domain.Provider, error)

	// GetProvider retrieves a provider by ID, ErrProviderNotFound if absent
	GetProvider(ctx context.Context, id string) (*domain.Provider, error)

	// UpsertProvider registers or updates a provider (used for config seeding)
	UpsertProvider(ctx context.Context, p domain.Provider) error
}

// HealthRepository reads the health record history
type HealthRepository interface {
	// LatestHealth returns the newest record for a provider, nil if none
	LatestHealth(ctx context.Context, providerID string) (*domain.HealthRecord, error)

	// RecentHealth returns up to limit records, newest first
	RecentHealth(ctx context.Context, providerID string, limit int) ([]*domain.HealthRecord, error)

	// Uptime returns the online percentage over the last window records (100 when empty)
	Uptime(ctx context.Context, providerID string, window int) (float64, error)

	// DeleteHealthOlderThan removes records checked before the cutoff (retention)
	DeleteHealthOlderThan(ctx context.Context, before time.Time) (int, error)
}

// AlertRepository reads alerts
type AlertRepository interface {
	// ListUnresolvedAlerts returns all open alerts, newest first
	ListUnresolvedAlerts(ctx context.Context) ([]*domain.Alert, error)

	// ListAlerts returns up to limit alerts of a provider, newest first
	ListAlerts(ctx context.Context, providerID string, limit int) ([]*domain.Alert, error)
}

// Tx is the write side used by the recorder. All calls made through one Tx
// commit or roll back together.
type Tx interface {
	// SaveHealthRecord appends a health record
	SaveHealthRecord(ctx context.Context, record *domain.HealthRecord) error

	// FindUnresolvedErrorAlert returns the open error alert of a provider, nil if none
	FindUnresolvedErrorAlert(ctx context.Context, providerID string) (*domain.Alert, error)

	// CreateAlert stores a new alert
	CreateAlert(ctx context.Context, alert *domain.Alert) error

	// ResolveAlerts marks every unresolved error alert of a provider as resolved
	// and returns how many were closed. Zero open alerts is not an error.
	ResolveAlerts(ctx context.Context, providerID string, at time.Time) (int, error)
}

// Transactor runs fn in a transaction that is serialized against every other
// transaction for the same provider.
type Transactor interface {
	WithinProviderTx(ctx context.Context, providerID string, fn func(ctx context.Context, tx Tx) error) error
}

// Store bundles everything the monitoring core needs from persistence
type Store interface {
	ProviderRepository
	HealthRepository
	AlertRepository
	Transactor

	Close() error
}

// UptimePercent computes the online share of records, 100 for an empty history.
func UptimePercent(records []*domain.HealthRecord) float64 {
	if len(records) == 0 {
		return 100.0
	}
	online := 0
	for _, r := range records {
		if r.Online() {
			online++
		}
	}
	return float64(online) / float64(len(records)) * 100
}
