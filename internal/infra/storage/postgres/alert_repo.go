package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/rpcmon/internal/core/domain"
)

// AlertRepo implements storage.AlertRepository using PostgreSQL.
type AlertRepo struct {
	db *DB
}

// NewAlertRepo creates a new PostgreSQL alert repository.
func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

const selectAlert = `
	SELECT id, provider_id, severity, message, resolved, created_at, resolved_at
	FROM alerts`

func (r *AlertRepo) ListUnresolvedAlerts(ctx context.Context) ([]*domain.Alert, error) {
	var alerts []*domain.Alert
	err := r.db.SelectContext(ctx, &alerts, selectAlert+`
		WHERE resolved = FALSE
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved alerts: %w", err)
	}
	return alerts, nil
}

func (r *AlertRepo) ListAlerts(ctx context.Context, providerID string, limit int) ([]*domain.Alert, error) {
	query := selectAlert + `
		WHERE provider_id = $1
		ORDER BY created_at DESC`
	args := []any{providerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var alerts []*domain.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}
