package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/storage"
)

// HealthRepo implements storage.HealthRepository using PostgreSQL.
type HealthRepo struct {
	db *DB
}

// NewHealthRepo creates a new PostgreSQL health record repository.
func NewHealthRepo(db *DB) *HealthRepo {
	return &HealthRepo{db: db}
}

const selectHealth = `
	SELECT id, provider_id, status, response_time_ms, error_message, checked_at
	FROM health_records`

func (r *HealthRepo) LatestHealth(ctx context.Context, providerID string) (*domain.HealthRecord, error) {
	var rec domain.HealthRecord
	err := r.db.GetContext(ctx, &rec, selectHealth+`
		WHERE provider_id = $1
		ORDER BY checked_at DESC
		LIMIT 1`, providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest health record: %w", err)
	}
	return &rec, nil
}

func (r *HealthRepo) RecentHealth(ctx context.Context, providerID string, limit int) ([]*domain.HealthRecord, error) {
	query := selectHealth + `
		WHERE provider_id = $1
		ORDER BY checked_at DESC`
	args := []any{providerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var records []*domain.HealthRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list health records: %w", err)
	}
	return records, nil
}

func (r *HealthRepo) Uptime(ctx context.Context, providerID string, window int) (float64, error) {
	if window <= 0 {
		window = storage.DefaultUptimeWindow
	}
	var row struct {
		Total  int `db:"total"`
		Online int `db:"online"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status = 'online') AS online
		FROM (
			SELECT status FROM health_records
			WHERE provider_id = $1
			ORDER BY checked_at DESC
			LIMIT $2
		) recent`, providerID, window)
	if err != nil {
		return 0, fmt.Errorf("failed to compute uptime: %w", err)
	}
	if row.Total == 0 {
		return 100.0, nil
	}
	return float64(row.Online) / float64(row.Total) * 100, nil
}

func (r *HealthRepo) DeleteHealthOlderThan(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM health_records WHERE checked_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old health records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete old health records: %w", err)
	}
	return int(n), nil
}
