package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/storage"
)

// UnitOfWork runs the recorder's writes for one provider inside a single
// database transaction.
type UnitOfWork struct {
	tx         *sqlx.Tx
	providerID string
}

// WithinProviderTx begins a transaction, takes a transaction-scoped advisory
// lock keyed by the provider ID and runs fn. The transaction commits only if
// fn succeeds; the lock is released with it.
func (db *DB) WithinProviderTx(
	ctx context.Context,
	providerID string,
	fn func(ctx context.Context, tx storage.Tx) error,
) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, providerID); err != nil {
		return fmt.Errorf("failed to lock provider %s: %w", providerID, err)
	}

	if err := fn(ctx, &UnitOfWork{tx: tx, providerID: providerID}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (u *UnitOfWork) scope(providerID string) error {
	if providerID != u.providerID {
		return fmt.Errorf("provider %s is outside the transaction for %s", providerID, u.providerID)
	}
	return nil
}

func (u *UnitOfWork) SaveHealthRecord(ctx context.Context, record *domain.HealthRecord) error {
	if err := u.scope(record.ProviderID); err != nil {
		return err
	}
	_, err := u.tx.NamedExecContext(ctx, `
		INSERT INTO health_records (id, provider_id, status, response_time_ms, error_message, checked_at)
		VALUES (:id, :provider_id, :status, :response_time_ms, :error_message, :checked_at)`, record)
	if isForeignKeyViolation(err) {
		return storage.ErrProviderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to save health record: %w", err)
	}
	return nil
}

func (u *UnitOfWork) FindUnresolvedErrorAlert(ctx context.Context, providerID string) (*domain.Alert, error) {
	if err := u.scope(providerID); err != nil {
		return nil, err
	}
	var alert domain.Alert
	err := u.tx.GetContext(ctx, &alert, selectAlert+`
		WHERE provider_id = $1 AND resolved = FALSE AND severity = 'error'
		LIMIT 1`, providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open alert: %w", err)
	}
	return &alert, nil
}

func (u *UnitOfWork) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	if err := u.scope(alert.ProviderID); err != nil {
		return err
	}
	res, err := u.tx.NamedExecContext(ctx, `
		INSERT INTO alerts (id, provider_id, severity, message, resolved, created_at, resolved_at)
		VALUES (:id, :provider_id, :severity, :message, :resolved, :created_at, :resolved_at)
		ON CONFLICT (provider_id) WHERE resolved = FALSE AND severity = 'error' DO NOTHING`, alert)
	switch {
	case isForeignKeyViolation(err):
		return storage.ErrProviderNotFound
	case isUniqueViolation(err):
		return storage.ErrOpenAlertExists
	case err != nil:
		return fmt.Errorf("failed to create alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	if n == 0 {
		return storage.ErrOpenAlertExists
	}
	return nil
}

func (u *UnitOfWork) ResolveAlerts(ctx context.Context, providerID string, at time.Time) (int, error) {
	if err := u.scope(providerID); err != nil {
		return 0, err
	}
	res, err := u.tx.ExecContext(ctx, `
		UPDATE alerts
		SET resolved = TRUE, resolved_at = $2
		WHERE provider_id = $1 AND resolved = FALSE AND severity = 'error'`, providerID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve alerts: %w", err)
	}
	return int(n), nil
}
