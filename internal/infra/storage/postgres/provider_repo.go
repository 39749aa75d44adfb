package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/storage"
)

// ProviderRepo implements storage.ProviderRepository using PostgreSQL.
type ProviderRepo struct {
	db *DB
}

// NewProviderRepo creates a new PostgreSQL provider repository.
func NewProviderRepo(db *DB) *ProviderRepo {
	return &ProviderRepo{db: db}
}

func (r *ProviderRepo) ListProviders(ctx context.Context) ([]domain.Provider, error) {
	var providers []domain.Provider
	err := r.db.SelectContext(ctx, &providers, `
		SELECT id, name, url, description, created_at
		FROM providers
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (r *ProviderRepo) GetProvider(ctx context.Context, id string) (*domain.Provider, error) {
	var p domain.Provider
	err := r.db.GetContext(ctx, &p, `
		SELECT id, name, url, description, created_at
		FROM providers
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &p, nil
}

func (r *ProviderRepo) UpsertProvider(ctx context.Context, p domain.Provider) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO providers (id, name, url, description)
		VALUES (:id, :name, :url, :description)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    url = EXCLUDED.url,
		    description = EXCLUDED.description`, p)
	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}
	return nil
}
