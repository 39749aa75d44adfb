package postgres

import (
	"github.com/vietddude/rpcmon/internal/infra/storage"
)

// Store bundles the PostgreSQL repositories behind storage.Store.
type Store struct {
	*DB
	*ProviderRepo
	*HealthRepo
	*AlertRepo
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a Store over db.
func NewStore(db *DB) *Store {
	return &Store{
		DB:           db,
		ProviderRepo: NewProviderRepo(db),
		HealthRepo:   NewHealthRepo(db),
		AlertRepo:    NewAlertRepo(db),
	}
}
