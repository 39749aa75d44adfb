package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/storage"
)

// MemoryStorage is an in-process Store. Records and alerts are lost on restart.
type MemoryStorage struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider
	records   map[string][]*domain.HealthRecord
	alerts    map[string][]*domain.Alert

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

var _ storage.Store = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		providers: make(map[string]domain.Provider),
		records:   make(map[string][]*domain.HealthRecord),
		alerts:    make(map[string][]*domain.Alert),
		locks:     make(map[string]chan struct{}),
	}
}

func (s *MemoryStorage) Close() error { return nil }

// -----------------------------------------------------------------------------
// Provider Repository
// -----------------------------------------------------------------------------

func (s *MemoryStorage) ListProviders(ctx context.Context) ([]domain.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	providers := make([]domain.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool {
		if providers[i].Name == providers[j].Name {
			return providers[i].ID < providers[j].ID
		}
		return providers[i].Name < providers[j].Name
	})
	return providers, nil
}

func (s *MemoryStorage) GetProvider(ctx context.Context, id string) (*domain.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, storage.ErrProviderNotFound
	}
	return &p, nil
}

func (s *MemoryStorage) UpsertProvider(ctx context.Context, p domain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.providers[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.providers[p.ID] = p
	return nil
}

// -----------------------------------------------------------------------------
// Health Repository
// -----------------------------------------------------------------------------

func (s *MemoryStorage) LatestHealth(ctx context.Context, providerID string) (*domain.HealthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[providerID]
	if len(records) == 0 {
		return nil, nil
	}
	r := *records[len(records)-1]
	return &r, nil
}

func (s *MemoryStorage) RecentHealth(ctx context.Context, providerID string, limit int) ([]*domain.HealthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[providerID]
	var out []*domain.HealthRecord
	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		r := *records[i]
		out = append(out, &r)
	}
	return out, nil
}

func (s *MemoryStorage) Uptime(ctx context.Context, providerID string, window int) (float64, error) {
	if window <= 0 {
		window = storage.DefaultUptimeWindow
	}
	records, err := s.RecentHealth(ctx, providerID, window)
	if err != nil {
		return 0, err
	}
	return storage.UptimePercent(records), nil
}

func (s *MemoryStorage) DeleteHealthOlderThan(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, records := range s.records {
		kept := records[:0]
		for _, r := range records {
			if r.CheckedAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		s.records[id] = kept
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Alert Repository
// -----------------------------------------------------------------------------

func (s *MemoryStorage) ListUnresolvedAlerts(ctx context.Context) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Alert
	for _, alerts := range s.alerts {
		for _, a := range alerts {
			if !a.Resolved {
				c := *a
				out = append(out, &c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStorage) ListAlerts(ctx context.Context, providerID string, limit int) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alerts := s.alerts[providerID]
	var out []*domain.Alert
	for i := len(alerts) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		c := *alerts[i]
		out = append(out, &c)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// WithinProviderTx holds the provider's lock for the duration of fn and applies
// the buffered writes only when fn succeeds.
func (s *MemoryStorage) WithinProviderTx(
	ctx context.Context,
	providerID string,
	fn func(ctx context.Context, tx storage.Tx) error,
) error {
	lock := s.providerLock(providerID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	tx := &memTx{store: s, providerID: providerID}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStorage) providerLock(providerID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[providerID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[providerID] = lock
	}
	return lock
}

func (s *MemoryStorage) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range tx.records {
		s.records[r.ProviderID] = insertByCheckedAt(s.records[r.ProviderID], r)
	}
	// Alerts created in this tx were resolved in place already.
	if tx.resolveAt != nil {
		for _, a := range s.alerts[tx.providerID] {
			if !a.Resolved && a.Severity == domain.SeverityError {
				at := *tx.resolveAt
				a.Resolved = true
				a.ResolvedAt = &at
			}
		}
	}
	for _, a := range tx.alerts {
		s.alerts[a.ProviderID] = append(s.alerts[a.ProviderID], a)
	}
}

// insertByCheckedAt keeps a provider's history ordered by CheckedAt, oldest
// first, with ties in insertion order.
func insertByCheckedAt(records []*domain.HealthRecord, r *domain.HealthRecord) []*domain.HealthRecord {
	i := sort.Search(len(records), func(i int) bool { return records[i].CheckedAt.After(r.CheckedAt) })
	records = append(records, nil)
	copy(records[i+1:], records[i:])
	records[i] = r
	return records
}

type memTx struct {
	store      *MemoryStorage
	providerID string
	records    []*domain.HealthRecord
	alerts     []*domain.Alert
	resolveAt  *time.Time
}

func (t *memTx) scope(providerID string) error {
	if providerID != t.providerID {
		return fmt.Errorf("provider %s is outside the transaction for %s", providerID, t.providerID)
	}
	return nil
}

// registered mirrors the foreign keys of the SQL schema.
func (t *memTx) registered(providerID string) error {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if _, ok := t.store.providers[providerID]; !ok {
		return storage.ErrProviderNotFound
	}
	return nil
}

func (t *memTx) SaveHealthRecord(ctx context.Context, record *domain.HealthRecord) error {
	if err := t.scope(record.ProviderID); err != nil {
		return err
	}
	if err := t.registered(record.ProviderID); err != nil {
		return err
	}
	r := *record
	t.records = append(t.records, &r)
	return nil
}

func (t *memTx) FindUnresolvedErrorAlert(ctx context.Context, providerID string) (*domain.Alert, error) {
	if err := t.scope(providerID); err != nil {
		return nil, err
	}
	for _, a := range t.alerts {
		if !a.Resolved && a.Severity == domain.SeverityError {
			c := *a
			return &c, nil
		}
	}
	if t.resolveAt != nil {
		return nil, nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, a := range t.store.alerts[providerID] {
		if !a.Resolved && a.Severity == domain.SeverityError {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	if err := t.scope(alert.ProviderID); err != nil {
		return err
	}
	if err := t.registered(alert.ProviderID); err != nil {
		return err
	}
	a := *alert
	t.alerts = append(t.alerts, &a)
	return nil
}

func (t *memTx) ResolveAlerts(ctx context.Context, providerID string, at time.Time) (int, error) {
	if err := t.scope(providerID); err != nil {
		return 0, err
	}

	n := 0
	for _, a := range t.alerts {
		if !a.Resolved && a.Severity == domain.SeverityError {
			resolvedAt := at
			a.Resolved = true
			a.ResolvedAt = &resolvedAt
			n++
		}
	}

	if t.resolveAt == nil {
		t.store.mu.RLock()
		for _, a := range t.store.alerts[providerID] {
			if !a.Resolved && a.Severity == domain.SeverityError {
				n++
			}
		}
		t.store.mu.RUnlock()
		t.resolveAt = &at
	}
	return n, nil
}
