package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/rpc"
	"github.com/vietddude/rpcmon/internal/infra/storage"
	"github.com/vietddude/rpcmon/internal/monitoring/recorder"
)

// setupTestDB connects to RPCMON_TEST_DATABASE_URL, migrates it and clears
// the tables.
func setupTestDB(t *testing.T, driver string) *Store {
	url := os.Getenv("RPCMON_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping live PostgreSQL test. Set RPCMON_TEST_DATABASE_URL to run.")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url, Driver: driver, MaxConns: 20})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE alerts, health_records, providers`); err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
	return NewStore(db)
}

func TestStore_AlertLifecycle(t *testing.T) {
	for _, driver := range []string{DriverPQ, DriverPGX} {
		t.Run(driver, func(t *testing.T) {
			store := setupTestDB(t, driver)
			ctx := context.Background()

			p := domain.Provider{ID: "primordial", Name: "Primordial Node", URL: "https://node.example"}
			if err := store.UpsertProvider(ctx, p); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			rec := recorder.New(store)
			offline := rpc.ProbeResult{
				Verdict: domain.VerdictOffline,
				Err:     &rpc.ProbeError{Kind: rpc.ErrTransport, Detail: "connection failed"},
			}

			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, _, err := rec.Record(ctx, p, offline); err != nil {
						errs <- err
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Errorf("record: %v", err)
			}

			open, err := store.ListUnresolvedAlerts(ctx)
			if err != nil {
				t.Fatalf("list alerts: %v", err)
			}
			if len(open) != 1 {
				t.Fatalf("expected 1 open alert, got %d", len(open))
			}

			latency := 25 * time.Millisecond
			_, transition, err := rec.Record(ctx, p, rpc.ProbeResult{Verdict: domain.VerdictOnline, Latency: &latency})
			if err != nil {
				t.Fatalf("record online: %v", err)
			}
			if transition != domain.TransitionResolved {
				t.Errorf("expected resolved, got %s", transition)
			}

			alerts, _ := store.ListAlerts(ctx, p.ID, 0)
			if len(alerts) != 1 || !alerts[0].Resolved || alerts[0].ResolvedAt == nil {
				t.Errorf("expected one resolved alert, got %+v", alerts)
			}

			latest, err := store.LatestHealth(ctx, p.ID)
			if err != nil || latest == nil || !latest.Online() {
				t.Errorf("expected latest record online, got %+v, %v", latest, err)
			}

			up, err := store.Uptime(ctx, p.ID, storage.DefaultUptimeWindow)
			if err != nil {
				t.Fatalf("uptime: %v", err)
			}
			if want := 100.0 / 21; up < want-0.01 || up > want+0.01 {
				t.Errorf("expected uptime %.2f, got %.2f", want, up)
			}
		})
	}
}

func TestStore_UnknownProvider(t *testing.T) {
	store := setupTestDB(t, DriverPQ)
	ctx := context.Background()

	err := store.WithinProviderTx(ctx, "ghost", func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveHealthRecord(ctx, &domain.HealthRecord{
			ID:         "r1",
			ProviderID: "ghost",
			Verdict:    domain.VerdictOnline,
			CheckedAt:  time.Now(),
		})
	})
	if !errors.Is(err, storage.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}

	if _, err := store.GetProvider(ctx, "ghost"); !errors.Is(err, storage.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}

	up, err := store.Uptime(ctx, "ghost", storage.DefaultUptimeWindow)
	if err != nil || up != 100 {
		t.Errorf("expected 100%% uptime without records, got %v, %v", up, err)
	}
}
