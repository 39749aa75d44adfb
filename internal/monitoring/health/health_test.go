package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/storage"
	"github.com/vietddude/rpcmon/internal/infra/storage/memory"
	"github.com/vietddude/rpcmon/internal/monitoring/scheduler"
	"github.com/vietddude/rpcmon/internal/monitoring/sweeper"
)

// =============================================================================
// Stubs
// =============================================================================

type stubRunner struct {
	checked  []string
	checkErr error
	sweepErr error
}

func (s *stubRunner) CheckOne(ctx context.Context, p domain.Provider) (*domain.HealthRecord, error) {
	s.checked = append(s.checked, p.ID)
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return &domain.HealthRecord{ID: "r1", ProviderID: p.ID, Verdict: domain.VerdictOnline}, nil
}

func (s *stubRunner) TriggerSweep() error { return s.sweepErr }

type stubSweeps struct {
	at time.Time
}

func (s stubSweeps) LastSweep() (sweeper.Summary, time.Time) {
	return sweeper.Summary{Total: 2, Online: 1, Offline: 1}, s.at
}

func seed(t *testing.T) *memory.MemoryStorage {
	t.Helper()
	store := memory.NewMemoryStorage()
	ctx := context.Background()
	for _, p := range []domain.Provider{
		{ID: "p1", Name: "Primordial Node", URL: "https://node.example"},
		{ID: "p2", Name: "Awakening Relay", URL: "https://relay.example"},
	} {
		if err := store.UpsertProvider(ctx, p); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

// markDown records an offline check with an open alert for providerID.
func markDown(t *testing.T, store *memory.MemoryStorage, providerID string) {
	t.Helper()
	detail := "connection failed"
	err := store.WithinProviderTx(context.Background(), providerID, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.SaveHealthRecord(ctx, &domain.HealthRecord{
			ID: providerID + "-r", ProviderID: providerID, Verdict: domain.VerdictOffline, Error: &detail, CheckedAt: time.Now(),
		}); err != nil {
			return err
		}
		return tx.CreateAlert(ctx, &domain.Alert{
			ID: providerID + "-a", ProviderID: providerID, Severity: domain.SeverityError,
			Message: "Provider is offline: " + detail, CreatedAt: time.Now(),
		})
	})
	if err != nil {
		t.Fatalf("markDown: %v", err)
	}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Tests
// =============================================================================

func TestAggregate(t *testing.T) {
	up := ProviderHealth{}
	down := ProviderHealth{OpenAlert: &domain.Alert{}}

	tests := []struct {
		name      string
		providers []ProviderHealth
		want      SystemStatus
	}{
		{"no providers", nil, StatusHealthy},
		{"all up", []ProviderHealth{up, up}, StatusHealthy},
		{"some down", []ProviderHealth{up, down}, StatusDegraded},
		{"all down", []ProviderHealth{down, down}, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aggregate(tt.providers); got != tt.want {
				t.Errorf("aggregate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	store := seed(t)
	monitor := NewMonitor(store, nil)
	h := NewServer(monitor, store, &stubRunner{}, 0).Routes()

	rec := do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("expected healthy 200, got %d %s", rec.Code, rec.Body.String())
	}

	markDown(t, store, "p1")
	monitor.Observe(context.Background(), domain.Provider{}, nil, domain.TransitionOpened)
	rec = do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Errorf("expected degraded 200, got %d %s", rec.Code, rec.Body.String())
	}

	markDown(t, store, "p2")
	monitor.Observe(context.Background(), domain.Provider{}, nil, domain.TransitionOpened)
	rec = do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"critical"`) {
		t.Errorf("expected critical 503, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestProvidersEndpoint(t *testing.T) {
	store := seed(t)
	markDown(t, store, "p2")
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h := NewServer(NewMonitor(store, stubSweeps{at: at}), store, &stubRunner{}, 0).Routes()

	rec := do(t, h, http.MethodGet, "/health/providers")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.SystemStatus != StatusDegraded || len(report.Providers) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.LastSweepAt == nil || !report.LastSweepAt.Equal(at) || report.LastSweep.Total != 2 {
		t.Errorf("expected last sweep info, got %v %+v", report.LastSweepAt, report.LastSweep)
	}

	byID := map[string]ProviderHealth{}
	for _, p := range report.Providers {
		byID[p.ProviderID] = p
	}
	if p := byID["p1"]; p.Status != "unknown" || p.UptimePercent != 100 || p.OpenAlert != nil {
		t.Errorf("unexpected p1 %+v", p)
	}
	if p := byID["p2"]; p.Status != "offline" || p.UptimePercent != 0 || p.OpenAlert == nil {
		t.Errorf("unexpected p2 %+v", p)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	store := seed(t)
	h := NewServer(NewMonitor(store, nil), store, &stubRunner{}, 0).Routes()

	rec := do(t, h, http.MethodGet, "/alerts")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}

	markDown(t, store, "p1")
	rec = do(t, h, http.MethodGet, "/alerts")
	var alerts []domain.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ProviderID != "p1" {
		t.Errorf("unexpected alerts %+v", alerts)
	}
}

func TestCheckEndpoint(t *testing.T) {
	store := seed(t)
	runner := &stubRunner{}
	h := NewServer(NewMonitor(store, nil), store, runner, 0).Routes()

	rec := do(t, h, http.MethodPost, "/providers/p1/check")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if len(runner.checked) != 1 || runner.checked[0] != "p1" {
		t.Errorf("expected a check of p1, got %v", runner.checked)
	}

	rec = do(t, h, http.MethodPost, "/providers/missing/check")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	runner.checkErr = errors.New("db down")
	rec = do(t, h, http.MethodPost, "/providers/p1/check")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/providers/p1/check")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestSweepEndpoint(t *testing.T) {
	store := seed(t)
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusAccepted},
		{scheduler.ErrSweepInProgress, http.StatusConflict},
		{scheduler.ErrNotRunning, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h := NewServer(NewMonitor(store, nil), store, &stubRunner{sweepErr: tt.err}, 0).Routes()
		if rec := do(t, h, http.MethodPost, "/sweep"); rec.Code != tt.want {
			t.Errorf("sweep with %v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	store := seed(t)
	h := NewServer(NewMonitor(store, nil), store, &stubRunner{}, 0).Routes()
	if rec := do(t, h, http.MethodGet, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestGRPCServer_Observe(t *testing.T) {
	g := NewGRPCServer(0)
	p := domain.Provider{ID: "p1"}
	g.Register([]domain.Provider{p})

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := g.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: "p1"})
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_UNKNOWN {
		t.Errorf("expected UNKNOWN before first check, got %s", got)
	}
	g.Observe(context.Background(), p, &domain.HealthRecord{Verdict: domain.VerdictOffline}, domain.TransitionOpened)
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %s", got)
	}
	g.Observe(context.Background(), p, &domain.HealthRecord{Verdict: domain.VerdictOnline}, domain.TransitionResolved)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %s", got)
	}
}
