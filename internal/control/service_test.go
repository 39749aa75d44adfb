package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/rpcmon/internal/core/config"
	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/rpc"
	"github.com/vietddude/rpcmon/internal/monitoring/health"
	"github.com/vietddude/rpcmon/internal/monitoring/scheduler"
)

// rpcNode answers eth_blockNumber and rejects everything else as unknown.
func rpcNode(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Method == "eth_blockNumber" {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(nodeURL string) *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Probe:  rpc.Config{Timeout: time.Second},
		Scheduler: scheduler.Config{
			Interval:    time.Hour,
			Concurrency: 2,
		},
		Providers: []config.ProviderConfig{
			{ID: "up", Name: "Local Node", URL: nodeURL},
			{ID: "down", Name: "Dead Node", URL: "http://127.0.0.1:1"},
		},
	}
}

func TestService_SweepAndCheck(t *testing.T) {
	node := rpcNode(t)
	ctx := context.Background()

	svc, err := NewService(ctx, testConfig(node.URL))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Close()

	summary, err := svc.Scheduler().RunSweep(ctx)
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}
	if summary.Total != 2 || summary.Online != 1 || summary.Offline != 1 || summary.AlertsOpened != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}

	alerts, _ := svc.Store().ListUnresolvedAlerts(ctx)
	if len(alerts) != 1 || alerts[0].ProviderID != "down" {
		t.Fatalf("expected one open alert for the dead node, got %+v", alerts)
	}
	if alerts[0].Message != "Provider Dead Node is offline: connection failed" {
		t.Errorf("unexpected alert message %q", alerts[0].Message)
	}

	p, err := svc.Store().GetProvider(ctx, "up")
	if err != nil {
		t.Fatalf("GetProvider failed: %v", err)
	}
	rec, err := svc.Scheduler().CheckOne(ctx, *p)
	if err != nil {
		t.Fatalf("CheckOne failed: %v", err)
	}
	if !rec.Online() || rec.ResponseTimeMs == nil {
		t.Errorf("expected online record with latency, got %+v", rec)
	}

	report, err := svc.Monitor().CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if report.SystemStatus != health.StatusDegraded {
		t.Errorf("expected degraded fleet, got %s", report.SystemStatus)
	}
	if report.LastSweepAt == nil {
		t.Error("expected the last sweep time in the report")
	}
}

func TestService_ConcurrentCheckOneOpensOneAlert(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ctx, testConfig("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Close()

	p, err := svc.Store().GetProvider(ctx, "down")
	if err != nil {
		t.Fatalf("GetProvider failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Scheduler().CheckOne(ctx, *p); err != nil {
				t.Errorf("CheckOne failed: %v", err)
			}
		}()
	}
	wg.Wait()

	alerts, _ := svc.Store().ListAlerts(ctx, "down", 0)
	if len(alerts) != 1 {
		t.Errorf("expected exactly one alert, got %d", len(alerts))
	}
	records, _ := svc.Store().RecentHealth(ctx, "down", 0)
	if len(records) != 10 {
		t.Errorf("expected 10 records, got %d", len(records))
	}
}

func TestService_SeedsProviders(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Providers = append(cfg.Providers, config.ProviderConfig{ID: "nameless", URL: "http://127.0.0.1:2"})

	svc, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Close()

	providers, _ := svc.Store().ListProviders(ctx)
	if len(providers) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(providers))
	}
	byID := map[string]domain.Provider{}
	for _, p := range providers {
		byID[p.ID] = p
	}
	if byID["nameless"].Name != "nameless" {
		t.Errorf("expected the ID as fallback name, got %q", byID["nameless"].Name)
	}
}

func TestService_Lifecycle(t *testing.T) {
	node := rpcNode(t)
	cfg := testConfig(node.URL)
	cfg.Scheduler.RunOnStart = true

	svc, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, at := svc.Scheduler().LastSweep(); !at.IsZero() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, at := svc.Scheduler().LastSweep(); at.IsZero() {
		t.Error("expected the start-up sweep to finish")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
