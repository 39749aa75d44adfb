package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/rpcmon/internal/core/config"
	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/core/worker"
	redisclient "github.com/vietddude/rpcmon/internal/infra/redis"
	"github.com/vietddude/rpcmon/internal/infra/rpc"
	"github.com/vietddude/rpcmon/internal/infra/storage"
	"github.com/vietddude/rpcmon/internal/infra/storage/memory"
	"github.com/vietddude/rpcmon/internal/infra/storage/postgres"
	"github.com/vietddude/rpcmon/internal/monitoring/checker"
	"github.com/vietddude/rpcmon/internal/monitoring/health"
	"github.com/vietddude/rpcmon/internal/monitoring/recorder"
	"github.com/vietddude/rpcmon/internal/monitoring/scheduler"
)

// Service wires storage, probing, scheduling and the status servers together.
type Service struct {
	cfg         *config.AppConfig
	store       storage.Store
	db          *postgres.DB
	redisClient *redisclient.Client
	scheduler   *scheduler.Scheduler
	monitor     *health.Monitor
	httpServer  *health.Server
	grpcServer  *health.GRPCServer
	pruner      *worker.Pruner
	log         *slog.Logger
}

// NewService creates a Service with all dependencies initialized.
func NewService(ctx context.Context, cfg *config.AppConfig) (*Service, error) {
	s := &Service{cfg: cfg, log: slog.Default()}

	// 1. Initialize Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.db = db
		s.store = postgres.NewStore(db)
		s.log.Info("Using PostgreSQL storage", "driver", cfg.Database.Driver)
	} else {
		s.store = memory.NewMemoryStorage()
		s.log.Info("Using Memory storage")
	}

	// 2. Seed the provider registry
	providers, err := seedProviders(ctx, s.store, cfg.Providers)
	if err != nil {
		_ = s.store.Close()
		return nil, err
	}
	s.log.Info("Loaded providers", "count", len(providers))

	// 3. Redis is optional; without it sweeps are only exclusive per process
	var observers []checker.Observer
	var schedOpts []scheduler.Option
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			s.log.Warn("Failed to connect to Redis, distributed sweep lock disabled", "error", err)
		} else {
			s.redisClient = client
			schedOpts = append(schedOpts, scheduler.WithSweepLock(redisclient.NewSweepLock(client, cfg.Redis.LockTTL)))
			observers = append(observers, redisclient.NewStatusCache(client, cfg.Redis.StatusTTL))
			s.log.Info("Redis sweep lock and status cache enabled")
		}
	}

	// 4. Status servers observe every record
	s.monitor = health.NewMonitor(s.store, nil)
	observers = append(observers, s.monitor)
	if cfg.Server.GRPCPort > 0 {
		s.grpcServer = health.NewGRPCServer(cfg.Server.GRPCPort)
		s.grpcServer.Register(providers)
		observers = append(observers, s.grpcServer)
	}

	// 5. Probe -> record -> check -> schedule
	prober := rpc.NewProber(cfg.Probe)
	rec := recorder.New(s.store, recorder.WithLogger(s.log))
	chk := checker.New(prober, rec, s.log, observers...)
	schedOpts = append(schedOpts, scheduler.WithLogger(s.log))
	s.scheduler = scheduler.New(cfg.Scheduler, s.store, chk, schedOpts...)
	s.monitor.SetSweepInfo(s.scheduler)

	s.httpServer = health.NewServer(s.monitor, s.store, s.scheduler, cfg.Server.Port)
	s.pruner = worker.NewPruner(cfg.Retention, s.store)

	return s, nil
}

func seedProviders(ctx context.Context, store storage.ProviderRepository, seeds []config.ProviderConfig) ([]domain.Provider, error) {
	for _, p := range seeds {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		err := store.UpsertProvider(ctx, domain.Provider{
			ID:          p.ID,
			Name:        name,
			URL:         p.URL,
			Description: p.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed provider %s: %w", p.ID, err)
		}
	}
	return store.ListProviders(ctx)
}

// Start starts the servers and the scheduler.
func (s *Service) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := s.httpServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()
	s.log.Info("Health server listening", "port", s.cfg.Server.Port)

	if s.grpcServer != nil {
		go func() {
			if err := s.grpcServer.Start(); err != nil {
				s.log.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start DB Metrics Collector
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	// Start Pruner
	if s.cfg.Retention > 0 {
		s.log.Info("Starting pruner", "retention", s.cfg.Retention)
		go s.pruner.Start(ctx)
	}

	return s.scheduler.Start(ctx)
}

// Stop shuts down in reverse order: no new requests, then no new sweeps, then storage.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping rpcmon...")
	var errs []error

	if err := s.httpServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop health server: %w", err))
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if err := s.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}

	// Close Redis
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases resources of a Service that was never started.
func (s *Service) Close() error {
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	return s.store.Close()
}

// Scheduler returns the sweep scheduler.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Store returns the backing store.
func (s *Service) Store() storage.Store {
	return s.store
}

// Monitor returns the fleet health monitor.
func (s *Service) Monitor() *health.Monitor {
	return s.monitor
}
