package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/monitoring/metrics"
	"github.com/vietddude/rpcmon/internal/monitoring/sweeper"
)

// DefaultInterval is the time between two scheduled sweeps.
const DefaultInterval = 5 * time.Minute

var (
	// ErrSweepInProgress is returned when a sweep is requested while another one runs.
	ErrSweepInProgress = errors.New("sweep already in progress")
	// ErrNotRunning is returned by TriggerSweep before Start or after Stop.
	ErrNotRunning = errors.New("scheduler is not running")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Config controls the sweep cadence.
type Config struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	RunOnStart  bool          `yaml:"run_on_start"`
}

// ProviderLister returns the fleet to sweep.
type ProviderLister interface {
	ListProviders(ctx context.Context) ([]domain.Provider, error)
}

// SweepLock excludes sweeps running in other processes.
type SweepLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSweepLock makes every sweep take lock first; a held lock skips the sweep.
func WithSweepLock(lock SweepLock) Option {
	return func(s *Scheduler) { s.lock = lock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler runs fleet sweeps on an interval and serves manual checks.
type Scheduler struct {
	cfg       Config
	providers ProviderLister
	checker   sweeper.Checker
	sweeper   *sweeper.Sweeper
	lock      SweepLock
	logger    *slog.Logger

	running atomic.Bool

	mu         sync.Mutex
	started    bool
	stopped    bool
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
	workCtx    context.Context
	cancelWork context.CancelFunc
	wg         sync.WaitGroup

	lastMu      sync.RWMutex
	lastSummary sweeper.Summary
	lastSweepAt time.Time
}

// New creates a Scheduler. Nothing runs until Start.
func New(cfg Config, providers ProviderLister, checker sweeper.Checker, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = sweeper.DefaultConcurrency
	}
	s := &Scheduler{
		cfg:       cfg,
		providers: providers,
		checker:   checker,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sweeper = sweeper.New(checker, cfg.Concurrency, s.logger)
	return s
}

// Start launches the ticker loop. Sweeps started by the loop outlive ctx
// until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.workCtx, s.cancelWork = context.WithCancel(context.WithoutCancel(ctx))
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelLoop = cancel
	s.loopDone = make(chan struct{})

	s.logger.Info("Scheduler started",
		"interval", s.cfg.Interval,
		"concurrency", s.cfg.Concurrency,
		"run_on_start", s.cfg.RunOnStart,
	)
	go s.loop(loopCtx)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.tick()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if err := s.TriggerSweep(); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.logger.Warn("Skipping scheduled sweep, previous sweep still running")
			return
		}
		s.logger.Debug("Scheduled sweep not started", "error", err)
	}
}

// TriggerSweep starts a sweep in the background and returns immediately.
func (s *Scheduler) TriggerSweep() error {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return ErrSweepInProgress
	}

	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		s.running.Store(false)
		return ErrNotRunning
	}
	s.wg.Add(1)
	ctx := s.workCtx
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.logger.Error("Sweep failed", "error", err)
		}
	}()
	return nil
}

// RunSweep runs one full-fleet sweep synchronously.
func (s *Scheduler) RunSweep(ctx context.Context) (sweeper.Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		return sweeper.Summary{}, ErrSweepInProgress
	}
	defer s.running.Store(false)
	return s.sweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) (sweeper.Summary, error) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			metrics.SweepsTotal.WithLabelValues("failed").Inc()
			return sweeper.Summary{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			metrics.SweepsTotal.WithLabelValues("skipped").Inc()
			s.logger.Info("Sweep lock held by another instance, skipping")
			return sweeper.Summary{}, ErrSweepInProgress
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to release sweep lock", "error", err)
			}
		}()
	}

	providers, err := s.providers.ListProviders(ctx)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("failed").Inc()
		return sweeper.Summary{}, fmt.Errorf("list providers: %w", err)
	}

	summary, err := s.sweeper.Sweep(ctx, providers)

	s.lastMu.Lock()
	s.lastSummary = summary
	s.lastSweepAt = time.Now()
	s.lastMu.Unlock()

	if err != nil {
		metrics.SweepsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("sweep: %w", err)
	}
	metrics.SweepsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// CheckOne runs a manual check of a single provider through the same path as a sweep.
func (s *Scheduler) CheckOne(ctx context.Context, provider domain.Provider) (*domain.HealthRecord, error) {
	res, err := s.checker.Check(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("check provider %s: %w", provider.ID, err)
	}
	return res.Record, nil
}

// Running reports whether a sweep is in progress in this process.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastSweep returns the summary and finish time of the latest sweep, zero if none ran.
func (s *Scheduler) LastSweep() (sweeper.Summary, time.Time) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastSummary, s.lastSweepAt
}

// Stop halts the ticker and waits for in-flight sweeps. If ctx ends first the
// sweeps are cancelled, awaited, and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancelLoop()
	s.mu.Unlock()

	<-s.loopDone

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelWork()
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Stop deadline reached, cancelling in-flight sweeps")
		s.cancelWork()
		<-done
		return ctx.Err()
	}
}
