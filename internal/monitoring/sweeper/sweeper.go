package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/monitoring/checker"
	"github.com/vietddude/rpcmon/internal/monitoring/metrics"
)

// DefaultConcurrency bounds concurrent checks when none is configured.
const DefaultConcurrency = 10

// Checker checks one provider.
type Checker interface {
	Check(ctx context.Context, provider domain.Provider) (checker.Result, error)
}

// Summary describes one sweep.
type Summary struct {
	Total          int           `json:"total"`
	Online         int           `json:"online"`
	Offline        int           `json:"offline"`
	Failed         int           `json:"failed"`
	AlertsOpened   int           `json:"alerts_opened"`
	AlertsResolved int           `json:"alerts_resolved"`
	Duration       time.Duration `json:"duration"`
}

// Sweeper checks a whole fleet with bounded concurrency.
type Sweeper struct {
	checker     Checker
	concurrency int
	logger      *slog.Logger
}

// New creates a Sweeper running at most concurrency checks at once
// (DefaultConcurrency when <= 0).
func New(c Checker, concurrency int, logger *slog.Logger) *Sweeper {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{checker: c, concurrency: concurrency, logger: logger}
}

// Sweep checks every provider exactly once. A failure of one provider never
// stops the others; persistence errors are joined and returned once all
// providers have been attempted.
func (s *Sweeper) Sweep(ctx context.Context, providers []domain.Provider) (Summary, error) {
	start := time.Now()
	summary := Summary{Total: len(providers)}

	var (
		mu   sync.Mutex
		errs []error
	)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, p := range providers {
		p := p
		g.Go(func() error {
			res, err := s.checkOne(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				errs = append(errs, err)
				return nil
			}
			if res.Record.Online() {
				summary.Online++
			} else {
				summary.Offline++
			}
			switch res.Transition {
			case domain.TransitionOpened:
				summary.AlertsOpened++
			case domain.TransitionResolved:
				summary.AlertsResolved++
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	metrics.SweepDuration.Observe(summary.Duration.Seconds())

	s.logger.Info("Sweep finished",
		"total", summary.Total,
		"online", summary.Online,
		"offline", summary.Offline,
		"failed", summary.Failed,
		"alerts_opened", summary.AlertsOpened,
		"alerts_resolved", summary.AlertsResolved,
		"duration", summary.Duration,
	)
	return summary, errors.Join(errs...)
}

func (s *Sweeper) checkOne(ctx context.Context, p domain.Provider) (res checker.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CheckErrorsTotal.WithLabelValues(p.Name, "panic").Inc()
			s.logger.Error("Check panicked", "provider", p.Name, "panic", r)
			err = fmt.Errorf("check %s: panic: %v", p.ID, r)
		}
	}()

	res, err = s.checker.Check(ctx, p)
	if err != nil {
		s.logger.Error("Check failed", "provider", p.Name, "error", err)
		return res, fmt.Errorf("check %s: %w", p.ID, err)
	}
	return res, nil
}
