package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/rpc"
	"github.com/vietddude/rpcmon/internal/monitoring/metrics"
)

// Prober checks one endpoint.
type Prober interface {
	Probe(ctx context.Context, url string) (rpc.ProbeResult, error)
}

// Recorder persists a probe result and applies the alert transition.
type Recorder interface {
	Record(ctx context.Context, provider domain.Provider, result rpc.ProbeResult) (*domain.HealthRecord, domain.Transition, error)
}

// Observer is notified after a record has been committed. Observers must not block.
type Observer interface {
	Observe(ctx context.Context, provider domain.Provider, record *domain.HealthRecord, transition domain.Transition)
}

// Result is the outcome of one check.
type Result struct {
	Provider   domain.Provider
	Record     *domain.HealthRecord
	Transition domain.Transition
}

// Checker probes a provider and records the verdict.
type Checker struct {
	prober    Prober
	recorder  Recorder
	observers []Observer
	logger    *slog.Logger
}

// New creates a Checker. A nil logger falls back to slog.Default().
func New(prober Prober, recorder Recorder, logger *slog.Logger, observers ...Observer) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		prober:    prober,
		recorder:  recorder,
		observers: observers,
		logger:    logger,
	}
}

// Check probes the provider once and records the result. A probe that panics
// is recorded as offline. The error is non-nil when ctx was cancelled before
// a verdict existed or the record could not be persisted.
func (c *Checker) Check(ctx context.Context, provider domain.Provider) (Result, error) {
	result, err := c.probe(ctx, provider)
	if err != nil {
		return Result{Provider: provider}, err
	}

	for _, a := range result.Attempts {
		c.logger.Debug("Probe attempt",
			"provider", provider.Name,
			"method", a.Method,
			"outcome", a.Outcome,
		)
	}

	record, transition, err := c.recorder.Record(ctx, provider, result)
	if err != nil {
		return Result{Provider: provider}, err
	}

	for _, o := range c.observers {
		o.Observe(ctx, provider, record, transition)
	}
	return Result{Provider: provider, Record: record, Transition: transition}, nil
}

func (c *Checker) probe(ctx context.Context, provider domain.Provider) (result rpc.ProbeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CheckErrorsTotal.WithLabelValues(provider.Name, "panic").Inc()
			c.logger.Error("Probe panicked",
				"provider", provider.Name,
				"panic", r,
			)
			result = rpc.ProbeResult{
				Verdict: domain.VerdictOffline,
				Err:     fmt.Errorf("probe panicked: %v", r),
			}
			err = nil
		}
	}()

	result, err = c.prober.Probe(ctx, provider.URL)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return rpc.ProbeResult{}, err
		}
		// Any other prober error is an offline verdict.
		c.logger.Warn("Probe returned error",
			"provider", provider.Name,
			"error", err,
		)
		return rpc.ProbeResult{Verdict: domain.VerdictOffline, Err: err}, nil
	}
	return result, nil
}
