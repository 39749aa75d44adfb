package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/infra/rpc"
	"github.com/vietddude/rpcmon/internal/infra/storage"
	"github.com/vietddude/rpcmon/internal/monitoring/metrics"
)

// Recorder persists probe results and keeps the per-provider alert state in
// step with them.
type Recorder struct {
	store  storage.Transactor
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source used for CheckedAt, CreatedAt and ResolvedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// New creates a Recorder writing through store.
func New(store storage.Transactor, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends a health record for result and applies the alert transition:
//
//	offline, no open alert -> open an error alert
//	offline, open alert    -> nothing
//	online                 -> resolve every open error alert
//
// Everything happens in one provider-scoped transaction and timestamps are
// taken once its lock is held. On error nothing is written.
func (r *Recorder) Record(
	ctx context.Context,
	provider domain.Provider,
	result rpc.ProbeResult,
) (*domain.HealthRecord, domain.Transition, error) {
	record := &domain.HealthRecord{
		ID:         r.newID(),
		ProviderID: provider.ID,
		Verdict:    result.Verdict,
	}
	if result.Latency != nil {
		ms := float64(*result.Latency) / float64(time.Millisecond)
		record.ResponseTimeMs = &ms
	}
	if result.Verdict != domain.VerdictOnline {
		record.Verdict = domain.VerdictOffline
		detail := result.ErrorDetail()
		if detail == "" {
			detail = "unknown error"
		}
		record.Error = &detail
	}

	transition := domain.TransitionNone
	err := r.store.WithinProviderTx(ctx, provider.ID, func(ctx context.Context, tx storage.Tx) error {
		transition = domain.TransitionNone
		now := r.now()
		record.CheckedAt = now

		if err := tx.SaveHealthRecord(ctx, record); err != nil {
			return fmt.Errorf("save health record: %w", err)
		}

		if record.Online() {
			n, err := tx.ResolveAlerts(ctx, provider.ID, now)
			if err != nil {
				return fmt.Errorf("resolve alerts: %w", err)
			}
			if n > 0 {
				transition = domain.TransitionResolved
			}
			return nil
		}

		open, err := tx.FindUnresolvedErrorAlert(ctx, provider.ID)
		if err != nil {
			return fmt.Errorf("find open alert: %w", err)
		}
		if open != nil {
			return nil
		}

		alert := &domain.Alert{
			ID:         r.newID(),
			ProviderID: provider.ID,
			Severity:   domain.SeverityError,
			Message:    fmt.Sprintf("Provider %s is offline: %s", provider.Name, *record.Error),
			CreatedAt:  now,
		}
		if err := tx.CreateAlert(ctx, alert); err != nil {
			if errors.Is(err, storage.ErrOpenAlertExists) {
				return nil
			}
			return fmt.Errorf("create alert: %w", err)
		}
		transition = domain.TransitionOpened
		return nil
	})
	if err != nil {
		metrics.CheckErrorsTotal.WithLabelValues(provider.Name, "persistence").Inc()
		return nil, domain.TransitionNone, fmt.Errorf("record health of %s: %w", provider.ID, err)
	}

	r.observe(provider, record, transition)
	return record, transition, nil
}

func (r *Recorder) observe(provider domain.Provider, record *domain.HealthRecord, transition domain.Transition) {
	metrics.ChecksTotal.WithLabelValues(provider.Name, string(record.Verdict)).Inc()
	if record.Online() {
		metrics.ProviderUp.WithLabelValues(provider.Name).Set(1)
		if record.ResponseTimeMs != nil {
			metrics.CheckLatency.WithLabelValues(provider.Name).Observe(*record.ResponseTimeMs / 1000)
		}
	} else {
		metrics.ProviderUp.WithLabelValues(provider.Name).Set(0)
	}

	switch transition {
	case domain.TransitionOpened:
		metrics.AlertTransitionsTotal.WithLabelValues(provider.Name, string(transition)).Inc()
		r.logger.Warn("Provider went offline",
			"provider", provider.Name,
			"provider_id", provider.ID,
			"error", *record.Error,
		)
	case domain.TransitionResolved:
		metrics.AlertTransitionsTotal.WithLabelValues(provider.Name, string(transition)).Inc()
		r.logger.Info("Provider recovered",
			"provider", provider.Name,
			"provider_id", provider.ID,
		)
	default:
		r.logger.Debug("Health recorded",
			"provider", provider.Name,
			"status", record.Verdict,
		)
	}
}
