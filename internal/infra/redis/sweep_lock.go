package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	sweepLockName = "sweep"

	// DefaultLockTTL is used when Config.LockTTL is unset.
	DefaultLockTTL = 2 * time.Minute
)

// SweepLock keeps fleet sweeps exclusive across replicas. While held, the
// lock is refreshed at a third of its TTL.
type SweepLock struct {
	client *Client
	ttl    time.Duration

	mu     sync.Mutex
	token  string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweepLock creates a sweep lock backed by client.
func NewSweepLock(client *Client, ttl time.Duration) *SweepLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &SweepLock{client: client, ttl: ttl}
}

// Acquire takes the lock. It reports false when another holder owns it.
func (l *SweepLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return false, errors.New("sweep lock already held by this process")
	}

	token, ok, err := l.client.AcquireLock(ctx, sweepLockName, l.ttl)
	if err != nil || !ok {
		return false, err
	}

	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.token = token
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.refresh(refreshCtx, token, l.done)
	return true, nil
}

func (l *SweepLock) refresh(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.client.RefreshLock(ctx, sweepLockName, token, l.ttl)
			if err != nil {
				slog.Warn("Failed to refresh sweep lock", "error", err)
				continue
			}
			if !ok {
				slog.Warn("Sweep lock lost before release")
				return
			}
		}
	}
}

// Release gives the lock up. Releasing a lock that is not held is a no-op.
func (l *SweepLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token, cancel, done := l.token, l.cancel, l.done
	l.token, l.cancel, l.done = "", nil, nil
	l.mu.Unlock()

	if token == "" {
		return nil
	}
	cancel()
	<-done
	return l.client.ReleaseLock(ctx, sweepLockName, token)
}
