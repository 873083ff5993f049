// Package rotation runs the periodic session-cookie rotation sweep.
package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/appauth/internal/cache"
	"github.com/kiranshivaraju/appauth/internal/store"
)

// Rotator moves active sessions to pending-rotation.
type Rotator interface {
	RotateAllPending(ctx context.Context) (int64, error)
}

// Locker is a distributed mutual-exclusion lock.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// Sweeper runs RotateAllPending under a lock so only one replica sweeps at a time.
type Sweeper struct {
	rotator Rotator
	locker  Locker
	tx      store.TxRunner
	lockTTL time.Duration
}

func NewSweeper(r Rotator, l Locker, tx store.TxRunner, lockTTL time.Duration) *Sweeper {
	return &Sweeper{rotator: r, locker: l, tx: tx, lockTTL: lockTTL}
}

// Sweep runs one rotation. ran is false when another holder had the lock.
func (s *Sweeper) Sweep(ctx context.Context) (rotated int64, ran bool, err error) {
	token, ok, err := s.locker.AcquireLock(ctx, cache.RotationLockKey(), s.lockTTL)
	if err != nil {
		return 0, false, fmt.Errorf("acquire rotation lock: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	defer func() {
		if _, relErr := s.locker.ReleaseLock(context.WithoutCancel(ctx), cache.RotationLockKey(), token); relErr != nil {
			slog.Warn("rotation lock release failed", "error", relErr)
		}
	}()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		rotated, err = s.rotator.RotateAllPending(ctx)
		return err
	})
	if err != nil {
		return 0, true, err
	}
	return rotated, true, nil
}

// Run sweeps every interval until ctx is cancelled. Errors are logged and the
// loop continues.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("session rotation scheduled", "interval", interval)
	for {
		select {
		case <-ticker.C:
			n, ran, err := s.Sweep(ctx)
			switch {
			case err != nil:
				slog.Error("session rotation failed", "error", err)
			case !ran:
				slog.Debug("session rotation skipped, lock held elsewhere")
			default:
				slog.Info("session rotation complete", "rotated", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
