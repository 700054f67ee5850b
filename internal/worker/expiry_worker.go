package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = time.Minute

// Expirer closes sessions that outlived their deadline.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// StartExpiryWorker sweeps expired impersonation sessions every interval until ctx
// is cancelled. The returned channel is closed once the loop has exited.
func StartExpiryWorker(ctx context.Context, expirer Expirer, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if expirer == nil {
		close(done)
		return done
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("expiry_worker")

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(ctx, expirer, logger)
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, expirer Expirer, logger *zap.Logger) {
	closed, err := expirer.ExpireStale(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("impersonation sweep failed", zap.Error(err))
		}
		return
	}
	if closed > 0 {
		logger.Info("expired impersonation sessions", zap.Int("closed", closed))
	}
}
