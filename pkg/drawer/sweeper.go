package drawer

import (
	"context"
	"time"
)

// SessionSweeper is the part of Service the background loop needs.
type SessionSweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// Sweeper periodically auto-closes stale sessions so they do not wait for the
// cashier's next request. An interval of 0 disables the loop.
type Sweeper struct {
	sweeper  SessionSweeper
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
}

// NewSweeper creates a sweeper but does not start it.
func NewSweeper(sweeper SessionSweeper, interval time.Duration) *Sweeper {
	return &Sweeper{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs an immediate sweep, then repeats on the configured interval until
// ctx is cancelled or Stop is called.
func (sweeper *Sweeper) Start(ctx context.Context) {
	if sweeper.started {
		return
	}
	sweeper.started = true
	if sweeper.interval <= 0 {
		close(sweeper.done)
		return
	}
	ctx, sweeper.cancel = context.WithCancel(ctx)
	go sweeper.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (sweeper *Sweeper) Stop() {
	if !sweeper.started {
		return
	}
	if sweeper.cancel != nil {
		sweeper.cancel()
	}
	<-sweeper.done
}

func (sweeper *Sweeper) loop(ctx context.Context) {
	defer close(sweeper.done)

	// Failures are logged by the service; the next tick retries.
	_, _ = sweeper.sweeper.Sweep(ctx)

	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = sweeper.sweeper.Sweep(ctx)
		}
	}
}
