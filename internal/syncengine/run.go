package syncengine

import (
	"context"
	"time"
)

// Subscriber delivers connectivity changes.
type Subscriber interface {
	Subscribe() (<-chan bool, func())
}

const minWake = 50 * time.Millisecond

// Run drains whenever connectivity comes back, on an explicit Trigger, when
// the earliest backoff elapses, and at least every poll interval. It blocks
// until ctx is canceled.
func (e *Engine) Run(ctx context.Context, changes Subscriber) error {
	if _, err := e.queue.RecoverInFlight(ctx); err != nil {
		e.logg.Error(ctx, "failed to recover in-flight envelopes", err)
	}

	var online <-chan bool
	if changes != nil {
		ch, cancel := changes.Subscribe()
		defer cancel()
		online = ch
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"poll_interval": e.cfg.PollInterval.String(),
		"max_attempts":  e.cfg.MaxAttempts,
		"concurrency":   e.cfg.Concurrency,
	}), "sync engine started")

	timer := time.NewTimer(e.nextWake(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logg.Info(ctx, "sync engine stopped")
			return nil
		case up, ok := <-online:
			if !ok {
				online = nil
				continue
			}
			if !up {
				continue
			}
			e.logg.Info(ctx, "ledger reachable; draining sync queue")
		case <-e.trigger:
		case <-timer.C:
		}

		if _, err := e.Drain(ctx); err != nil && ctx.Err() == nil {
			e.logg.Error(ctx, "sync drain failed", err)
		}
		resetTimer(timer, e.nextWake(ctx))
	}
}

// nextWake is the jittered poll interval, shortened to the earliest pending
// backoff.
func (e *Engine) nextWake(ctx context.Context) time.Duration {
	wait := e.jitter.apply(e.pollInterval())
	if !e.connectivity.Online() {
		return wait
	}
	next, ok, err := e.queue.NextAttemptAt(ctx)
	if err != nil || !ok {
		return wait
	}
	until := next.Sub(e.now())
	if until < minWake {
		until = minWake
	}
	if until < wait {
		return until
	}
	return wait
}

func (e *Engine) pollInterval() time.Duration {
	if e.cfg.PollInterval <= 0 {
		return 15 * time.Second
	}
	return e.cfg.PollInterval
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
