package goredlock

import (
	"context"
	"math/rand"
	"time"

	"github.com/ceyewan/goredlock/clog"
	"github.com/ceyewan/goredlock/metrics"
)

// retryDriver wraps a quorumAttempter in a retry loop governed by
// RetryCount, RetryDelay and RetryJitter (spec §4.4).
type retryDriver struct {
	attempter *quorumAttempter
	logger    clog.Logger
	metrics   *clientMetrics
}

func newRetryDriver(attempter *quorumAttempter, logger clog.Logger, metrics *clientMetrics) *retryDriver {
	return &retryDriver{attempter: attempter, logger: logger, metrics: metrics}
}

// run loops attempter.attempt until a "for" vote is decided or the retry budget
// (settings.RetryCount) is exhausted. It returns the full list of
// per-attempt StatsPromises either way; on exhaustion the returned error is
// an *ExecutionError carrying that same list.
func (d *retryDriver) run(ctx context.Context, entry scriptEntry, keys []string, args []any, settings Settings) ([]*StatsPromise, error) {
	var attempts []*StatsPromise

	for {
		vote, promise := d.attempter.attempt(ctx, entry, keys, args)
		attempts = append(attempts, promise)
		d.metrics.attempts.inc(ctx, metrics.L("script", entry.kind.String()))

		if vote == VoteFor {
			return attempts, nil
		}

		if settings.RetryCount >= 0 && len(attempts) == settings.RetryCount+1 {
			d.logger.Warn("quorum not reached, retry budget exhausted",
				clog.String("script", entry.kind.String()), clog.Int("attempts", len(attempts)))
			return attempts, &ExecutionError{Attempts: attempts}
		}

		delay := jitteredDelay(settings.RetryDelay, settings.RetryJitter)
		d.logger.Debug("quorum attempt voted against, retrying",
			clog.String("script", entry.kind.String()),
			clog.Int("attempt", len(attempts)),
			clog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// jitteredDelay returns base plus a symmetric uniform random offset in
// [-jitter, +jitter], clamped at zero.
func jitteredDelay(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int63n(int64(2*jitter+1))) - jitter
	d := base + offset
	if d < 0 {
		return 0
	}
	return d
}
