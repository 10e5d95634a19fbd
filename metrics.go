package goredlock

import (
	"context"

	"github.com/ceyewan/goredlock/metrics"
)

// Metric names and label keys, following the constant-naming convention of
// the dlock teacher package this client is grounded on.
const (
	MetricAttemptsTotal   = "goredlock_attempts_total"
	MetricVotesTotal      = "goredlock_votes_total"
	MetricAcquireDuration = "goredlock_acquire_duration_seconds"

	LabelOutcome = "outcome"
	LabelVote    = "vote"
)

// clientMetrics wraps the optional metrics.Meter passed via WithMeter. Every
// field is nil-safe: when no meter was supplied, Client falls back to
// metrics.Discard() so every call below is a no-op rather than a nil check
// scattered through the quorum/retry hot path.
type clientMetrics struct {
	attempts *counterOrNil
	votes    *counterOrNil
	acquire  *histogramOrNil
}

type counterOrNil struct{ c metrics.Counter }

func (c *counterOrNil) inc(ctx context.Context, labels ...metrics.Label) {
	if c == nil || c.c == nil {
		return
	}
	c.c.Inc(ctx, labels...)
}

type histogramOrNil struct{ h metrics.Histogram }

func (h *histogramOrNil) record(ctx context.Context, val float64, labels ...metrics.Label) {
	if h == nil || h.h == nil {
		return
	}
	h.h.Record(ctx, val, labels...)
}

func newClientMetrics(meter metrics.Meter) *clientMetrics {
	if meter == nil {
		meter = metrics.Discard()
	}

	attempts, _ := meter.Counter(MetricAttemptsTotal, "total quorum attempts made across all calls")
	votes, _ := meter.Counter(MetricVotesTotal, "total per-store votes tallied, labeled by vote outcome")
	acquire, _ := meter.Histogram(MetricAcquireDuration, "wall-clock time spent inside Acquire, labeled by outcome")

	return &clientMetrics{
		attempts: &counterOrNil{c: attempts},
		votes:    &counterOrNil{c: votes},
		acquire:  &histogramOrNil{h: acquire},
	}
}
