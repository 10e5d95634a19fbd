package goredlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math"
	"sync/atomic"
	"time"

	"github.com/ceyewan/goredlock/clog"
	"github.com/ceyewan/goredlock/metrics"
)

// Lock is the handle spec §3 calls "Lock handle". Resources and Value are
// read-only; Expiration is mutable only by the Client (set to 0 on release,
// or on the superseded handle returned by extend). It is never safe to
// mutate or share a Lock across goroutines for anything but reading
// Resources/Value/Attempts and calling Release/Extend, which delegate back
// to the Client that produced it.
type Lock struct {
	client    *Client
	resources []string
	value     string
	// expirationMS holds the wall-clock Unix time in milliseconds at which
	// ownership is no longer guaranteed, or 0 once dead. It is not read from
	// a monotonic clock.
	expirationMS atomic.Int64
	attempts     []*StatsPromise
}

// Resources returns the ordered set of resource names this lock covers.
func (l *Lock) Resources() []string { return append([]string(nil), l.resources...) }

// Value returns the opaque random value that identifies this lock's holder.
func (l *Lock) Value() string { return l.value }

// Attempts returns the StatsPromises from the call that produced this
// handle, one per retry attempt.
func (l *Lock) Attempts() []*StatsPromise { return l.attempts }

// Expiration returns the deadline, as wall-clock Unix milliseconds, at which
// ownership is no longer guaranteed. A live lock has Expiration() > nowMS(); a dead
// one (after explicit release or extend) returns 0.
func (l *Lock) Expiration() int64 { return l.expirationMS.Load() }

func nowMS() int64 { return time.Now().UnixMilli() }

// Release releases the lock (spec §4.5). It is a thin wrapper around
// Client.Release.
func (l *Lock) Release(ctx context.Context, opts ...SettingsOption) (*ExecutionResult, error) {
	return l.client.Release(ctx, l, opts...)
}

// Extend extends the lock for a further duration (spec §4.5). It is a thin
// wrapper around Client.Extend.
func (l *Lock) Extend(ctx context.Context, duration time.Duration, opts ...SettingsOption) (*Lock, error) {
	return l.client.Extend(ctx, l, duration, opts...)
}

// durationMS validates that d is a positive, whole number of milliseconds
// (spec §4.5: "Duration must be an integer value in milliseconds.") and
// returns it as an int64.
func durationMS(d time.Duration) (int64, error) {
	if d <= 0 || d%time.Millisecond != 0 {
		return 0, ErrInvalidDuration
	}
	return d.Milliseconds(), nil
}

func driftMS(driftFactor float64, durationMS int64) int64 {
	return int64(math.Round(driftFactor*float64(durationMS))) + 2
}

func randomValue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Acquire acquires exclusive ownership of every named resource (spec §4.5).
func (c *Client) Acquire(ctx context.Context, resources []string, duration time.Duration, opts ...SettingsOption) (*Lock, error) {
	ms, err := durationMS(duration)
	if err != nil {
		return nil, err
	}

	settings := c.settings.apply(opts)
	start := nowMS()

	value, err := randomValue()
	if err != nil {
		return nil, err
	}

	argv := []any{value, ms}
	attempts, err := c.retry.run(ctx, c.scripts.entry(ScriptAcquire), resources, argv, settings)
	elapsed := time.Since(time.UnixMilli(start)).Seconds()
	if err != nil {
		c.metrics.acquire.record(ctx, elapsed, metrics.L(LabelOutcome, "failure"))
		c.cleanupPartialAcquire(ctx, resources, value, attempts)
		return nil, err
	}
	c.metrics.acquire.record(ctx, elapsed, metrics.L(LabelOutcome, "success"))

	drift := driftMS(settings.DriftFactor, ms)
	lock := &Lock{client: c, resources: append([]string(nil), resources...), value: value, attempts: attempts}
	lock.expirationMS.Store(start + ms - drift)

	c.logger.Debug("lock acquired", clog.Any("resources", resources), clog.Int("attempts", len(attempts)))
	return lock, nil
}

// cleanupPartialAcquire issues a best-effort release (RetryCount: 0) for a
// value that may still hold a minority of stores after a failed acquire
// (spec §4.4 "Partial-acquisition cleanup"), swallowing any error from it.
// It first waits for every store to answer the failed acquire attempts, so
// no acquire lands after the release, and returns only once every store has
// answered the release.
func (c *Client) cleanupPartialAcquire(ctx context.Context, resources []string, value string, attempts []*StatsPromise) {
	for _, p := range attempts {
		p.Wait()
	}
	releases, _ := c.retry.run(ctx, c.scripts.entry(ScriptRelease), resources, []any{value}, Settings{RetryCount: 0})
	for _, p := range releases {
		p.Wait()
	}
}

// Extend extends lock's ownership for a further duration (spec §4.5). On
// success the old handle is invalidated (Expiration() becomes 0) and a new
// handle is returned.
func (c *Client) Extend(ctx context.Context, lock *Lock, duration time.Duration, opts ...SettingsOption) (*Lock, error) {
	ms, err := durationMS(duration)
	if err != nil {
		return nil, err
	}

	settings := c.settings.apply(opts)
	start := nowMS()

	if lock.Expiration() < start {
		return nil, ErrLockExpired
	}

	argv := []any{lock.value, ms}
	attempts, err := c.retry.run(ctx, c.scripts.entry(ScriptExtend), lock.resources, argv, settings)
	if err != nil {
		return nil, err
	}

	// Success: the old handle is superseded.
	lock.expirationMS.Store(0)

	drift := driftMS(settings.DriftFactor, ms)
	newLock := &Lock{client: c, resources: append([]string(nil), lock.resources...), value: lock.value, attempts: attempts}
	newLock.expirationMS.Store(start + ms - drift)

	c.logger.Debug("lock extended", clog.Any("resources", lock.resources), clog.Int("attempts", len(attempts)))
	return newLock, nil
}

// Release releases lock (spec §4.5). The handle is invalidated immediately,
// regardless of whether quorum is reached on the release script; a failure
// to reach quorum surfaces as an *ExecutionError, which the caller may
// ignore since the lock's TTL will eventually reclaim the keys.
func (c *Client) Release(ctx context.Context, lock *Lock, opts ...SettingsOption) (*ExecutionResult, error) {
	lock.expirationMS.Store(0)

	settings := c.settings.apply(opts)
	attempts, err := c.retry.run(ctx, c.scripts.entry(ScriptRelease), lock.resources, []any{lock.value}, settings)

	result := &ExecutionResult{}
	if len(attempts) > 0 {
		result.Stats = attempts[len(attempts)-1]
	}
	if err != nil {
		result.Vote = VoteAgainst
		result.Error = err
		return result, err
	}
	result.Vote = VoteFor
	return result, nil
}
