package goredlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ceyewan/goredlock/clog"
)

// AbortSignal is observed cooperatively by a Using routine. The supervisor
// never cancels the routine synchronously (spec §4.6); it is the routine's
// responsibility to check Aborted() at its own suspension points.
type AbortSignal struct {
	mu      sync.Mutex
	aborted bool
	err     error
}

func (a *AbortSignal) trip(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.aborted {
		a.aborted = true
		a.err = err
	}
}

// Aborted reports whether the supervisor has given up extending the lock.
func (a *AbortSignal) Aborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aborted
}

// Err returns the error that caused the abort, or nil if not aborted.
func (a *AbortSignal) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Routine is the caller-supplied body run under an auto-extended lock.
type Routine func(ctx context.Context, abort *AbortSignal) error

// Using acquires a lock over resources, runs routine under it, and releases
// on every exit path while proactively extending the lock so long-running
// routines do not lose ownership (spec §4.6). duration must be a whole
// number of milliseconds, and AutomaticExtensionThreshold must leave at
// least 100ms of headroom before duration.
//
// The supervisor is a small state machine: Acquired (timer scheduled) ↔
// Extending (timer fired, extend in flight) → Aborted (extension failed
// after the lock expired) → Finishing (routine returned; release on the way
// out). The lock is released via the language's defer, guaranteeing release
// runs even if routine panics.
func (c *Client) Using(ctx context.Context, resources []string, duration time.Duration, routine Routine, opts ...SettingsOption) (err error) {
	ms, err := durationMS(duration)
	if err != nil {
		return err
	}

	settings := c.settings.apply(opts)
	if settings.AutomaticExtensionThreshold.Milliseconds() > ms-100 {
		return ErrExtensionThresholdTooClose
	}

	lock, err := c.Acquire(ctx, resources, duration, opts...)
	if err != nil {
		return err
	}

	abort := &AbortSignal{}
	routineDone := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				routineDone <- fmt.Errorf("goredlock: routine panicked: %v", r)
			}
		}()
		routineDone <- routine(ctx, abort)
	}()

	// Finishing: release on every exit path, including a routine panic
	// that this function itself does not recover from the caller's
	// perspective (the inner goroutine above already turned it into an
	// error on routineDone).
	current := lock
	defer func() {
		if _, relErr := c.Release(ctx, current); relErr != nil && err == nil {
			err = relErr
		}
	}()

	timer := time.NewTimer(untilExtend(current, settings))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case routineErr := <-routineDone:
			return routineErr

		case <-timer.C:
			newLock, extendErr := c.Extend(ctx, current, duration, opts...)
			if extendErr == nil {
				current = newLock
				timer.Reset(untilExtend(current, settings))
				continue
			}

			if current.Expiration() > nowMS() {
				c.logger.Debug("automatic extension failed, lock still valid, retrying immediately",
					clog.Any("resources", resources), clog.Error(extendErr))
				timer.Reset(0)
				continue
			}

			c.logger.Error("automatic extension failed after lock expiry, aborting routine",
				clog.Any("resources", resources), clog.Error(extendErr))
			abort.trip(extendErr)

			// The lock is already gone; there is nothing left to release,
			// but we still wait for the routine so Using does not return
			// while it is still running.
			routineErr := <-routineDone
			if routineErr != nil {
				return routineErr
			}
			return extendErr
		}
	}
}

// untilExtend returns the delay until lock's automatic-extension timer
// should fire: the remaining time until expiration, minus the threshold,
// clamped at zero.
func untilExtend(lock *Lock, settings Settings) time.Duration {
	remain := time.Duration(lock.Expiration()-nowMS()) * time.Millisecond
	d := remain - settings.AutomaticExtensionThreshold
	if d < 0 {
		return 0
	}
	return d
}
