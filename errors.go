package goredlock

import (
	"fmt"

	"github.com/ceyewan/goredlock/xerrors"
)

// Plain domain errors (spec §6, category 4 in §7: programmer errors that
// fail loudly rather than becoming a vote).
var (
	// ErrInvalidDuration is returned when a caller passes a non-integer
	// millisecond duration. Go's time.Duration is always an integer number
	// of nanoseconds, so this instead guards against non-positive or
	// sub-millisecond durations that cannot round-trip through the scripts'
	// millisecond PX argument.
	ErrInvalidDuration = xerrors.New("goredlock: duration must be a positive integer number of milliseconds")

	// ErrEmptyStoreSet is returned by NewClient when the store set is empty.
	ErrEmptyStoreSet = xerrors.New("goredlock: at least one store is required")

	// ErrExtensionThresholdTooClose is returned by Using when
	// AutomaticExtensionThreshold leaves less than 100ms of headroom before
	// duration.
	ErrExtensionThresholdTooClose = xerrors.New("goredlock: automaticExtensionThreshold must be at most duration - 100ms")

	// ErrLockExpired is returned by Extend when the lock's expiration has
	// already passed.
	ErrLockExpired = xerrors.New("goredlock: cannot extend an already-expired lock")
)

// ResourceLockedError reports that one or more requested keys were already
// held by another value when a script ran on a store. It is the per-store
// "against" vote error raised by the store invoker (spec §4.2); it is not,
// by itself, fatal to a call — a quorum of other stores may still vote for.
type ResourceLockedError struct {
	// Applied is the number of keys the script actually touched on that
	// store.
	Applied int
	// Requested is the number of keys the script was asked to touch.
	Requested int
}

func (e *ResourceLockedError) Error() string {
	return fmt.Sprintf("the operation was applied to: %d of the %d requested resources", e.Applied, e.Requested)
}

// ExecutionError reports that the retry budget was exhausted without a
// quorum of "for" votes. Attempts carries one StatsPromise per attempt made,
// in order, each resolving to the full per-store vote tally for that
// attempt once every store has replied.
type ExecutionError struct {
	Attempts []*StatsPromise
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("goredlock: quorum not reached after %d attempt(s)", len(e.Attempts))
}
