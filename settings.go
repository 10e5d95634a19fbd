package goredlock

import "time"

// Settings holds the tunables of the quorum algorithm. They are frozen at
// Client construction (NewClient); per-call overrides are layered on top of
// a copy and never mutate the Client's own Settings.
type Settings struct {
	// DriftFactor is the fraction of the requested duration subtracted, plus
	// 2ms, from the computed deadline to tolerate store clock skew and
	// expiry granularity.
	DriftFactor float64

	// RetryCount is the maximum number of additional attempts after the
	// first. -1 means unlimited.
	RetryCount int

	// RetryDelay is the base inter-attempt delay.
	RetryDelay time.Duration

	// RetryJitter is the symmetric uniform noise added to RetryDelay
	// (range ±RetryJitter).
	RetryJitter time.Duration

	// AutomaticExtensionThreshold is the remaining-time threshold at which
	// Using pre-emptively extends the lock.
	AutomaticExtensionThreshold time.Duration
}

// DefaultSettings returns the Settings defaults named in spec §3.
func DefaultSettings() Settings {
	return Settings{
		DriftFactor:                 0.01,
		RetryCount:                  10,
		RetryDelay:                  200 * time.Millisecond,
		RetryJitter:                 100 * time.Millisecond,
		AutomaticExtensionThreshold: 500 * time.Millisecond,
	}
}

// SettingsOption overrides one field of Settings. Options passed to
// NewClient set the Client's frozen defaults; options passed to a per-call
// method (Acquire, Extend, Using) layer on top of those defaults for that
// call only.
type SettingsOption func(*Settings)

// WithDriftFactor overrides DriftFactor.
func WithDriftFactor(factor float64) SettingsOption {
	return func(s *Settings) { s.DriftFactor = factor }
}

// WithRetryCount overrides RetryCount. -1 means unlimited.
func WithRetryCount(count int) SettingsOption {
	return func(s *Settings) { s.RetryCount = count }
}

// WithRetryDelay overrides RetryDelay.
func WithRetryDelay(delay time.Duration) SettingsOption {
	return func(s *Settings) { s.RetryDelay = delay }
}

// WithRetryJitter overrides RetryJitter.
func WithRetryJitter(jitter time.Duration) SettingsOption {
	return func(s *Settings) { s.RetryJitter = jitter }
}

// WithAutomaticExtensionThreshold overrides AutomaticExtensionThreshold.
func WithAutomaticExtensionThreshold(threshold time.Duration) SettingsOption {
	return func(s *Settings) { s.AutomaticExtensionThreshold = threshold }
}

// apply returns a copy of s with every option applied, leaving s untouched.
func (s Settings) apply(opts []SettingsOption) Settings {
	out := s
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

func quorumSize(membershipSize int) int {
	return membershipSize/2 + 1
}
