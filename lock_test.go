package goredlock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/goredlock"
	"github.com/ceyewan/goredlock/testkit"
)

// fastSettings keeps the retry loop from actually sleeping ~200ms per
// attempt, since these tests only care about the attempt count and final
// vote, not wall-clock retry pacing.
func fastSettings(opts ...goredlock.SettingsOption) goredlock.ClientOption {
	base := []goredlock.SettingsOption{
		goredlock.WithRetryDelay(time.Millisecond),
		goredlock.WithRetryJitter(0),
	}
	return goredlock.WithSettings(append(base, opts...)...)
}

// Scenario 1 (spec §8): acquire then extend then release.
func TestEndToEnd_AcquireExtendRelease(t *testing.T) {
	stores := testkit.NewFakeCluster(1)
	fake := stores[0].(*testkit.FakeStore)
	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	lock, err := c.Acquire(context.Background(), []string{"{r}a"}, 10*time.Second)
	require.NoError(t, err)

	value, live := fake.Peek("{r}a")
	require.True(t, live)
	assert.Equal(t, lock.Value(), value)

	extended, err := c.Extend(context.Background(), lock, 30*time.Second)
	require.NoError(t, err)
	assert.Zero(t, lock.Expiration(), "old handle must be invalidated on successful extend")

	value, live = fake.Peek("{r}a")
	require.True(t, live)
	assert.Equal(t, extended.Value(), value)
	assert.Equal(t, lock.Value(), extended.Value())

	_, err = c.Release(context.Background(), extended)
	require.NoError(t, err)

	_, live = fake.Peek("{r}a")
	assert.False(t, live, "key must be gone after release")
}

// Scenario 2 (spec §8): concurrent acquire on overlapping resources.
func TestExclusivity_OverlappingResourcesConflict(t *testing.T) {
	stores := testkit.NewFakeCluster(1)
	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	ctx := context.Background()
	lockA, err := c.Acquire(ctx, []string{"{r}14", "{r}25"}, 10*time.Second)
	require.NoError(t, err)

	_, err = c.Acquire(ctx, []string{"{r}25", "{r}36"}, 10*time.Second)
	require.Error(t, err)

	var execErr *goredlock.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Len(t, execErr.Attempts, 11)

	for _, promise := range execErr.Attempts {
		stats := promise.Wait()
		for _, voteErr := range stats.VotesAgainst {
			var locked *goredlock.ResourceLockedError
			assert.ErrorAs(t, voteErr, &locked)
		}
	}

	fake := stores[0].(*testkit.FakeStore)
	v14, live := fake.Peek("{r}14")
	require.True(t, live)
	assert.Equal(t, lockA.Value(), v14)
	v25, live := fake.Peek("{r}25")
	require.True(t, live)
	assert.Equal(t, lockA.Value(), v25)
	_, live = fake.Peek("{r}36")
	assert.False(t, live)
}

// Scenario 3 (spec §8): after the lock expires, a fresh acquire succeeds with
// a different value.
func TestReacquireAfterExpiry_YieldsDifferentValue(t *testing.T) {
	stores := testkit.NewFakeCluster(1)
	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	ctx := context.Background()
	first, err := c.Acquire(ctx, []string{"{r}d"}, 200*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)

	second, err := c.Acquire(ctx, []string{"{r}d"}, 200*time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, first.Value(), second.Value())
}

// Scenario 4 (spec §8): with the store unreachable, acquire exhausts the
// retry budget and every against-vote carries a connection fault.
func TestUnreachableStore_ExhaustsRetryBudget(t *testing.T) {
	stores := testkit.NewFakeCluster(1)
	fake := stores[0].(*testkit.FakeStore)
	fake.SetUnreachable(true)

	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), []string{"{r}b"}, 10*time.Second)
	require.Error(t, err)

	var execErr *goredlock.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Len(t, execErr.Attempts, 11)

	for _, promise := range execErr.Attempts {
		stats := promise.Wait()
		require.Len(t, stats.VotesAgainst, 1)
		for _, voteErr := range stats.VotesAgainst {
			assert.Contains(t, voteErr.Error(), "connection closed")
		}
	}
}

// Scenario 5 (spec §8): a minority store pre-populated with a foreign value
// still allows quorum acquire; release leaves the minority untouched.
func TestPartialFailureTolerance_MinorityForeignValue(t *testing.T) {
	stores := testkit.NewFakeCluster(3)
	minority := stores[0].(*testkit.FakeStore)
	minority.Seed("{r}b", "foreign-value", time.Hour)

	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	lock, err := c.Acquire(context.Background(), []string{"{r}b"}, 10*time.Second)
	require.NoError(t, err)

	value, live := minority.Peek("{r}b")
	require.True(t, live)
	assert.Equal(t, "foreign-value", value, "minority store must be untouched by a successful quorum acquire")

	_, err = c.Release(context.Background(), lock)
	require.NoError(t, err)

	for _, s := range stores[1:] {
		_, live := s.(*testkit.FakeStore).Peek("{r}b")
		assert.False(t, live)
	}
	value, live = minority.Peek("{r}b")
	require.True(t, live)
	assert.Equal(t, "foreign-value", value)
}

// Scenario 6 (spec §8): two of three stores pre-populated means acquire
// fails the quorum, with the exact "0 of 1" message.
func TestPartialFailureTolerance_MajorityForeignValueFails(t *testing.T) {
	stores := testkit.NewFakeCluster(3)
	stores[0].(*testkit.FakeStore).Seed("{r}c", "foreign-1", time.Hour)
	stores[1].(*testkit.FakeStore).Seed("{r}c", "foreign-2", time.Hour)

	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), []string{"{r}c"}, 10*time.Second)
	require.Error(t, err)

	var execErr *goredlock.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Len(t, execErr.Attempts, 11)

	stats := execErr.Attempts[0].Wait()
	for _, voteErr := range stats.VotesAgainst {
		assert.Equal(t, "the operation was applied to: 0 of the 1 requested resources", voteErr.Error())
	}
}

// Drifted deadline (spec §8).
func TestDriftedDeadline(t *testing.T) {
	stores := testkit.NewFakeCluster(1)
	c, err := goredlock.NewClient(stores, fastSettings(), goredlock.WithSettings(goredlock.WithDriftFactor(0.01)))
	require.NoError(t, err)

	before := time.Now().UnixMilli()
	lock, err := c.Acquire(context.Background(), []string{"{r}drift"}, 10_000*time.Millisecond)
	require.NoError(t, err)
	after := time.Now().UnixMilli()

	drift := int64(100) + 2 // round(0.01 * 10000) + 2
	minExpected := before + 10_000 - drift
	maxExpected := after + 10_000 - drift
	assert.GreaterOrEqual(t, lock.Expiration(), minExpected)
	assert.LessOrEqual(t, lock.Expiration(), maxExpected)
}

// Extend atomicity (spec §8): extending an expired lock fails without
// mutating any key.
func TestExtendAtomicity_ExpiredLockRejected(t *testing.T) {
	stores := testkit.NewFakeCluster(1)
	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	lock, err := c.Acquire(context.Background(), []string{"{r}e"}, 50*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	_, err = c.Extend(context.Background(), lock, 10*time.Second)
	require.ErrorIs(t, err, goredlock.ErrLockExpired)
}

// Invalid durations are rejected as programmer errors (spec §6/§7).
func TestAcquire_RejectsNonIntegerMillisecondDuration(t *testing.T) {
	stores := testkit.NewFakeCluster(1)
	c, err := goredlock.NewClient(stores)
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), []string{"{r}f"}, 1500*time.Microsecond)
	assert.ErrorIs(t, err, goredlock.ErrInvalidDuration)

	_, err = c.Acquire(context.Background(), []string{"{r}f"}, 0)
	assert.ErrorIs(t, err, goredlock.ErrInvalidDuration)
}

// Partial-acquisition cleanup: a failed acquire on an overlapping key set
// must not leave the value behind on the stores it did win.
func TestAcquire_CleansUpPartialAcquisitionOnFailure(t *testing.T) {
	stores := testkit.NewFakeCluster(3)
	// Seed two of the three stores so quorum cannot be reached for "{r}g".
	stores[0].(*testkit.FakeStore).Seed("{r}g", "foreign-1", time.Hour)
	stores[1].(*testkit.FakeStore).Seed("{r}g", "foreign-2", time.Hour)

	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	_, err = c.Acquire(context.Background(), []string{"{r}g"}, 10*time.Second)
	require.Error(t, err)

	// The third (unlocked) store must have been cleaned up, not left holding
	// our value after the overall acquire failed.
	_, live := stores[2].(*testkit.FakeStore).Peek("{r}g")
	assert.False(t, live)
}

func TestErrorEmitter_DefaultNoopDoesNotPanic(t *testing.T) {
	stores := testkit.NewFakeCluster(1)
	stores[0].(*testkit.FakeStore).Seed("{r}h", "foreign", time.Hour)
	c, err := goredlock.NewClient(stores, fastSettings())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, _ = c.Acquire(context.Background(), []string{"{r}h"}, 10*time.Second)
	})
}

// Concurrency: five goroutines racing on one client to acquire the same
// resource must produce exactly one winner.
func TestConcurrentAcquire_ExactlyOneWinner(t *testing.T) {
	stores := testkit.NewFakeCluster(3)
	c, err := goredlock.NewClient(stores, fastSettings(goredlock.WithRetryCount(0)))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Acquire(context.Background(), []string{"{r}race"}, 5*time.Second)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
