package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/goredlock"
	"github.com/ceyewan/goredlock/store"
)

// GetRedisAddr returns the Redis address integration tests should dial,
// defaulting to localhost:6379 and overridable via GOREDLOCK_TEST_REDIS_ADDR
// so CI can point at a different host.
func GetRedisAddr() string {
	if addr := os.Getenv("GOREDLOCK_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// GetRedisClient dials a *redis.Client against GetRedisAddr, using DB 1 to
// avoid colliding with the default DB 0, and registers a cleanup that
// closes it.
func GetRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:         GetRedisAddr(),
		DB:           1,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", GetRedisAddr(), err)
	}
	return client
}

// GetRedisStore wraps GetRedisClient in the store.NewRedis adapter, ready to
// hand to goredlock.NewClient as one member of the quorum.
func GetRedisStore(t *testing.T) goredlock.StoreClient {
	t.Helper()
	return store.NewRedis(GetRedisClient(t))
}

// GetRedisCluster dials numStores independent *redis.Client instances
// against DBs 1..numStores of the same server, simulating numStores
// independent stores for quorum tests without requiring numStores separate
// Redis processes.
func GetRedisCluster(t *testing.T, numStores int) []goredlock.StoreClient {
	t.Helper()
	stores := make([]goredlock.StoreClient, numStores)
	for i := 0; i < numStores; i++ {
		client := redis.NewClient(&redis.Options{
			Addr:         GetRedisAddr(),
			DB:           i + 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		t.Cleanup(func() { _ = client.Close() })
		if err := client.Ping(context.Background()).Err(); err != nil {
			t.Skipf("redis not reachable at %s: %v", GetRedisAddr(), err)
		}
		stores[i] = store.NewRedis(client)
	}
	return stores
}

// FlushRedis clears the test database. Used at the start of a test to
// guarantee isolation from a previous run's leftover keys.
func FlushRedis(t *testing.T, client *redis.Client) {
	t.Helper()
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}
