package testkit

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ceyewan/goredlock"
)

// errUnreachable mimics the error message shape a real Redis client raises
// when its connection has been closed underneath it (spec §8 scenario 4:
// "every against-vote carrying a connection-closed error message").
var errUnreachable = errors.New("connection closed")

type fakeEntry struct {
	value     string
	expiresAt time.Time
}

func (e fakeEntry) liveAt(now time.Time) bool {
	return e.value != "" && now.Before(e.expiresAt)
}

// FakeStore is an in-memory goredlock.StoreClient that implements the exact
// Lua-script contracts of spec §4.1 (acquire / extend / release) without a
// Lua interpreter or a network round trip, so the property tests of spec §8
// run deterministically and fast. It recognizes which of the three scripts
// it was asked to run by its text (it has no interpreter to run it with),
// then applies that operation directly to its in-memory key map.
type FakeStore struct {
	mu          sync.Mutex
	data        map[string]fakeEntry
	cachedKinds map[string]string // sha1 -> "acquire" | "extend" | "release"
	unreachable bool
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		data:        make(map[string]fakeEntry),
		cachedKinds: make(map[string]string),
	}
}

// NewFakeCluster returns n independent FakeStores, ready to hand to
// goredlock.NewClient as a fixed membership set.
func NewFakeCluster(n int) []goredlock.StoreClient {
	stores := make([]goredlock.StoreClient, n)
	for i := range stores {
		stores[i] = NewFakeStore()
	}
	return stores
}

// SetUnreachable makes every subsequent call fail as if the connection had
// been closed, for testing spec §8 scenario 4.
func (f *FakeStore) SetUnreachable(unreachable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreachable = unreachable
}

// Seed directly sets a key's value and TTL, bypassing the acquire script,
// for testing pre-populated stores (spec §8 scenarios 5 and 6).
func (f *FakeStore) Seed(key, value string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fakeEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Peek returns a key's current value and whether it is live (present and
// unexpired), without mutating anything.
func (f *FakeStore) Peek(key string) (value string, live bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok || !e.liveAt(time.Now()) {
		return "", false
	}
	return e.value, true
}

func detectScriptKind(script string) string {
	switch {
	case strings.Contains(script, `redis.call("del"`):
		return "release"
	case strings.Contains(script, `redis.call("exists"`):
		return "acquire"
	default:
		return "extend"
	}
}

func (f *FakeStore) Eval(ctx context.Context, script string, keys []string, args []any) (int64, error) {
	f.mu.Lock()
	if f.unreachable {
		f.mu.Unlock()
		return 0, errUnreachable
	}
	sum := sha1.Sum([]byte(script))
	hash := hex.EncodeToString(sum[:])
	kind := detectScriptKind(script)
	f.cachedKinds[hash] = kind
	f.mu.Unlock()

	return f.run(kind, keys, args)
}

func (f *FakeStore) EvalSha(ctx context.Context, sha1hex string, keys []string, args []any) (int64, error) {
	f.mu.Lock()
	if f.unreachable {
		f.mu.Unlock()
		return 0, errUnreachable
	}
	kind, ok := f.cachedKinds[sha1hex]
	f.mu.Unlock()
	if !ok {
		return 0, errors.New("NOSCRIPT No matching script. Please use EVAL.")
	}
	return f.run(kind, keys, args)
}

func (f *FakeStore) Quit(ctx context.Context) error {
	return nil
}

func (f *FakeStore) run(kind string, keys []string, args []any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch kind {
	case "acquire":
		value := args[0].(string)
		ttl := toDuration(args[1])
		now := time.Now()
		for _, key := range keys {
			if e, ok := f.data[key]; ok && e.liveAt(now) {
				return 0, nil
			}
		}
		for _, key := range keys {
			f.data[key] = fakeEntry{value: value, expiresAt: now.Add(ttl)}
		}
		return int64(len(keys)), nil

	case "extend":
		value := args[0].(string)
		ttl := toDuration(args[1])
		now := time.Now()
		for _, key := range keys {
			e, ok := f.data[key]
			if !ok || !e.liveAt(now) || e.value != value {
				return 0, nil
			}
		}
		for _, key := range keys {
			f.data[key] = fakeEntry{value: value, expiresAt: now.Add(ttl)}
		}
		return int64(len(keys)), nil

	case "release":
		value := args[0].(string)
		now := time.Now()
		var count int64
		for _, key := range keys {
			e, ok := f.data[key]
			if ok && e.liveAt(now) && e.value == value {
				delete(f.data, key)
				count++
			}
		}
		return count, nil

	default:
		return 0, errors.New("testkit: unrecognized script kind")
	}
}

func toDuration(arg any) time.Duration {
	switch v := arg.(type) {
	case int64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	default:
		panic("testkit: duration argument must be an integer number of milliseconds")
	}
}
