package goredlock

import "context"

// StoreClient is the narrow interface a Redis-compatible store must satisfy
// to participate in a quorum. Implementations are expected to be total: a
// failed script evaluation or closed connection must be reported as an
// error, never a panic. The store invoker treats a panicking StoreClient as
// a programming invariant violation (spec §4.3) and lets it crash the
// process rather than swallow it as a vote.
//
// See the store subpackage for a github.com/redis/go-redis/v9 adapter.
type StoreClient interface {
	// EvalSha evaluates a script by its SHA-1 hash. When the store has not
	// cached the script, implementations must return an error whose message
	// begins with "NOSCRIPT" so the invoker can fall back to Eval.
	EvalSha(ctx context.Context, sha1 string, keys []string, args []any) (int64, error)

	// Eval evaluates the raw script text, causing the store to cache it for
	// subsequent EvalSha calls.
	Eval(ctx context.Context, script string, keys []string, args []any) (int64, error)

	// Quit closes the underlying connection. Called once per store when the
	// coordinator's Quit method runs.
	Quit(ctx context.Context) error
}
