package goredlock

import (
	"context"
	"strings"

	"github.com/ceyewan/goredlock/clog"
	"github.com/ceyewan/goredlock/xerrors"
)

// noscriptPrefix is the reply Redis (and compatible stores) use to signal
// that EVALSHA was called with a hash the store has not cached yet.
const noscriptPrefix = "NOSCRIPT"

// storeInvoker executes one script on one store (spec §4.2). It is the only
// component that talks to a StoreClient directly.
type storeInvoker struct {
	logger clog.Logger
}

func newStoreInvoker(logger clog.Logger) *storeInvoker {
	return &storeInvoker{logger: logger}
}

// invoke runs entry on client, falling back from EvalSha to Eval on a
// NOSCRIPT reply, and normalises the result into a clientExecutionResult.
// client is expected to be total: any panic here is treated as a
// programming invariant violation and is allowed to propagate and crash the
// process (spec §4.3, open question (b)), after logging which store
// misbehaved first.
func (inv *storeInvoker) invoke(ctx context.Context, client StoreClient, storeIndex int, entry scriptEntry, keys []string, args []any) (result clientExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("store client panicked during script invocation",
				clog.Int("store", storeIndex),
				clog.String("script", entry.kind.String()),
				clog.Any("recovered", r),
			)
			panic(r)
		}
	}()

	n, err := client.EvalSha(ctx, entry.sha1, keys, args)
	if err != nil && strings.HasPrefix(err.Error(), noscriptPrefix) {
		inv.logger.Debug("script not cached on store, falling back to EVAL",
			clog.Int("store", storeIndex), clog.String("script", entry.kind.String()))
		n, err = client.Eval(ctx, entry.text, keys, args)
	}

	if err != nil {
		result = clientExecutionResult{
			storeIndex: storeIndex,
			vote:       VoteAgainst,
			err:        xerrors.Wrapf(err, "store %d: %s script failed", storeIndex, entry.kind),
		}
		return result
	}

	if int(n) == len(keys) {
		return clientExecutionResult{storeIndex: storeIndex, vote: VoteFor, value: n}
	}

	return clientExecutionResult{
		storeIndex: storeIndex,
		vote:       VoteAgainst,
		err: &ResourceLockedError{
			Applied:   int(n),
			Requested: len(keys),
		},
	}
}
