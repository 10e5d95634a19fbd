package goredlock

import (
	"context"

	"github.com/ceyewan/goredlock/clog"
	"github.com/ceyewan/goredlock/metrics"
)

// quorumAttempter fans a single attempt out to every store in parallel and
// resolves as soon as a quorum of "for" or "against" votes is reached (spec
// §4.3). The decision never waits on stragglers, but a deferred
// StatsPromise is always returned so late replies are not lost.
type quorumAttempter struct {
	stores  []StoreClient
	invoker *storeInvoker
	emitter *ErrorEmitter
	logger  clog.Logger
	metrics *clientMetrics
}

func newQuorumAttempter(stores []StoreClient, invoker *storeInvoker, emitter *ErrorEmitter, logger clog.Logger, metrics *clientMetrics) *quorumAttempter {
	return &quorumAttempter{stores: stores, invoker: invoker, emitter: emitter, logger: logger, metrics: metrics}
}

// attempt runs entry once against every store and blocks only until the
// first vote kind reaches quorum. The returned StatsPromise resolves once
// every store has replied, whichever came first.
func (q *quorumAttempter) attempt(ctx context.Context, entry scriptEntry, keys []string, args []any) (Vote, *StatsPromise) {
	n := len(q.stores)
	resultsCh := make(chan clientExecutionResult, n)

	for i, client := range q.stores {
		go func(i int, client StoreClient) {
			resultsCh <- q.invoker.invoke(ctx, client, i, entry, keys, args)
		}(i, client)
	}

	quorum := quorumSize(n)
	decisionCh := make(chan Vote, 1)
	promise := newStatsPromise()

	go func() {
		stats := newExecutionStats(n)
		decided := false

		for received := 0; received < n; received++ {
			res := <-resultsCh

			switch res.vote {
			case VoteFor:
				stats.VotesFor[res.storeIndex] = res.value
				q.metrics.votes.inc(ctx, metrics.L(LabelVote, "for"))
			case VoteAgainst:
				stats.VotesAgainst[res.storeIndex] = res.err
				q.emitter.emit(res.err)
				q.metrics.votes.inc(ctx, metrics.L(LabelVote, "against"))
				q.logger.Warn("store vote against",
					clog.Int("store", res.storeIndex), clog.Error(res.err))
			}

			if !decided {
				if len(stats.VotesFor) >= quorum {
					decided = true
					decisionCh <- VoteFor
				} else if len(stats.VotesAgainst) >= quorum {
					decided = true
					decisionCh <- VoteAgainst
				}
			}
		}

		promise.resolve(stats)
	}()

	return <-decisionCh, promise
}
