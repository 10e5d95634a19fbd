// Package goredlock implements a client-side distributed mutual-exclusion
// primitive on top of an odd-numbered set of independent Redis-compatible
// stores, following the Redlock algorithm.
//
// Callers request exclusive, time-bounded ownership of one or more named
// resources via Client.Acquire, Client.Using, or the scoped Client.Using
// supervisor. The coordinator fans a scripted operation out to every store,
// tallies votes, and decides success once a quorum of floor(N/2)+1 stores
// agree.
//
// The store client is supplied by the caller: see the store subpackage for
// a github.com/redis/go-redis/v9 adapter, or implement StoreClient directly
// against any endpoint that can evaluate Lua by cached hash with fallback to
// raw script text, and can be closed.
package goredlock
