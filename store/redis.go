// Package store adapts concrete backends to goredlock.StoreClient.
package store

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/goredlock"
)

// redisClient adapts redis.Cmdable to goredlock.StoreClient. It calls
// EvalSha/Eval directly rather than using redis.Script, because the quorum
// attempter needs to control the NOSCRIPT-fallback retry itself (spec
// §4.1/§4.2) rather than have it hidden inside redis.Script.Run.
type redisClient struct {
	cmdable redis.Cmdable
	closer  func() error
}

// NewRedis adapts an existing *redis.Client. Quit closes the client.
func NewRedis(client *redis.Client) goredlock.StoreClient {
	return &redisClient{cmdable: client, closer: client.Close}
}

// NewRedisCluster adapts an existing *redis.ClusterClient, for a store that
// is itself a Redis Cluster deployment acting as one member of the quorum.
func NewRedisCluster(client *redis.ClusterClient) goredlock.StoreClient {
	return &redisClient{cmdable: client, closer: client.Close}
}

func (r *redisClient) EvalSha(ctx context.Context, sha1 string, keys []string, args []any) (int64, error) {
	return r.cmdable.EvalSha(ctx, sha1, keys, args...).Int64()
}

func (r *redisClient) Eval(ctx context.Context, script string, keys []string, args []any) (int64, error) {
	return r.cmdable.Eval(ctx, script, keys, args...).Int64()
}

func (r *redisClient) Quit(ctx context.Context) error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
