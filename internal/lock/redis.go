package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL   = 10 * time.Second
	redisRetryBackoff = 25 * time.Millisecond
	redisKeyPrefix    = "sitecrew:lock:"
)

// Only the owner's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every server instance pointing at the same
// Redis. A holder that dies keeps the key until ttl expires.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Locker = (*Redis)(nil)

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	k := redisKeyPrefix + key
	token := ulid.Make().String()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// release even when the request context is already done
				_ = releaseScript.Run(context.WithoutCancel(ctx), r.client, []string{k}, token).Err()
			}, nil
		}
		t := time.NewTimer(redisRetryBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
