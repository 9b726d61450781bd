package pairing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// redeemLimitScript is a Lua script for sliding window rate limiting.
var redeemLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    return 0
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)
return 1
`)

// RedisLimiter shares one sliding window across relay instances, so a
// brute-force attempt gets the same allowance no matter how a load
// balancer spreads it. Redis errors deny the attempt: fail closed.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	fullKey := fmt.Sprintf("pair_redeem:%s", key)

	result, err := redeemLimitScript.Run(
		ctx,
		l.client,
		[]string{fullKey},
		time.Now().Unix(),
		int64(l.window.Seconds()),
		l.limit,
	).Int64()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redemption rate limit check failed, denying attempt")
		return false
	}

	return result == 1
}
