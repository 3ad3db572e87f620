package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, counts members and adds the new
// event only when the count is under the limit. Returns {allowed, remaining, retry_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now_ms - window_ms)
local count = redis.call("ZCARD", key)

local allowed = 0
if count < limit then
  redis.call("ZADD", key, now_ms, member)
  count = count + 1
  allowed = 1
end

local retry_ms = 0
if allowed == 0 then
  local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
  if oldest and oldest[2] then
    retry_ms = math.ceil(tonumber(oldest[2]) + window_ms - now_ms)
  end
  if retry_ms < 1 then
    retry_ms = 1
  end
end

redis.call("PEXPIRE", key, window_ms)
return {allowed, limit - count, retry_ms}
`)

// RedisLimiter is a sliding-window log stored in one sorted set per key.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter whose keys are namespaced under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, p Policy) (Decision, error) {
	if l.client == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}
	p = p.normalized()

	nowMS := l.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMS, uuid.NewString())

	raw, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + ":" + key},
		nowMS, p.Window.Milliseconds(), p.Limit, member,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run rate limit script: %w", err)
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit script response %T", raw)
	}
	nums := make([]int64, 3)
	for i, v := range values {
		n, err := parseRedisInt64(v)
		if err != nil {
			return Decision{}, err
		}
		nums[i] = n
	}

	return Decision{
		Allowed:    nums[0] == 1,
		Remaining:  int(max(nums[1], 0)),
		RetryAfter: time.Duration(nums[2]) * time.Millisecond,
	}, nil
}

func parseRedisInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
