package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingWindow trims the sorted set to the window, then admits the request
// if there is room. Scores are unix milliseconds.
// Returns {allowed, count, retryAfterMs}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, count + 1, 0}
end

local retry = window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
return {0, count, retry}
`)

// Redis shares limiter state between processes through sorted sets.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedis allows at most limit requests per key within window. Keys are
// stored as prefix+key.
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now().UnixMilli()
	reply, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		now, r.window.Milliseconds(), r.limit, fmt.Sprintf("%d-%s", now, uuid.NewString())).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	return decisionFromReply(reply, r.limit)
}

func decisionFromReply(reply any, limit int) (Decision, error) {
	vals, ok := reply.([]any)
	if !ok || len(vals) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit reply %v", reply)
	}
	nums := make([]int64, 3)
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return Decision{}, fmt.Errorf("unexpected rate limit reply element %v", v)
		}
		nums[i] = n
	}

	d := Decision{Allowed: nums[0] == 1, Limit: limit}
	if d.Allowed {
		d.Remaining = limit - int(nums[1])
	} else {
		d.RetryAfter = time.Duration(nums[2]) * time.Millisecond
	}
	return d, nil
}
