package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// 滑动窗口：ZSET 里每个成员是一次请求，score 为毫秒时间戳。
// 返回 {allowed, retryAfterMs}
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
redis.call("ZADD", key, now, member)
local count = redis.call("ZCARD", key)
redis.call("PEXPIRE", key, window)

if count <= limit then
  return {1, 0}
end

redis.call("ZREM", key, member)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] ~= nil then
  local retryAfter = (tonumber(oldest[2]) + window) - now
  if retryAfter < 0 then retryAfter = 0 end
  return {0, retryAfter}
end
return {0, window}
`)

type Limiter struct {
	client redis.Scripter
	seq    atomic.Uint64
}

func NewLimiter(client redis.Scripter) *Limiter {
	return &Limiter{client: client}
}

// Allow 在 key 的窗口内计一次请求。返回：allowed、retryAfter（仅当超限时有意义）
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := time.Now()
	// member 必须每次请求唯一，否则 ZADD 会覆盖同一个 member；纳秒时间戳可能重复，加序列号
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	res, err := slidingWindow.Run(ctx, l.client, []string{key}, now.UnixMilli(), window.Milliseconds(), limit, member).Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) < 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	allowed, _ := res[0].(int64)
	var retryAfterMs int64
	switch v := res[1].(type) {
	case int64:
		retryAfterMs = v
	case string:
		retryAfterMs, _ = strconv.ParseInt(v, 10, 64)
	}
	return allowed == 1, time.Duration(retryAfterMs) * time.Millisecond, nil
}
