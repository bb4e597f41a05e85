package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Refill happens lazily on every call, using the Redis server clock so that
// several API replicas share one notion of time.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), ts}
`

var errInvalidBucketReply = errors.New("invalid token bucket reply")

type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

// Result describes one token bucket decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

func NewTokenBucket(client redis.Scripter) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from the bucket stored at key.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, errors.New("rate limiter not configured")
	}
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return Result{}, errors.New("rate limiter rate and burst must be positive")
	}

	ttl := bucketTTL(rate, burst)
	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return Result{}, err
	}
	return parseBucketReply(reply, rate, burst)
}

// parseBucketReply decodes {allowed, tokens, ts}. Tokens travel as a string
// because Redis truncates Lua numbers to integers.
func parseBucketReply(reply []interface{}, rate float64, burst int) (Result, error) {
	if len(reply) < 3 {
		return Result{}, errInvalidBucketReply
	}
	allowed, ok := reply[0].(int64)
	if !ok {
		return Result{}, errInvalidBucketReply
	}
	tokens, err := replyFloat(reply[1])
	if err != nil {
		return Result{}, err
	}
	ts, ok := reply[2].(int64)
	if !ok {
		return Result{}, errInvalidBucketReply
	}

	res := Result{
		Allowed:   allowed == 1,
		Limit:     burst,
		Remaining: int(math.Floor(tokens)),
	}
	if !res.Allowed {
		res.RetryAfter = retryAfter(tokens, rate)
	}
	res.ResetAt = time.UnixMilli(ts).Add(res.RetryAfter)
	return res, nil
}

func replyFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, errInvalidBucketReply
		}
		return f, nil
	case int64:
		return float64(val), nil
	default:
		return 0, errInvalidBucketReply
	}
}

// retryAfter is the time needed to refill the bucket back to one token.
func retryAfter(tokens, rate float64) time.Duration {
	needed := 1 - tokens
	if needed <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(needed / rate * float64(time.Second)))
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
