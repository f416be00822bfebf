package security

import (
	"context"
	"fmt"
	"time"

	"image-board-backend/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
)

// UploadLimiter caps image uploads per IP per minute and per user per day
// with a Redis sliding window.
type UploadLimiter struct {
	maxPerMinute int
	maxPerDay    int
	client       func() *goredis.Client
	now          func() time.Time
}

// KEYS[1] = window key, ARGV = limit, window seconds, now (unix).
// Returns 1 if allowed, 0 if limited.
const uploadRateLimitScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

if redis.call('ZCARD', key) >= limit then
    return 0
end

redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
redis.call('EXPIRE', key, window)
return 1
`

// NewUploadLimiter defaults to 10 uploads/min per IP and 50/day per user.
func NewUploadLimiter(perMin, perDay int) *UploadLimiter {
	if perMin <= 0 {
		perMin = 10
	}
	if perDay <= 0 {
		perDay = 50
	}
	return &UploadLimiter{
		maxPerMinute: perMin,
		maxPerDay:    perDay,
		client:       redis.Client,
		now:          time.Now,
	}
}

// Allow reports whether one more upload is allowed and, if not, how many
// seconds to wait. Without Redis every upload is allowed.
func (ul *UploadLimiter) Allow(ctx context.Context, ip, userID string) (bool, int, error) {
	client := ul.client()
	if client == nil {
		return true, 0, nil
	}
	now := ul.now().Unix()

	if ip != "" {
		ok, err := ul.check(ctx, client, "ratelimit:upload:ip:"+ip, ul.maxPerMinute, 60, now)
		if err != nil {
			return false, 60, fmt.Errorf("upload limit check failed: %w", err)
		}
		if !ok {
			return false, 60, nil
		}
	}

	if userID != "" {
		ok, err := ul.check(ctx, client, "ratelimit:upload:user:"+userID, ul.maxPerDay, 86400, now)
		if err != nil {
			return false, 3600, fmt.Errorf("upload limit check failed: %w", err)
		}
		if !ok {
			return false, 3600, nil
		}
	}
	return true, 0, nil
}

func (ul *UploadLimiter) check(ctx context.Context, client *goredis.Client, key string, limit, window int, now int64) (bool, error) {
	res, err := client.Eval(ctx, uploadRateLimitScript, []string{key}, limit, window, now).Result()
	if err != nil {
		return false, err
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from rate limit script")
	}
	return allowed == 1, nil
}
