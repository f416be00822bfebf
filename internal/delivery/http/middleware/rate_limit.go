package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/pkg/redis"
	"image-board-backend/pkg/security"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Time window duration
	Window time.Duration
	// Custom key extractor (default: IP-based)
	KeyFunc func(*gin.Context) string
	// Key prefix for Redis (default: "rl:ip:")
	KeyPrefix string
	// Whether to fail closed (reject) when Redis errors
	FailClosed bool
}

// memoryLimiter is the per-key token bucket used when Redis is unavailable
type memoryLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	limiterStore = sync.Map{}
	cleanupOnce  sync.Once
)

// KEYS[1] = counter key, ARGV[1] = TTL in seconds.
// Returns: [current_count, ttl_remaining]
const rateLimitLuaScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`

// startCleanup drops buckets that have been idle for 10 minutes
func startCleanup() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		for range ticker.C {
			cutoff := time.Now().Add(-10 * time.Minute)
			limiterStore.Range(func(key, value interface{}) bool {
				ml := value.(*memoryLimiter)
				ml.mu.Lock()
				if ml.lastSeen.Before(cutoff) {
					limiterStore.Delete(key)
				}
				ml.mu.Unlock()
				return true
			})
		}
	}()
}

func clientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// DefaultRateLimitConfig returns the global API limit
func DefaultRateLimitConfig(limit int) RateLimitConfig {
	if limit <= 0 {
		limit = 100
	}
	return RateLimitConfig{
		Limit:     limit,
		Window:    time.Minute,
		KeyPrefix: "rl:ip:",
		KeyFunc:   clientIPKey,
	}
}

// AuthRateLimitConfig returns strict config for authentication endpoints
func AuthRateLimitConfig(limit int) RateLimitConfig {
	if limit <= 0 {
		limit = 10
	}
	return RateLimitConfig{
		Limit:      limit,
		Window:     time.Minute,
		KeyPrefix:  "rl:auth:",
		FailClosed: true,
		KeyFunc:    clientIPKey,
	}
}

// ViewerRateLimitConfig bounds gesture and frame traffic per IP. Gestures
// arrive in bursts while pinching, so the limit is generous.
func ViewerRateLimitConfig(limit int) RateLimitConfig {
	if limit <= 0 {
		limit = 600
	}
	return RateLimitConfig{
		Limit:     limit,
		Window:    time.Minute,
		KeyPrefix: "rl:viewer:",
		KeyFunc:   clientIPKey,
	}
}

// RateLimitMiddleware uses a Redis fixed window when Redis is available
// and a per-key token bucket otherwise.
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	cleanupOnce.Do(startCleanup)
	if config.KeyFunc == nil {
		config.KeyFunc = clientIPKey
	}

	return func(c *gin.Context) {
		fullKey := config.KeyPrefix + config.KeyFunc(c)
		now := time.Now()

		var (
			allowed   bool
			remaining int
			resetAt   time.Time
		)

		redisClient := redis.Client()
		if redisClient != nil {
			count, reset, err := checkRateLimitRedis(c.Request.Context(), redisClient, fullKey, config)
			if err != nil {
				if config.FailClosed {
					logRateLimitError(c, "redis_error", err)
					response.Error(c, http.StatusServiceUnavailable, "Service temporarily unavailable. Please try again.", nil)
					c.Abort()
					return
				}
				allowed, remaining, resetAt = checkRateLimitInMemory(fullKey, config, now)
			} else {
				allowed = count <= config.Limit
				remaining = config.Limit - count
				resetAt = reset
			}
		} else {
			allowed, remaining, resetAt = checkRateLimitInMemory(fullKey, config, now)
		}

		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			logRateLimitTriggered(c)
			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkRateLimitRedis checks rate limit using Redis with atomic Lua script
func checkRateLimitRedis(ctx context.Context, client *goredis.Client, key string, config RateLimitConfig) (int, time.Time, error) {
	ttlSeconds := int(config.Window.Seconds())

	result, err := client.Eval(ctx, rateLimitLuaScript, []string{key}, ttlSeconds).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit eval failed: %w", err)
	}

	arr, ok := result.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected redis result format")
	}

	count, _ := arr[0].(int64)
	ttl, _ := arr[1].(int64)

	return int(count), time.Now().Add(time.Duration(ttl) * time.Second), nil
}

// checkRateLimitInMemory refills Limit tokens per Window, bursting up to Limit.
func checkRateLimitInMemory(key string, config RateLimitConfig, now time.Time) (bool, int, time.Time) {
	every := config.Window / time.Duration(config.Limit)
	v, _ := limiterStore.LoadOrStore(key, &memoryLimiter{
		limiter: rate.NewLimiter(rate.Every(every), config.Limit),
	})
	ml := v.(*memoryLimiter)

	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.lastSeen = now

	allowed := ml.limiter.AllowN(now, 1)
	tokens := ml.limiter.TokensAt(now)

	// Next token arrives after (1 - fractional tokens) intervals
	wait := time.Duration((1 - (tokens - float64(int(tokens)))) * float64(every))
	return allowed, int(tokens), now.Add(wait)
}

// logRateLimitTriggered logs when rate limiting is triggered
func logRateLimitTriggered(c *gin.Context) {
	security.DefaultLogger().LogRateLimitTriggered(
		c.Request.Context(),
		c.ClientIP(),
		c.GetHeader("User-Agent"),
		c.GetString("RequestID"),
		c.FullPath(),
	)
}

// logRateLimitError logs Redis errors
func logRateLimitError(c *gin.Context, errorType string, err error) {
	security.DefaultLogger().Log(c.Request.Context(), security.SecurityEvent{
		Event:       security.EventRateLimitTriggered,
		SubjectType: "system",
		IP:          c.ClientIP(),
		RequestID:   c.GetString("RequestID"),
		Details: map[string]interface{}{
			"error_type": errorType,
			"error":      err.Error(),
		},
	})
}
