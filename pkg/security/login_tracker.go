package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"image-board-backend/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoginTrackerConfig holds configuration for sign-in throttling
type LoginTrackerConfig struct {
	MaxAttempts   int           // failed attempts before a block (default: 5)
	AttemptWindow time.Duration // window the attempts are counted in (default: 15min)
	BlockDuration time.Duration // block length once MaxAttempts is hit (default: 15min)
}

// DefaultLoginTrackerConfig returns sensible defaults
func DefaultLoginTrackerConfig() LoginTrackerConfig {
	return LoginTrackerConfig{
		MaxAttempts:   5,
		AttemptWindow: 15 * time.Minute,
		BlockDuration: 15 * time.Minute,
	}
}

// LoginTracker counts failed password sign-ins per email and blocks the
// email for a while once the limit is reached. Without Redis it fails open.
type LoginTracker struct {
	config LoginTrackerConfig
	logger *SecurityLogger
	client func() *goredis.Client
}

func NewLoginTracker(config LoginTrackerConfig, logger *SecurityLogger) *LoginTracker {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.AttemptWindow <= 0 {
		config.AttemptWindow = 15 * time.Minute
	}
	if config.BlockDuration <= 0 {
		config.BlockDuration = 15 * time.Minute
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	return &LoginTracker{config: config, logger: logger, client: redis.Client}
}

// Redis key patterns
const (
	failSignInPrefix    = "fail:signin:"
	blockedSignInPrefix = "blocked:signin:"
)

// KEYS[1] = counter key, ARGV[1] = TTL in seconds. Returns the new count.
const incrWithTTLScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsBlocked reports whether sign-in for email is currently blocked.
func (lt *LoginTracker) IsBlocked(ctx context.Context, email string) (bool, error) {
	client := lt.client()
	if client == nil {
		return false, nil
	}

	n, err := client.Exists(ctx, blockedSignInPrefix+normalizeEmail(email)).Result()
	if err != nil {
		return false, fmt.Errorf("check sign-in block: %w", err)
	}
	return n > 0, nil
}

// RecordFailure counts one failed attempt and reports whether it caused a block.
func (lt *LoginTracker) RecordFailure(ctx context.Context, email string) (bool, error) {
	client := lt.client()
	if client == nil {
		return false, nil
	}

	key := normalizeEmail(email)
	res, err := client.Eval(ctx, incrWithTTLScript, []string{failSignInPrefix + key}, int(lt.config.AttemptWindow.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("count failed sign-in: %w", err)
	}
	count, ok := res.(int64)
	if !ok {
		return false, errors.New("unexpected result type from Lua script")
	}
	if int(count) < lt.config.MaxAttempts {
		return false, nil
	}

	if err := client.Set(ctx, blockedSignInPrefix+key, "1", lt.config.BlockDuration).Err(); err != nil {
		return false, fmt.Errorf("set sign-in block: %w", err)
	}
	if err := client.Del(ctx, failSignInPrefix+key).Err(); err != nil {
		lt.logger.zapLogger.Warn("failed to reset sign-in counter", zap.Error(err))
	}
	lt.logger.LogAuthEvent(ctx, EventSignInBlocked, email, fmt.Sprintf("blocked_for_%dm", int(lt.config.BlockDuration.Minutes())))
	return true, nil
}

// Clear drops the failure counter after a successful sign-in.
func (lt *LoginTracker) Clear(ctx context.Context, email string) error {
	client := lt.client()
	if client == nil {
		return nil
	}
	return client.Del(ctx, failSignInPrefix+normalizeEmail(email)).Err()
}
