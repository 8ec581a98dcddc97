// Package limiter throttles outbound sign-in emails with a Redis fixed window.
package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimiterUnavailable wraps Redis failures so callers can decide to fail open
var ErrLimiterUnavailable = errors.New("send limiter unavailable")

const keyPrefix = "mlsend:"

// SendLimiter allows at most Limit sends per key within Window
type SendLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewSendLimiter creates a limiter. A non-positive limit disables throttling.
func NewSendLimiter(client *redis.Client, limit int, window time.Duration) *SendLimiter {
	return &SendLimiter{
		redis:  client,
		limit:  limit,
		window: window,
	}
}

// Allow records one send for key and reports whether it is within the limit
func (l *SendLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	redisKey := sendKey(key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	count := incr.Val()

	// New keys and keys whose EXPIRE was lost have no TTL; a key without one never resets
	if ttl.Val() < 0 {
		if err := l.redis.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}

	return count <= int64(l.limit), nil
}

// sendKey hashes the key so addresses never appear in Redis
func sendKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + hex.EncodeToString(sum[:])
}
