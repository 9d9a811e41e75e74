package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisLimiter keeps one sorted set per key, scored by request time, so
// every replica shares the same window.
type RedisLimiter struct {
	redis     *redis.Client
	keyPrefix string
	logger    *logrus.Entry
}

func NewRedisLimiter(client *redis.Client, keyPrefix string, logger *logrus.Logger) *RedisLimiter {
	return &RedisLimiter{
		redis:     client,
		keyPrefix: keyPrefix,
		logger:    logger.WithField("component", "ratelimit"),
	}
}

func (l *RedisLimiter) formatKey(key string) string {
	return fmt.Sprintf("%s:ratelimit:%s", l.keyPrefix, key)
}

// Allow fails open when redis is unreachable.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit Rate) (bool, Info) {
	now := time.Now()
	windowKey := l.formatKey(key)

	pipe := l.redis.TxPipeline()
	windowStart := now.Add(-limit.Window).UnixNano()
	pipe.ZRemRangeByScore(ctx, windowKey, "0", strconv.FormatInt(windowStart, 10))
	card := pipe.ZCard(ctx, windowKey)
	pipe.ZAdd(ctx, windowKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	pipe.Expire(ctx, windowKey, limit.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("rate limit check failed, allowing request")
		return true, Info{
			Limit:     limit.Requests,
			Remaining: limit.Requests,
			Reset:     now.Add(limit.Window),
		}
	}

	remaining := limit.Requests - int(card.Val()) - 1
	return remaining >= 0, Info{
		Limit:     limit.Requests,
		Remaining: max(remaining, 0),
		Reset:     now.Add(limit.Window),
	}
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, l.formatKey(key)).Err()
}
