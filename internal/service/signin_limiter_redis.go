package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rate-my-movie/internal/domain"
)

const redisSignInFailScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisSignInLimiter struct {
	client redisLimiterClient
	logger *zap.Logger
	window time.Duration
	max    int
	prefix string
}

type redisLimiterClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisSignInLimiter comparte el conteo de fallos entre procesos.
func NewRedisSignInLimiter(client *redis.Client, logger *zap.Logger, window time.Duration, max int) SignInLimiter {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisSignInLimiter{
		client: client,
		logger: logger,
		window: window,
		max:    max,
		prefix: "signin:rl:",
	}
}

// Allow deja pasar si Redis falla.
func (l *redisSignInLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := domain.FoldEmail(key)
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	count, err := l.client.Get(ctx, l.prefix+normalizedKey).Int()
	if errors.Is(err, redis.Nil) {
		return true
	}
	if err != nil {
		l.logger.Warn("sign in limiter read failed", zap.Error(err))
		return true
	}
	return count < l.max
}

func (l *redisSignInLimiter) Fail(key string) {
	if l == nil || l.client == nil {
		return
	}
	normalizedKey := domain.FoldEmail(key)
	if normalizedKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	if err := l.client.Eval(ctx, redisSignInFailScript, []string{l.prefix + normalizedKey}, seconds).Err(); err != nil {
		l.logger.Warn("sign in limiter write failed", zap.Error(err))
	}
}

func (l *redisSignInLimiter) Reset(key string) {
	if l == nil || l.client == nil {
		return
	}
	normalizedKey := domain.FoldEmail(key)
	if normalizedKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := l.client.Del(ctx, l.prefix+normalizedKey).Err(); err != nil {
		l.logger.Warn("sign in limiter reset failed", zap.Error(err))
	}
}
