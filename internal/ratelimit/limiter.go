package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("redis unavailable")

// Scope names a budget. Each scope has its own counters.
type Scope string

const (
	ScopeLogin  Scope = "login"
	ScopeVerify Scope = "verify"
	ScopeForgot Scope = "forgot"
)

type Rule struct {
	Max    int
	Window time.Duration
}

func DefaultRules() map[Scope]Rule {
	return map[Scope]Rule{
		ScopeLogin:  {Max: 10, Window: 15 * time.Minute},
		ScopeVerify: {Max: 5, Window: 10 * time.Minute},
		ScopeForgot: {Max: 3, Window: time.Hour},
	}
}

// Limiter reports whether another attempt for key is allowed in scope.
type Limiter interface {
	Allow(ctx context.Context, scope Scope, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter per (scope, key).
type RedisLimiter struct {
	redis redis.UniversalClient
	rules map[Scope]Rule
}

func NewRedisLimiter(client redis.UniversalClient, rules map[Scope]Rule) *RedisLimiter {
	return &RedisLimiter{redis: client, rules: rules}
}

func (l *RedisLimiter) Allow(ctx context.Context, scope Scope, key string) (bool, error) {
	rule, ok := l.rules[scope]
	if !ok {
		return true, nil
	}

	count, err := l.redis.Incr(ctx, counterKey(scope, key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// TTL only on the first hit so the window does not slide.
	if count == 1 {
		if err := l.redis.Expire(ctx, counterKey(scope, key), rule.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count <= int64(rule.Max), nil
}

func counterKey(scope Scope, key string) string {
	return "authe:rl:" + string(scope) + ":" + key
}

// NopLimiter allows everything. Used when no redis is configured.
type NopLimiter struct{}

func (NopLimiter) Allow(context.Context, Scope, string) (bool, error) {
	return true, nil
}
