package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/vendora/internal/config"
)

const keyDeliverClient = "deliver:client:%s"

// DeliverLimiter throttles delivery requests per client address. A nil
// limiter (rate limiting disabled) allows everything.
type DeliverLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewDeliverLimiter(cfg config.Config) (*DeliverLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.DeliverRate <= 0 || limitCfg.DeliverBurst <= 0 {
		return nil, errors.New("deliver rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &DeliverLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.DeliverRate,
		burst:   limitCfg.DeliverBurst,
	}, nil
}

func (l *DeliverLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *DeliverLimiter) Allow(ctx context.Context, clientIP string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyDeliverClient, strings.TrimSpace(clientIP)), l.rate, l.burst)
}
