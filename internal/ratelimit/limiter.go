package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/schedcore/pkg/logging"
)

// Limiter is a fixed-window request counter shared across instances via
// redis. Keying by client identity keeps one noisy caller from starving
// the rest; the shared counter keeps multi-instance deployments honest
// where an in-process counter would not be.
type Limiter struct {
	rdb    redis.UniversalClient
	limit  int
	window time.Duration
	logger *logging.Logger
}

// NewLimiter creates a limiter allowing limit requests per window.
func NewLimiter(rdb redis.UniversalClient, limit int, window time.Duration, logger *logging.Logger) *Limiter {
	if rdb == nil {
		panic("ratelimit: redis client required")
	}
	if limit <= 0 {
		limit = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Limiter{rdb: rdb, limit: limit, window: window, logger: logger}
}

// Allow reports whether the identified client may proceed. Counting is
// fail-open: if redis is unreachable the request goes through, because
// dropping bookings over a limiter outage is the worse failure.
func (l *Limiter) Allow(ctx context.Context, clientID string) (bool, error) {
	window := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%d", clientID, window)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limit counter unavailable, allowing request", "error", err)
		return true, err
	}
	return incr.Val() <= int64(l.limit), nil
}

// Limit returns the configured per-window allowance.
func (l *Limiter) Limit() int {
	return l.limit
}
