package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
)

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientBuckets holds one token bucket per client, forgetting clients idle
// for longer than maxAge.
type clientBuckets struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

func (b *clientBuckets) get(client string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.buckets[client]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(b.rps, b.burst)}
		b.buckets[client] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter
}

func (b *clientBuckets) evictIdle(now time.Time, maxAge time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := 0
	for client, bucket := range b.buckets {
		if now.Sub(bucket.lastSeen) > maxAge {
			delete(b.buckets, client)
			evicted++
		}
	}
	return evicted
}

// RateLimitMiddleware limits API requests per client IP. Idle clients are
// evicted every CleanupInterval until ctx is done.
func RateLimitMiddleware(ctx context.Context, config RateLimitConfig) gin.HandlerFunc {
	buckets := &clientBuckets{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(config.RPS),
		burst:   config.Burst,
	}

	if config.CleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(config.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					buckets.evictIdle(now, config.MaxAge)
				}
			}
		}()
	}

	limitHeader := strconv.FormatFloat(config.RPS, 'f', -1, 64)

	return func(c *gin.Context) {
		client := c.ClientIP()
		if client == "" {
			client = c.RemoteIP()
		}

		limiter := buckets.get(client, time.Now())
		c.Header("X-RateLimit-Limit", limitHeader)

		if !limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(config.RPS)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.ToErrorResponse(apperrors.ErrThrottled))
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		remaining := int(math.Floor(limiter.Tokens()))
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

func retryAfterSeconds(rps float64) int {
	if rps <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/rps)))
}
