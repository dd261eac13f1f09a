package middleware

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultRateLimit = 100
	DefaultBurstSize = 10

	sweepEvery = 5 * time.Minute
	idleAfter  = 10 * time.Minute
)

// RateLimiter hands out one token bucket per client key. Buckets idle for
// longer than idleAfter are forgotten.
type RateLimiter struct {
	perMinute int
	every     rate.Limit
	burst     int

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	*rate.Limiter
	seen time.Time
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithConfig(DefaultRateLimit, DefaultBurstSize)
}

// NewRateLimiterWithConfig allows requestsPerMinute per client with bursts
// of up to burstSize. Call Stop to end the background sweep.
func NewRateLimiterWithConfig(requestsPerMinute int, burstSize int) *RateLimiter {
	rl := &RateLimiter{
		perMinute: requestsPerMinute,
		every:     rate.Limit(float64(requestsPerMinute) / 60),
		burst:     burstSize,
		buckets:   make(map[string]*bucket),
		stop:      make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (r *RateLimiter) bucketFor(key string, now time.Time) *bucket {
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(r.every, r.burst)}
		r.buckets[key] = b
	}
	b.seen = now
	return b
}

// Allow takes a token from key's bucket
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	return r.bucketFor(key, now).AllowN(now, 1)
}

// GetState reports the whole tokens left for key and when its bucket will
// be full again
func (r *RateLimiter) GetState(key string) (remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	b, ok := r.buckets[key]
	if !ok {
		return r.burst, now.Add(time.Minute)
	}

	tokens := b.TokensAt(now)
	remaining = int(math.Max(0, math.Floor(tokens)))
	missing := float64(r.burst) - tokens
	return remaining, now.Add(time.Duration(missing / float64(r.every) * float64(time.Second)))
}

func (r *RateLimiter) sweep() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for key, b := range r.buckets {
				if now.Sub(b.seen) > idleAfter {
					delete(r.buckets, key)
				}
			}
			r.mu.Unlock()
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// RateLimitMiddleware limits each device, or each IP for requests that
// carry no device ID, and reports the bucket in X-RateLimit-* headers
func RateLimitMiddleware(rl *RateLimiter) echo.MiddlewareFunc {
	limit := strconv.Itoa(rl.perMinute)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateLimitKey(c)
			allowed := rl.Allow(key)
			remaining, reset := rl.GetState(key)

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", limit)
			header.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if allowed {
				header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
				return next(c)
			}

			retryAfter := int(math.Ceil(time.Until(reset).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			header.Set("X-RateLimit-Remaining", "0")
			header.Set("Retry-After", strconv.Itoa(retryAfter))

			log.Warn().Str("client", key).Int("retry_after", retryAfter).Msg("Rate limit exceeded")
			return rateLimitError(c, fmt.Sprintf("Too many requests. Please retry after %d seconds.", retryAfter))
		}
	}
}

func rateLimitKey(c echo.Context) string {
	if deviceID := GetDeviceID(c); deviceID != "" {
		return "device:" + deviceID
	}
	return "ip:" + c.RealIP()
}
