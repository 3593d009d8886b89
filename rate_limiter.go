package rest

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/natours/tours-rest/http_errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// DefaultSweepInterval is how often the in-memory limiter drops idle buckets.
const DefaultSweepInterval = 5 * time.Minute

// TooManyRequestsMessage tells the client when the window of limit is over,
// e.g. "Too many requests from this IP, please try again in an hour!".
func TooManyRequestsMessage(limit RateLimit) string {
	return "Too many requests from this IP, please try again in " + retryIn(limit.Window) + "!"
}

func retryIn(window time.Duration) string {
	switch {
	case window == time.Hour:
		return "an hour"
	case window > time.Hour && window%time.Hour == 0:
		return strconv.Itoa(int(window/time.Hour)) + " hours"
	case window == time.Minute:
		return "a minute"
	case window > time.Minute && window%time.Minute == 0:
		return strconv.Itoa(int(window/time.Minute)) + " minutes"
	case window <= time.Second:
		return "a second"
	default:
		return strconv.Itoa(int(math.Ceil(window.Seconds()))) + " seconds"
	}
}

// Limiter counts hits per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit RateLimit) (bool, error)
}

// RedisLimiter is a fixed window counter shared by every instance using the
// same Redis database.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit RateLimit) (bool, error) {
	key = l.prefix + key

	pipe := l.client.TxPipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, limit.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	count, err := incrCmd.Result()
	if err != nil {
		return false, err
	}

	return count <= int64(limit.Max), nil
}

type memoryBucket struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// MemoryLimiter keeps a token bucket per key in process. Buckets refill at
// Max tokens per Window with a burst of Max. A bucket idle for a whole window
// is full again, so the sweeper drops it.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*memoryBucket),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit RateLimit) (bool, error) {
	now := l.now()

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		every := rate.Every(limit.Window / time.Duration(limit.Max))
		bucket = &memoryBucket{limiter: rate.NewLimiter(every, limit.Max), window: limit.Window}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now
	l.mu.Unlock()

	return bucket.limiter.AllowN(now, 1), nil
}

// Sweep drops the buckets idle for longer than their window.
func (l *MemoryLimiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > bucket.window {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of live buckets.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Start runs Sweep every interval until Stop. Later calls are no-ops.
func (l *MemoryLimiter) Start(interval time.Duration) {
	l.startOnce.Do(func() {
		go l.sweepLoop(interval)
	})
}

func (l *MemoryLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCh:
			return
		}
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// sweepingLimiter is a Limiter holding state that the app must sweep.
type sweepingLimiter interface {
	Start(interval time.Duration)
	Stop()
}

func (receiver *RestApp) allow(ctx context.Context, key string, limit RateLimit) error {
	if limit.Max <= 0 || limit.Window <= 0 {
		return nil
	}

	allowed, err := receiver.limiter.Allow(ctx, key, limit)
	if err != nil {
		// A broken limiter store must not take the API down.
		receiver.Errorf("Rate limiter failed for %s: %v", key, err)
		return nil
	}
	if !allowed {
		receiver.Warnf("Rate limit exceeded for %s", key)
		return http_errors.TooManyRequestsError(TooManyRequestsMessage(limit))
	}
	return nil
}

// RateLimitMiddleware limits every request of a route group per client IP.
func (receiver *RestApp) RateLimitMiddleware(limit RateLimit) echo.MiddlewareFunc {
	name := limit.Key
	if name == "" {
		name = "global"
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := receiver.allow(c.Request().Context(), name+"_"+c.RealIP(), limit); err != nil {
				return err
			}
			return next(c)
		}
	}
}

func checkRateLimit(e *EndpointContext) error {
	if e.Endpoint.RateLimiter == nil {
		return nil
	}

	rateLimit := e.Endpoint.RateLimiter(e)

	name := e.Endpoint.Name
	if rateLimit.Key != "" {
		name = rateLimit.Key
	}

	return e.App.allow(e.Context(), name+"_"+e.IpAddress, rateLimit)
}
