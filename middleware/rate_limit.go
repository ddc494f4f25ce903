package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"natours-api/utils"
)

const rateLimitMessage = "Too many requests from this IP. Please try again in an hour."

// RateLimitStore counts hits of a key inside fixed windows.
type RateLimitStore interface {
	// Hit records a request and returns the count in the current window and
	// when that window ends.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

type rateWindow struct {
	count int64
	reset time.Time
}

// MemoryRateStore keeps windows in process memory. Expired windows are
// removed by Prune.
type MemoryRateStore struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{windows: make(map[string]*rateWindow), now: time.Now}
}

func (s *MemoryRateStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &rateWindow{reset: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.reset, nil
}

// Prune drops expired windows and returns how many were dropped.
func (s *MemoryRateStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for key, w := range s.windows {
		if !now.Before(w.reset) {
			delete(s.windows, key)
			pruned++
		}
	}
	return pruned
}

// RedisRateStore shares windows between instances.
type RedisRateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRateStore(client *redis.Client) *RedisRateStore {
	return &RedisRateStore{client: client, prefix: "ratelimit"}
}

func (s *RedisRateStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	redisKey := fmt.Sprintf("%s:%s", s.prefix, key)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	// The first hit opens the window.
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// The key lost its expiry; restart the window.
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		ttl = window
	}
	return count, time.Now().Add(ttl), nil
}

// RateLimiter allows max requests per window per client IP.
type RateLimiter struct {
	store  RateLimitStore
	max    int
	window time.Duration
	log    *logrus.Logger
}

func NewRateLimiter(store RateLimitStore, max int, window time.Duration, log *logrus.Logger) *RateLimiter {
	return &RateLimiter{store: store, max: max, window: window, log: log}
}

func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, reset, err := rl.store.Hit(c.Request.Context(), "ip:"+c.ClientIP(), rl.window)
		if err != nil {
			// Fail open when the store is unreachable.
			rl.log.WithError(err).Warn("rate limit store unavailable")
			c.Next()
			return
		}

		remaining := int64(rl.max) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.max))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.max) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, utils.ErrorResponse{
				Status:  utils.StatusFail,
				Message: rateLimitMessage,
			})
			return
		}
		c.Next()
	}
}
