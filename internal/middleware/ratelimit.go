package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iliyamo/farmer-objection-service/internal/config"
)

// decision is the outcome of taking one token from a bucket.
type decision struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

type bucketStore interface {
	take(ctx context.Context, key string, now time.Time) (decision, error)
}

// NewTokenBucket limits requests per key (see config.RateLimitConfig
// KeyStrategy). Buckets live in Redis when rdb is non-nil so every replica
// shares them; otherwise, and whenever Redis errors, an in-process bucket
// per key is used instead.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}
	local := newLocalBuckets(cfg)
	var shared bucketStore
	if rdb != nil {
		shared = &redisBuckets{rdb: rdb, cfg: cfg}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			now := time.Now()

			var (
				d   decision
				err error
			)
			if shared != nil {
				d, err = shared.take(c.Request().Context(), key, now)
				if err != nil {
					log.Warn("rate limit: redis unavailable, using local bucket", zap.String("key", key), zap.Error(err))
				}
			}
			if shared == nil || err != nil {
				d, _ = local.take(c.Request().Context(), key, now)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))

			if !d.allowed {
				secs := int(math.Ceil(d.retryAfter.Seconds()))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				log.Info("rate limit: blocked", zap.String("key", key), zap.Int("retry_after", secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// limiterScript refills the bucket by whole intervals, takes one token if
// available and returns {allowed, tokens, retry_after_ms}.
var limiterScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

type redisBuckets struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

func (b *redisBuckets) take(ctx context.Context, key string, now time.Time) (decision, error) {
	args := []interface{}{
		now.UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL / time.Second),
	}
	vals, err := limiterScript.Run(ctx, b.rdb, []string{key}, args...).Int64Slice()
	if err != nil {
		return decision{}, err
	}
	if len(vals) != 3 {
		return decision{}, fmt.Errorf("unexpected script result %v", vals)
	}
	return decision{
		allowed:    vals[0] == 1,
		remaining:  vals[1],
		retryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// localBuckets holds one rate.Limiter per key. Keys idle for longer than
// cfg.TTL are dropped on the next sweep.
type localBuckets struct {
	cfg       config.RateLimitConfig
	every     rate.Limit
	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLocalBuckets(cfg config.RateLimitConfig) *localBuckets {
	per := cfg.RefillInterval / time.Duration(max(cfg.RefillTokens, 1))
	return &localBuckets{
		cfg:     cfg,
		every:   rate.Every(per),
		buckets: make(map[string]*localBucket),
	}
}

func (b *localBuckets) take(_ context.Context, key string, now time.Time) (decision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) > b.cfg.TTL {
		for k, e := range b.buckets {
			if now.Sub(e.lastSeen) > b.cfg.TTL {
				delete(b.buckets, k)
			}
		}
		b.lastSweep = now
	}

	e, ok := b.buckets[key]
	if !ok {
		e = &localBucket{lim: rate.NewLimiter(b.every, b.cfg.Capacity)}
		b.buckets[key] = e
	}
	e.lastSeen = now

	r := e.lim.ReserveN(now, 1)
	if !r.OK() {
		return decision{}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return decision{allowed: false, remaining: 0, retryAfter: delay}, nil
	}
	remaining := int64(e.lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return decision{allowed: true, remaining: remaining}, nil
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
