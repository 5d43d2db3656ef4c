package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/vibemusic/utils"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// ipLimiters holds one token bucket per client IP; idle buckets are dropped after five minutes.
type ipLimiters struct {
	mu     sync.Mutex
	items  map[string]*rateLimiter
	limit  rate.Limit
	burst  int
	now    func() time.Time
	lastGC time.Time
}

func newIPLimiters(perMinute int) *ipLimiters {
	return &ipLimiters{
		items: map[string]*rateLimiter{},
		limit: rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst: max(perMinute/2, 1),
		now:   time.Now,
	}
}

func (l *ipLimiters) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > time.Minute {
		for k, v := range l.items {
			if now.After(v.expires) {
				delete(l.items, k)
			}
		}
		l.lastGC = now
	}

	rl, ok := l.items[key]
	if !ok {
		rl = &rateLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.items[key] = rl
	}
	rl.expires = now.Add(5 * time.Minute)
	return rl.limiter.AllowN(now, 1)
}

// RateLimitMiddleware applies an IP based token bucket of perMinute requests.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	limiters := newIPLimiters(perMinute)
	return func(ctx *gin.Context) {
		if !limiters.allow(ctx.ClientIP()) {
			utils.Abort(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
