package middleware

import (
	"net/http"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"marketplace/internal/config"
)

// クライアントごとのトークンバケット
// 使われないキーはTTLで消え、件数はCapacityまで
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	limited  prometheus.Counter
}

func NewRateLimiter(cfg config.RateLimitConfig, limited prometheus.Counter) *RateLimiter {
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](cfg.Capacity, nil, cfg.TTL),
		limit:    rate.Limit(cfg.RPS),
		burst:    cfg.Burst,
		limited:  limited,
	}
}

// 取得と作成をまとめてロック
func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(key, lim)
	return lim
}

func (l *RateLimiter) Allow(key string) bool {
	return l.limiterFor(key).Allow()
}

// 保持しているキー数
func (l *RateLimiter) Len() int {
	return l.limiters.Len()
}

// 認証済みならsub、なければIP
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if userID, ok := c.Get(CtxUserIDKey).(string); ok && userID != "" {
				key = "user:" + userID
			}

			if !l.Allow(key) {
				if l.limited != nil {
					l.limited.Inc()
				}
				return c.JSON(http.StatusTooManyRequests, errorJSON("rate_limited", "too many requests"))
			}
			return next(c)
		}
	}
}
