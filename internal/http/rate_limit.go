package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ipBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter mantiene un token bucket por IP de cliente. Un bucket sin uso
// durante idleTTL ya se relleno por completo y se descarta.
type ipRateLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idleTTL   time.Duration
	clients   map[string]*ipBucket
	now       func() time.Time
	lastSweep time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	idle := time.Minute
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
		idle = refill
	}
	return &ipRateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: idle,
		clients: make(map[string]*ipBucket),
		now:     time.Now,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evictIdle(now)
	b, ok := l.clients[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// evictIdle corre como mucho una vez por idleTTL. Requiere l.mu.
func (l *ipRateLimiter) evictIdle(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for ip, b := range l.clients {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.clients, ip)
		}
	}
}

// RateLimitMiddleware responde 429 cuando una IP agota su bucket.
// rps <= 0 desactiva el limite.
func RateLimitMiddleware(logger *zap.Logger, rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newIPRateLimiter(rps, burst)
	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			logger.Warn("rate limit exceeded", zap.String("client_ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
