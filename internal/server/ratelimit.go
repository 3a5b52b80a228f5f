package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const visitorIdleTTL = 10 * time.Minute

// ipRateLimiter keeps one token bucket per client IP. A nil limiter allows everything.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPRateLimiter allows perMinute requests per IP with the given burst. perMinute <= 0 disables limiting.
func newIPRateLimiter(perMinute, burst int, clock func() time.Time) *ipRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &ipRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		now:      clock,
	}
}

// reserve reports whether ip may proceed now and, if not, how long it should wait.
func (l *ipRateLimiter) reserve(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)

	entry, ok := l.visitors[ip]
	if !ok {
		entry = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = entry
	}
	entry.lastSeen = now
	if entry.limiter.AllowN(now, 1) {
		return true, 0
	}
	wait := entry.limiter.ReserveN(now, 1)
	delay := wait.DelayFrom(now)
	wait.CancelAt(now)
	return false, delay
}

// sweep drops idle visitors at most once per TTL.
func (l *ipRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < visitorIdleTTL {
		return
	}
	for ip, entry := range l.visitors {
		if now.Sub(entry.lastSeen) >= visitorIdleTTL {
			delete(l.visitors, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		allowed, delay := l.reserve(c.ClientIP())
		if !allowed {
			seconds := int(math.Ceil(delay.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "code": "http.rate_limited"})
			return
		}
		c.Next()
	}
}
