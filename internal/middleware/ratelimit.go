package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/charlesng35/tradepost/pkg/errors"
	"github.com/charlesng35/tradepost/pkg/metrics"
	"github.com/charlesng35/tradepost/pkg/response"
)

const visitorIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns a middleware that throttles requests per (clientIP,route) with a token bucket.
// It guards the HTTP surface as a whole; the contact workflow keeps its own sliding-window limits.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 || burst <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var (
		mu        sync.Mutex
		visitors  = make(map[string]*visitor)
		lastSweep = time.Now()
	)

	get := func(key string, now time.Time) *visitor {
		mu.Lock()
		defer mu.Unlock()

		if now.Sub(lastSweep) > visitorIdleTTL {
			for k, v := range visitors {
				if now.Sub(v.lastSeen) > visitorIdleTTL {
					delete(visitors, k)
				}
			}
			lastSweep = now
		}

		v, ok := visitors[key]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			visitors[key] = v
		}
		v.lastSeen = now
		return v
	}

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		now := time.Now()
		reservation := get(c.ClientIP()+"|"+path, now).limiter.ReserveN(now, 1)
		c.Header("X-RateLimit-Limit", strconv.Itoa(burst))

		if !reservation.OK() {
			metrics.RateLimitRejections.WithLabelValues("http").Inc()
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			metrics.RateLimitRejections.WithLabelValues("http").Inc()
			retry := time.Duration(math.Ceil(delay.Seconds())) * time.Second
			response.Error(c, errors.ErrRateLimit.WithRetryAfter(retry))
			c.Abort()
			return
		}

		c.Next()
	}
}
