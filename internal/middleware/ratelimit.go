package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 10_000
	clientIdleTTL     = 15 * time.Minute
)

// ClientRateLimit allows each client IP perSecond requests with the given
// burst. Idle clients are forgotten after a while. perSecond <= 0 disables
// the limit.
func ClientRateLimit(perSecond float64, burst int, logger *zap.Logger) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	var mu sync.Mutex
	clients := expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL)
	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := clients.Get(ip)
		if !ok {
			l = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
		// re-adding refreshes the idle TTL
		clients.Add(ip, l)
		return l
	}

	retryAfter := strconv.Itoa(int(math.Ceil(1 / perSecond)))
	return func(c *gin.Context) {
		if limiterFor(c.ClientIP()).Allow() {
			c.Next()
			return
		}
		logger.Warn("rate limit exceeded",
			zap.String("client_ip", c.ClientIP()),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", GetRequestID(c)),
		)
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error":   "too many requests",
		})
	}
}
