package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimit allows perMinute requests per client IP, with bursts of the same size.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 1
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
		every   = time.Minute / time.Duration(perMinute)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			if len(clients) >= maxTrackedClients {
				for k, v := range clients {
					if now.Sub(v.lastSeen) > time.Minute {
						delete(clients, k)
					}
				}
			}
			cl = &clientLimiter{lim: rate.NewLimiter(rate.Every(every), perMinute)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		allowed := cl.lim.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			common.Fail(c, http.StatusTooManyRequests, 42901, "too many requests, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
