package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tuan304201/chat/internal/service"
	"github.com/tuan304201/chat/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	limit            int
	window           time.Duration
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, limit int, window time.Duration, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		limit:            limit,
		window:           window,
		log:              log,
	}
}

func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "http:" + c.ClientIP()

		allowed, err := m.rateLimitService.CheckLimit(c.Request.Context(), key, m.limit, m.window)
		if err != nil {
			m.log.Error("Rate limit check failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			c.Abort()
			return
		}

		if !allowed {
			c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		count, err := m.rateLimitService.Increment(c.Request.Context(), key, m.window)
		if err != nil {
			m.log.Error("Rate limit increment failed", "error", err)
		}

		remaining := m.limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
