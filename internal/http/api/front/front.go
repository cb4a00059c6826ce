package front

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liurenlab/oracleops/internal/dispatch"
	handlers "github.com/liurenlab/oracleops/internal/http/api/front/handlers"
	"github.com/liurenlab/oracleops/internal/ratelimit"
)

// RegisterFrontRoutes registers the public interpretation routes.
func RegisterFrontRoutes(r *gin.Engine, dispatcher *dispatch.Dispatcher, limiter *ratelimit.Manager, defaultLanguage string) {
	if r == nil || dispatcher == nil {
		return
	}

	interpretHandler := handlers.NewInterpretHandler(dispatcher, defaultLanguage)

	front := r.Group("/v1")
	front.Use(rateLimitMiddleware(limiter))
	front.POST("/interpret", interpretHandler.Interpret)
}

// rateLimitMiddleware enforces the per-client request limit.
func rateLimitMiddleware(limiter *ratelimit.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := ratelimit.ClientKey(c.ClientIP())
		result, errAllow := limiter.Allow(c.Request.Context(), key)
		if errAllow != nil {
			// Backend failures degrade inside the manager; fail open here.
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("X-RateLimit-Remaining", "0")
			if !result.Reset.IsZero() {
				c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Next()
	}
}
