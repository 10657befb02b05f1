package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/feral-file/ff-options/internal/api/shared/errors"
	"github.com/feral-file/ff-options/internal/logger"
	"github.com/feral-file/ff-options/internal/ratelimit"
)

// RateLimit throttles requests per authenticated subject, or per client IP
// when the caller has no subject. It must run after Auth.
// A limiter error lets the request through.
func RateLimit(l ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)
		d, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			logger.WarnCtx(c.Request.Context(), "Rate limiter unavailable",
				zap.Error(err),
				zap.String("request_id", GetRequestID(c)),
			)
			c.Next()
			return
		}

		if !d.Allowed {
			seconds := int(math.Ceil(d.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				apierrors.NewRateLimitedError("retry after "+strconv.Itoa(seconds)+"s"))
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if subject, ok := c.Get(AUTH_SUBJECT_KEY); ok {
		if s, _ := subject.(string); s != "" {
			return "sub:" + s
		}
	}
	return "ip:" + c.ClientIP()
}
