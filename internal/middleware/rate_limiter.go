package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smarttransit/student-booking-engine/internal/services"
)

// CommitRateLimiter throttles booking commits per authenticated student.
// Must be used after AuthMiddleware.
func CommitRateLimiter(limiter *services.RateLimitService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "User context not found", "MISSING_USER_CONTEXT")
			return
		}

		err := limiter.CheckCommitRateLimit(userCtx.StudentID)
		if err == nil {
			c.Next()
			return
		}

		var rateLimitErr *services.RateLimitError
		if errors.As(err, &rateLimitErr) {
			retryAfter := int(math.Ceil(time.Until(rateLimitErr.RetryAfter).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			abortWithError(c, http.StatusTooManyRequests, "rate_limited", rateLimitErr.Message, "RATE_LIMIT_EXCEEDED")
			return
		}

		abortWithError(c, http.StatusInternalServerError, "internal_error", "Failed to check rate limit", "INTERNAL_ERROR")
	}
}
