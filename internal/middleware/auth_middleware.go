package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smarttransit/student-booking-engine/pkg/jwt"
)

// UserContextKey is the gin context key holding the authenticated UserContext
const UserContextKey = "user_context"

// UserContext is the identity extracted from a validated bearer token
type UserContext struct {
	StudentID string
	Roles     []string
}

// HasRole reports whether the user holds any of the given roles
func (u UserContext) HasRole(roles ...string) bool {
	for _, have := range u.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// AuthMiddleware validates the bearer token and stores the UserContext
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Authorization header format must be Bearer {token}", "INVALID_AUTH_FORMAT")
			return
		}

		claims, err := jwtService.ValidateAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortWithError(c, http.StatusUnauthorized, "token_expired", "Access token has expired", "TOKEN_EXPIRED")
				return
			}
			abortWithError(c, http.StatusUnauthorized, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			return
		}

		userCtx := UserContext{
			StudentID: claims.Student(),
			Roles:     claims.Roles,
		}
		c.Set(UserContextKey, userCtx)
		c.Set("student_id", userCtx.StudentID)

		c.Next()
	}
}

// GetUserContext returns the UserContext set by AuthMiddleware
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}
	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}
	return userCtx, true
}

// RequireRole allows the request through only if the user holds one of the roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "User context not found", "MISSING_USER_CONTEXT")
			return
		}

		if !userCtx.HasRole(roles...) {
			abortWithError(c, http.StatusForbidden, "forbidden", "Insufficient permissions", "INSUFFICIENT_PERMISSIONS")
			return
		}

		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, errCode, message, code string) {
	body := gin.H{
		"error":   errCode,
		"message": message,
		"code":    code,
	}
	if requestID := GetRequestID(c); requestID != "" {
		body["request_id"] = requestID
	}
	c.AbortWithStatusJSON(status, body)
}
