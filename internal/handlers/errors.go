package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/smarttransit/student-booking-engine/internal/middleware"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, errCode, message, code string) {
	c.JSON(status, ErrorResponse{
		Error:     errCode,
		Message:   message,
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}
