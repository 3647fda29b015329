package respond

import (
	"github.com/gin-gonic/gin"

	"coursedocs-backend/internal/shared/telemetry"
)

// ErrorBody is the payload under the "error" key of every failed response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds the envelope without writing it, for transports
// outside gin.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}}
}

// Error logs the failure and aborts the request with the error envelope.
// Client errors log at warn, server errors at error.
func Error(c *gin.Context, status int, code, message string, details any) {
	requestID := c.GetString("requestId")
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"route":      route,
		"method":     c.Request.Method,
		"request_id": requestID,
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if status >= 500 {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	body := NewErrorResponse(code, message, details)
	body.Error.RequestID = requestID
	c.AbortWithStatusJSON(status, body)
}
