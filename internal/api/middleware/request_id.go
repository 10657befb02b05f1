package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"

	REQUEST_ID_KEY contextKey = "request_id"

	maxRequestIDLength = 128
)

// RequestID tags each request with the caller's X-Request-ID, or a new UUID when it is missing or oversized
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		c.Set(REQUEST_ID_KEY, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID assigned by RequestID, or "" outside of it
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(REQUEST_ID_KEY); ok {
		id, _ := v.(string)
		return id
	}
	return ""
}
