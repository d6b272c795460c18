package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key under which the request id is stored.
const RequestIDKey = "effortsync.requestId"

// RequestIDHeader is the header used to propagate request ids end to end.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware ensures that each request has a stable request id.
// A client-supplied X-Request-ID is propagated; otherwise a new UUIDv4 is
// generated. The id is echoed in the response header and picked up by the
// access logger, so one id follows a request through logs on both sides.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set(RequestIDHeader, reqID)
		c.Set(RequestIDKey, reqID)
		c.Next()
	}
}

// RequestID returns the id assigned by RequestIDMiddleware, or "" when
// the middleware did not run.
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
