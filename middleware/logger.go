package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware writes one structured access-log line per request
// through the process slog logger, so HTTP traffic lands in the same
// tinted console and rotated file outputs as the watcher and hub logs.
// The request id from RequestIDMiddleware is attached when present.
// Websocket upgrades log on connection close, carrying the session
// duration in latencyMs.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"requestId", RequestID(c),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latencyMs", float64(time.Since(start)) / float64(time.Millisecond),
			"ip", c.ClientIP(),
			"size", c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.Error("request", attrs...)
		case status >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	}
}
