package sandbox

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	statusWarnThreshold  = 400
	statusErrorThreshold = 500

	sessionHeader = "X-Client-Session"
)

// ZerologLogger is a Gin middleware that logs requests using zerolog.
// Successful status polls are logged at debug level since clients issue
// them twice a second. Requests arriving through Handler carry the trace id
// of the calling client.
func ZerologLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()

		var evt *zerolog.Event
		switch {
		case status >= statusErrorThreshold:
			evt = log.Error()
		case status >= statusWarnThreshold:
			evt = log.Warn()
		case strings.Contains(c.FullPath(), "/status/"):
			evt = log.Debug()
		default:
			evt = log.Info()
		}

		if raw != "" {
			path = path + "?" + raw
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String())
		}

		evt.
			Int("status", status).
			Str("method", method).
			Str("path", path).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("session", c.GetHeader(sessionHeader)).
			Int("bytes", c.Writer.Size()).
			Msg("http request completed")
	}
}
