package middleware

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"patient-records-server/internal/logger"
	"patient-records-server/internal/metrics"
	"patient-records-server/internal/utils"
)

const RequestIDHeader = "X-Request-ID"

// RequestID reuses an inbound X-Request-ID or assigns a new one, and echoes it
// on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(utils.RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	id, _ := getString(c, utils.RequestIDKey)
	return id
}

// RequestLogger writes one line per request after it completes.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.HTTPRequest(
			GetRequestID(c),
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start).Milliseconds(),
		)
	}
}

// Metrics records request counts and latency under the matched route pattern.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// ErrorReporter sends errors attached with c.Error on 5xx responses to Sentry.
// A nil hub disables reporting.
func ErrorReporter(hub *sentry.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if hub == nil || c.Writer.Status() < 500 || len(c.Errors) == 0 {
			return
		}

		local := hub.Clone()
		local.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("request_id", GetRequestID(c))
			scope.SetTag("route", c.FullPath())
			scope.SetRequest(c.Request)
			if userID, ok := GetUserIDFromContext(c); ok {
				scope.SetUser(sentry.User{ID: userID})
			}
		})
		for _, e := range c.Errors {
			local.CaptureException(e.Err)
		}
	}
}
