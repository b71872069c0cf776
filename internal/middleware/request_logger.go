package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/metrics"
	"github.com/staybook/hotel-booking-backend/internal/utils"
)

// RequestLogger logs every request and records the HTTP metrics
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		// route template keeps metric cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		statusLabel := strconv.Itoa(status)

		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, statusLabel).Observe(latency.Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusLabel).Inc()

		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"route":      path,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"ip":         utils.GetRealIP(c),
			"device":     utils.DeviceLabel(utils.GetUserAgent(c)),
		}
		if userCtx, ok := GetUserContext(c); ok && !userCtx.ViaAdminKey {
			fields["user_id"] = userCtx.UserID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request handled")
		}
	}
}
