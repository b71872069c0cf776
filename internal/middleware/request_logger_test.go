package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/staybook/hotel-booking-backend/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := setupTestRouter()
	router.Use(RequestLogger(logger))
	router.GET("/bookings/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/bookings/:id", "200"))

	req := httptest.NewRequest("GET", "/bookings/123", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/bookings/:id", entry.Data["route"])
	assert.Equal(t, "/bookings/123", entry.Data["path"])
	assert.Equal(t, 200, entry.Data["status"])
	assert.Contains(t, entry.Data["device"], "mobile")

	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/bookings/:id", "200"))
	assert.Equal(t, before+1, after)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/broken", nil))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "unmatched", hook.LastEntry().Data["route"])
}
