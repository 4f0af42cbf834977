// internal/api/router.go
package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/metrics"
)

// NewRouter assembles the gin engine: recovery, request logging,
// request metrics, the Prometheus endpoint and the API routes.
func NewRouter(handler *Handler, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(requestMetrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(&r.RouterGroup)

	return r
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	l := log.WithFields(map[string]interface{}{"component": "http"})
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l.Info("request handled", map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
