package server

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/HaoJinjin/open-soda/pkg/log"
)

// corsMiddleware allows every origin when origins is empty or exactly "*".
func corsMiddleware(origins []string) gin.HandlerFunc {
	methods := []string{"GET", "POST", "OPTIONS"}
	headers := []string{"Origin", "Content-Type", "Authorization"}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    methods,
			AllowHeaders:    headers,
			ExposeHeaders:   []string{"Content-Length"},
			MaxAge:          12 * time.Hour,
		})
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     headers,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// requestMetrics records one log line and the Prometheus series per request.
func requestMetrics(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		fields := []any{
			log.HTTPMethodKey, c.Request.Method,
			log.HTTPRouteKey, route,
			log.HTTPStatusKey, status,
			log.ClientIPKey, c.ClientIP(),
			log.DurationMsKey, elapsed.Milliseconds(),
		}
		switch {
		case status >= 500:
			logger.Error("Request failed", fields...)
		case route == "/health" || route == "/metrics":
			logger.Debug("Request served", fields...)
		default:
			logger.Info("Request served", fields...)
		}
	}
}
