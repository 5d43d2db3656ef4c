package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/vibemusic/metrics"
)

// Metrics records request counts and latency by route template.
func Metrics() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		done := metrics.TrackInFlight()
		start := time.Now()
		ctx.Next()
		done()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status()), time.Since(start).Seconds())
	}
}
