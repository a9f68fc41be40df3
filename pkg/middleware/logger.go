package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/labstack/echo/v4"
)

// Logger writes one access log line per request and records its latency. Server
// errors are logged at error level, everything else at info.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req := c.Request()
			ctx := req.Context()
			status := c.Response().Status
			route := c.Path()

			metrics.RecordHTTPRequest(route, req.Method, status, elapsed.Seconds())

			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"org_id":        context.GetOrgID(ctx),
				"actor_id":      context.GetActorID(ctx),
				"method":        req.Method,
				"route":         route,
				"uri":           req.RequestURI,
				"status":        status,
				"remote_ip":     c.RealIP(),
				"response_time": elapsed,
				"response_size": c.Response().Size,
			})
			if status >= http.StatusInternalServerError {
				entry.Error("Request failed")
			} else {
				entry.Info("Request")
			}
			return nil
		}
	}
}
