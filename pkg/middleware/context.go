package middleware

import (
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	HeaderOrgID   = "X-Tenant-ID"
	HeaderActorID = "X-User-ID"
)

// Context copies the request id, org and actor headers into the request context.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetRoute(ctx, req.URL.Path)
			if orgID := req.Header.Get(HeaderOrgID); orgID != "" {
				ctx = context.SetOrgID(ctx, orgID)
			}
			if actorID := req.Header.Get(HeaderActorID); actorID != "" {
				ctx = context.SetActorID(ctx, actorID)
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
