package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/yardwatch/yardwatch/internal/logger"
)

// TraceHeader carries the request trace ID in and out.
const TraceHeader = "X-Request-ID"

// Trace puts a trace ID on the request context so handler and job logs can
// be correlated. An incoming X-Request-ID is reused.
func Trace() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(TraceHeader)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
			c.Response().Header().Set(TraceHeader, id)
			return next(c)
		}
	}
}
