package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"BarPilot/pkg/logger"
)

// RequestLogging logs each request with its status and latency.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.Debug("http request",
				logger.String("method", c.Request().Method),
				logger.String("path", c.Request().RequestURI),
				logger.Int("status", c.Response().Status),
				logger.Dur("latency", time.Since(start)))
			return err
		}
	}
}
