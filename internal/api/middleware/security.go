package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// APIHeaders sets response headers shared by every endpoint and disables
// caching for /api responses, whose results depend on the live catalog.
func APIHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")

			if strings.HasPrefix(c.Request().URL.Path, "/api") {
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}
