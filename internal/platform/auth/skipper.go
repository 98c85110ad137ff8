package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication and tenant resolution.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return isPublicPath(c.Path())
}

// isPublicPath reports whether route is served without a token or tenant.
func isPublicPath(path string) bool {
	return publicPaths[path]
}
