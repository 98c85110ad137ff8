package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type revokeTokenRequest struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRevocationRoutes registers the admin-only token revocation endpoint.
func RegisterRevocationRoutes(g *echo.Group, store RevocationStore) {
	authGroup := g.Group("/auth", RequireRole(RoleAdmin))
	authGroup.POST("/revoke", handleRevokeToken(store))
}

func handleRevokeToken(store RevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeTokenRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.JTI == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "jti is required")
		}
		if req.ExpiresAt.IsZero() {
			req.ExpiresAt = time.Now().Add(time.Hour)
		}

		ctx := c.Request().Context()
		if err := store.Revoke(ctx, req.JTI, req.ExpiresAt); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("jti", req.JTI).Msg("revoke token")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke token")
		}

		zerolog.Ctx(ctx).Info().
			Str("jti", req.JTI).
			Str("revoked_by", UserIDFromContext(ctx)).
			Time("expires_at", req.ExpiresAt).
			Msg("token revoked")
		return c.NoContent(http.StatusNoContent)
	}
}
