package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Authenticate verifies the bearer token, rejects revoked sessions and puts
// the Session on the request context. Websocket clients that cannot set
// headers may pass the token as the access_token query parameter.
func Authenticate(issuer *Issuer, revocations *RevocationStore, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}

			s, err := issuer.Verify(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := c.Request().Context()
			revoked, err := revocations.IsRevoked(ctx, s.TokenID)
			if err != nil {
				logger.Error().Err(err).Str("token_id", s.TokenID).Msg("revocation lookup failed")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session check unavailable")
			}
			if revoked {
				return echo.NewHTTPError(http.StatusUnauthorized, "session has been signed out")
			}

			c.SetRequest(c.Request().WithContext(WithSession(ctx, s)))
			c.Set("user_id", s.UserID.String())
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if q := c.QueryParam("access_token"); q != "" {
			return q, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}
