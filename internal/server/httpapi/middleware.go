package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/labstack/echo/v4"
)

const userIDKey = "user_id"

// accessTokenMiddleware authenticates the request from the access_token
// cookie or, failing that, an "Authorization: Bearer" header.
func (s *Server) accessTokenMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
		}

		claims, err := s.tokens.Verify(token)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				return echo.NewHTTPError(http.StatusUnauthorized, "access token expired")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		c.Set(userIDKey, claims.UserID)
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	if cookie, err := c.Cookie(common.AccessTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	parts := strings.Fields(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

func userID(c echo.Context) int64 {
	id, _ := c.Get(userIDKey).(int64)
	return id
}
