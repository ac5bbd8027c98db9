package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arimedika/server/internal/auth"
)

const userIDKey = "user_id"

// requireAuth validates the bearer token and stores the user id on the
// request context. WebSocket upgrades may carry the token in the "token"
// query parameter instead, since browsers cannot set headers on upgrade
// requests.
func requireAuth(manager *auth.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				token = c.QueryParam("token")
			}
			if token == "" {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "authorization required",
				})
			}

			userID, err := manager.ValidateAccess(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "invalid or expired token",
				})
			}

			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func currentUserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
