package handlers

import (
	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// getUserIDFromContext extracts the authenticated user id set by the JWT
// middleware. Returns 0 when unauthenticated.
func getUserIDFromContext(c echo.Context) uint {
	claims, ok := c.Get("user").(*models.JwtCustomClaims)
	if !ok || claims == nil {
		return 0
	}
	return claims.UserID
}

// httpError converts a typed engine error into an echo HTTP error without
// leaking internals; the taxonomy code travels in the payload so clients can
// branch on it.
func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(apperrors.HTTPStatus(err), echo.Map{
		"code":    string(apperrors.CodeOf(err)),
		"message": err.Error(),
	})
}
