package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// httpError maps a service error onto its status. Server errors keep their
// cause internal.
func httpError(err error) *echo.HTTPError {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		return echo.NewHTTPError(status, "Internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}

func parseID(c echo.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}
	return id, nil
}

// statusResponse is the {success, message} body used by follow and upload
// endpoints
func statusResponse(success bool, message string) map[string]interface{} {
	return map[string]interface{}{
		"success": success,
		"message": message,
	}
}
