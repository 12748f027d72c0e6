package utils

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// PathParam returns a required path parameter, failing with 400 when it is blank
func PathParam(c echo.Context, name string) (string, error) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "missing "+name)
	}
	return value, nil
}
