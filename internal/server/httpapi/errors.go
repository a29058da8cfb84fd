package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps service errors to a status code and client-facing detail.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, verrs.Error()
	case errors.Is(err, common.ErrTokenNotFound):
		return http.StatusNotFound, "token not found"
	case errors.Is(err, common.ErrTokenMismatch):
		return http.StatusBadRequest, "token does not match"
	case errors.Is(err, common.ErrUnknownAction):
		return http.StatusBadRequest, "unknown action"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, common.ErrDuplicateEmail):
		return http.StatusBadRequest, "email already registered"
	case errors.Is(err, common.ErrInvalidUserData):
		return http.StatusBadRequest, "invalid user data"
	case errors.Is(err, common.ErrWrongPassword):
		return http.StatusBadRequest, "wrong password"
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusBadRequest, "wrong email or password"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrConnection):
		return http.StatusServiceUnavailable, "message broker unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code   int
		detail string
	)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	} else {
		code, detail = statusFor(err)
	}

	ctx := c.Request().Context()
	if code >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", "path", c.Path(), "error", err)
	} else {
		s.logger.Warn(ctx, "request rejected", "path", c.Path(), "status", code, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Detail: detail})
}
