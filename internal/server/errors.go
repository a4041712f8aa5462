package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/frontdesk/models"
	"go.uber.org/zap"
)

// statusFor maps the engine's error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrAlreadyFinalized):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrPersistence):
		return http.StatusServiceUnavailable, "storage unavailable, try again later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// errorHandler renders every error as {"error": msg} and logs it.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, msg := statusFor(err)
		req := c.Request()
		fields := []zap.Field{
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote_ip", c.RealIP()),
			zap.Error(err),
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
}
