package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/paveg/pivotgrid/internal/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps err to an HTTP status and a short error code.
func StatusFor(err error) (int, string) {
	if kind, ok := errors.KindOf(err); ok {
		switch kind {
		case errors.KindInvalidInput, errors.KindColumnNotFound, errors.KindInvalidRange, errors.KindTypeMismatch:
			return http.StatusBadRequest, kind.String()
		case errors.KindQuery:
			return http.StatusUnprocessableEntity, kind.String()
		case errors.KindSourceUnavailable:
			return http.StatusServiceUnavailable, kind.String()
		default:
			return http.StatusInternalServerError, kind.String()
		}
	}

	var he *echo.HTTPError
	if stderrors.As(err, &he) {
		return he.Code, "http_error"
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, errors.KindInternal.String()
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, code := StatusFor(err)
	message := err.Error()
	var he *echo.HTTPError
	if stderrors.As(err, &he) {
		message = fmt.Sprint(he.Message)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Error: code, Message: message})
	}
	if err != nil {
		s.logger.Error("writing error response", "error", err)
	}
}
