package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Classify maps err to a status code and response body. Internal errors are
// reported without their cause.
func Classify(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, ErrorBody{Kind: kindForStatus(he.Code), Message: msg}
	}

	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		return http.StatusInternalServerError, ErrorBody{Kind: kind.String(), Message: "internal server error"}
	}
	return kind.HTTPStatus(), ErrorBody{Kind: kind.String(), Message: apperr.Message(err)}
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return apperr.Validation.String()
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return apperr.PermissionDenied.String()
	case http.StatusNotFound:
		return apperr.NotFound.String()
	case http.StatusGatewayTimeout:
		return "timeout"
	}
	if code >= 500 {
		return apperr.Internal.String()
	}
	return "error"
}

// ErrorHandler renders errors as ErrorBody JSON. Internal errors are logged
// with their cause.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := Classify(err)
		body.RequestID, _ = c.Get(RequestIDKey).(string)

		if status >= 500 {
			logger.Error().Err(err).Str("request_id", body.RequestID).Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}
