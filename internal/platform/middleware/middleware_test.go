package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

func newContext(method, path string) (*echo.Echo, echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e, e.NewContext(req, rec), rec
}

func TestRequestID_GeneratesNew(t *testing.T) {
	_, c, rec := newContext(http.MethodGet, "/")

	err := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get(RequestIDKey).(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	_, c, rec := newContext(http.MethodGet, "/")
	c.Request().Header.Set(RequestIDHeader, "my-custom-id")

	_ = RequestID()(func(c echo.Context) error { return nil })(c)

	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id, got %s", got)
	}
}

func TestLogger_WritesErrorResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	_, c, rec := newContext(http.MethodGet, "/api/v1/appointments/x")
	c.Set(RequestIDKey, "req-1")
	c.Set("user_id", "u-1")

	err := Logger(logger)(func(c echo.Context) error {
		return apperr.New(apperr.NotFound, "appointment not found")
	})(c)

	if err != nil {
		t.Fatalf("logger must hand errors to the error handler, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["status"] != float64(404) || line["request_id"] != "req-1" || line["user_id"] != "u-1" {
		t.Errorf("unexpected log line %v", line)
	}
	if line["level"] != "warn" {
		t.Errorf("expected warn level for a 4xx, got %v", line["level"])
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	_, c, _ := newContext(http.MethodGet, "/panic")

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("test panic")
	})(c)

	if apperr.KindOf(err) != apperr.Internal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if code, body := Classify(err); code != http.StatusInternalServerError || body.Message != "internal server error" {
		t.Errorf("expected a 500 without detail, got %d %+v", code, body)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"validation", apperr.New(apperr.Validation, "phone is required"), 400, "validation", "phone is required"},
		{"invalid transition", fmt.Errorf("wrap: %w", apperr.New(apperr.InvalidTransition, "completed cannot become waiting")), 409, "invalid_transition", "completed cannot become waiting"},
		{"permission", apperr.New(apperr.PermissionDenied, "nope"), 403, "permission_denied", "nope"},
		{"transient", apperr.Wrap(errors.New("dial"), apperr.TransientIO, "op", "store unreachable"), 503, "transient_io", "store unreachable"},
		{"referential gap", apperr.New(apperr.ReferentialGap, "doctor no longer exists"), 422, "referential_gap", "doctor no longer exists"},
		{"internal hides cause", errors.New("pq: secret detail"), 500, "internal", "internal server error"},
		{"echo error", echo.NewHTTPError(http.StatusUnauthorized, "invalid token"), 401, "unauthenticated", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := Classify(tt.err)
			if code != tt.wantCode || body.Kind != tt.wantKind || body.Message != tt.wantMsg {
				t.Errorf("got %d %+v", code, body)
			}
		})
	}
}

func TestErrorHandler_WritesJSON(t *testing.T) {
	e, c, rec := newContext(http.MethodPost, "/api/v1/appointments")
	c.Set(RequestIDKey, "req-9")

	e.HTTPErrorHandler(apperr.New(apperr.Validation, "date is required"), c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != "validation" || body.Message != "date is required" || body.RequestID != "req-9" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestSecurityHeaders(t *testing.T) {
	_, c, rec := newContext(http.MethodGet, "/api/v1/patients")
	if err := SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestRequestTimeout(t *testing.T) {
	slow := func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return c.String(http.StatusOK, "ok")
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	_, c, _ := newContext(http.MethodGet, "/api/v1/stats")
	err := RequestTimeout(20 * time.Millisecond)(slow)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}

	_, c, _ = newContext(http.MethodGet, "/ws")
	hasDeadline := true
	_ = RequestTimeout(20 * time.Millisecond)(func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return nil
	})(c)
	if hasDeadline {
		t.Error("websocket requests must not get a deadline")
	}
}
