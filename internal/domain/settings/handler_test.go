package settings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
)

func newRequestContext(method, body string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/api/v1/settings", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Get(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc, auth.StaticEvaluator{})
	c, rec := newRequestContext(http.MethodGet, "", &admin)

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cs CenterSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &cs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cs.CurrencySymbol != "$" {
		t.Errorf("expected default currency symbol, got %q", cs.CurrencySymbol)
	}
}

func TestHandler_Update(t *testing.T) {
	svc, repo := newTestService()
	h := NewHandler(svc, auth.StaticEvaluator{})
	body := `{"clinic_name":"Nile Clinic","working_hours_start":"08:00","working_hours_end":"16:00",
		"working_days":["saturday","sunday"],"appointment_duration":20,"booking_window_days":14,
		"currency_code":"EGP","currency_symbol":"E£","in_app_notifications":true}`
	c, rec := newRequestContext(http.MethodPut, body, &admin)

	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.row.ClinicName != "Nile Clinic" || repo.row.AppointmentDuration != 20 {
		t.Errorf("unexpected stored row: %+v", repo.row)
	}
}

func TestHandler_UpdateDenied(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc, auth.StaticEvaluator{})
	nurse := auth.Principal{UserID: "n", Role: auth.RoleNurse}
	c, _ := newRequestContext(http.MethodPut, `{"clinic_name":"x"}`, &nurse)

	err := h.Update(c)
	if !apperr.Is(err, apperr.PermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}
