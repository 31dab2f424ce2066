package validate

import (
	"strings"
	"testing"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

type sample struct {
	Name  string  `json:"full_name" validate:"required,min=2"`
	Phone string  `json:"phone" validate:"required,phone"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Start string  `json:"start" validate:"omitempty,clock"`
	Kind  string  `json:"kind" validate:"omitempty,oneof=a b"`
}

func TestStruct_Valid(t *testing.T) {
	email := "a@b.co"
	s := sample{Name: "Ada", Phone: "+201001234567", Email: &email, Start: "09:30", Kind: "a"}
	if err := Struct(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStruct_Messages(t *testing.T) {
	bad := "not-an-email"
	err := Struct(sample{Phone: "abc", Email: &bad, Start: "25:00", Kind: "c"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected validation kind, got %v", apperr.KindOf(err))
	}
	msg := apperr.Message(err)
	for _, want := range []string{
		"full_name is required",
		"phone must be a valid phone number",
		"email must be a valid email address",
		"start must be a time of day in HH:MM",
		"kind must be one of [a b]",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected message to contain %q, got %q", want, msg)
		}
	}
}

func TestClock(t *testing.T) {
	for _, ok := range []string{"00:00", "09:05", "23:59"} {
		if !Clock(ok) {
			t.Errorf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"24:00", "9:00", "12:60", ""} {
		if Clock(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}
