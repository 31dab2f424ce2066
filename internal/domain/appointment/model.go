package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

// Status is the lifecycle position of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusReturn    Status = "return"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Statuses lists the canonical status set.
var Statuses = []Status{StatusScheduled, StatusWaiting, StatusCompleted, StatusReturn, StatusCancelled, StatusNoShow}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", apperr.Newf(apperr.Validation, "unknown appointment status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Active appointments still occupy their slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

var (
	ErrAppointmentNotFound  = apperr.New(apperr.NotFound, "appointment not found")
	ErrInvalidTransition    = apperr.New(apperr.InvalidTransition, "appointment status change not allowed")
	ErrPatientNotFound      = apperr.New(apperr.ReferentialGap, "patient does not exist")
	ErrDoctorNotFound       = apperr.New(apperr.ReferentialGap, "doctor does not exist")
	ErrDoctorUnavailable    = apperr.New(apperr.Validation, "doctor is not accepting appointments")
	ErrDateInPast           = apperr.New(apperr.Validation, "appointment date is in the past")
	ErrOutsideBookingWindow = apperr.New(apperr.Validation, "appointment date is beyond the booking window")
	ErrClinicClosed         = apperr.New(apperr.Validation, "the clinic is closed on that day")
	ErrOutsideWorkingHours  = apperr.New(apperr.Validation, "appointment time is outside working hours")
	ErrDailyLimitReached    = apperr.New(apperr.Conflict, "the daily appointment limit has been reached")
	ErrOriginalNotCompleted = apperr.New(apperr.Validation, "a return visit needs a completed original appointment")
	ErrReturnWindowExpired  = apperr.New(apperr.Validation, "the free return window for this visit has expired")
	ErrReturnOfReturn       = apperr.New(apperr.Validation, "a return visit cannot start another free return")
	ErrNotReschedulable     = apperr.New(apperr.InvalidTransition, "only scheduled or return appointments can be rescheduled")
	ErrInsideCancelWindow   = apperr.New(apperr.PermissionDenied, "cancelling this close to the appointment requires override-booking-rules")
)

func invalidTransition(from, to Status) error {
	return &apperr.Error{
		Kind: apperr.InvalidTransition,
		Op:   "appointment.transition",
		Msg:  fmt.Sprintf("cannot move appointment from %s to %s", from, to),
		Err:  ErrInvalidTransition,
	}
}

// Appointment is a booked visit. Date is "YYYY-MM-DD" and Time "HH:MM" in
// the clinic's time zone.
type Appointment struct {
	ID                    uuid.UUID           `json:"id"`
	PatientID             uuid.UUID           `json:"patient_id"`
	DoctorID              uuid.UUID           `json:"doctor_id"`
	Date                  string              `json:"appointment_date"`
	Time                  string              `json:"appointment_time"`
	Status                Status              `json:"status"`
	Cost                  decimal.NullDecimal `json:"cost"`
	Notes                 *string             `json:"notes,omitempty"`
	Diagnosis             *string             `json:"diagnosis,omitempty"`
	Treatment             *string             `json:"treatment,omitempty"`
	OriginalAppointmentID *uuid.UUID          `json:"original_appointment_id,omitempty"`
	CheckedInAt           *time.Time          `json:"checked_in_at,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	CancelledAt           *time.Time          `json:"cancelled_at,omitempty"`
	CancellationReason    *string             `json:"cancellation_reason,omitempty"`
	CreatedBy             *uuid.UUID          `json:"created_by,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// StartsAt returns the appointment start as an instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.Time, loc)
	if err != nil {
		return time.Time{}, apperr.Wrap(err, apperr.Validation, "appointment.starts_at", "invalid appointment date or time")
	}
	return t, nil
}

// UnknownName stands in for a patient or doctor that no longer exists.
const UnknownName = "Unknown"

// Detail is an appointment joined with its patient and doctor. A missing
// referent reads as UnknownName with the matching flag set, never as an
// error.
type Detail struct {
	Appointment
	PatientName          string          `json:"patient_name"`
	PatientPhone         string          `json:"patient_phone"`
	DoctorName           string          `json:"doctor_name"`
	DoctorSpecialization string          `json:"doctor_specialization"`
	DoctorFee            decimal.Decimal `json:"doctor_fee"`
	PatientMissing       bool            `json:"patient_missing,omitempty"`
	DoctorMissing        bool            `json:"doctor_missing,omitempty"`
}

// BillableAmount is the revenue a completed appointment contributes: its
// cost, or the doctor's fee when no cost was recorded.
func (d *Detail) BillableAmount() decimal.Decimal {
	if d.Cost.Valid {
		return d.Cost.Decimal
	}
	if d.DoctorMissing {
		return decimal.Zero
	}
	return d.DoctorFee
}
