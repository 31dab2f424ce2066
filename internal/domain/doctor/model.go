package doctor

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

var (
	ErrDoctorNotFound   = apperr.New(apperr.NotFound, "doctor not found")
	ErrProfileNotFound  = apperr.New(apperr.ReferentialGap, "user profile not found")
	ErrDoctorReferenced = apperr.New(apperr.Conflict, "doctor has appointments or medical records and cannot be deleted")
	ErrDoctorExists     = apperr.New(apperr.Conflict, "this user already has a doctor record")
	ErrNegativeFee      = apperr.New(apperr.Validation, "consultation_fee must not be negative")
	ErrHoursOutOfOrder  = apperr.New(apperr.Validation, "working_hours_start must be before working_hours_end")
)

// UnknownName stands in for a doctor whose profile is gone.
const UnknownName = "Unknown"

// Doctor is a practitioner. FullName and Email come from the linked
// profile and are read-only here.
type Doctor struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id" validate:"required"`
	FullName          string          `json:"full_name"`
	Email             *string         `json:"email,omitempty"`
	Specialization    string          `json:"specialization" validate:"required,max=255"`
	ConsultationFee   decimal.Decimal `json:"consultation_fee"`
	ReturnDays        int             `json:"return_days" validate:"gte=0,lte=365"`
	WorkingHoursStart string          `json:"working_hours_start" validate:"required,clock"`
	WorkingHoursEnd   string          `json:"working_hours_end" validate:"required,clock"`
	WorkingDays       []string        `json:"working_days" validate:"required,min=1,dive,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	IsAvailable       bool            `json:"is_available"`
	Bio               *string         `json:"bio,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// applyDefaults fills the fields a create request may leave out.
func (d *Doctor) applyDefaults() {
	if d.WorkingHoursStart == "" {
		d.WorkingHoursStart = "09:00"
	}
	if d.WorkingHoursEnd == "" {
		d.WorkingHoursEnd = "17:00"
	}
	if len(d.WorkingDays) == 0 {
		d.WorkingDays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday"}
	}
}
