package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

var (
	ErrPatientNotFound   = apperr.New(apperr.NotFound, "patient not found")
	ErrDuplicatePhone    = apperr.New(apperr.Conflict, "a patient with this phone number already exists")
	ErrPatientReferenced = apperr.New(apperr.Conflict, "patient has appointments or medical records and cannot be deleted")
)

// Patient is a person registered with the clinic. Dates are "YYYY-MM-DD".
type Patient struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                *uuid.UUID `json:"user_id,omitempty"`
	FullName              string     `json:"full_name" validate:"required,min=2,max=255"`
	Phone                 string     `json:"phone" validate:"required,phone"`
	Email                 *string    `json:"email,omitempty" validate:"omitempty,email"`
	DateOfBirth           *string    `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender                *string    `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Address               *string    `json:"address,omitempty"`
	BloodType             *string    `json:"blood_type,omitempty" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies             *string    `json:"allergies,omitempty"`
	ChronicConditions     *string    `json:"chronic_conditions,omitempty"`
	EmergencyContactName  *string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone,omitempty" validate:"omitempty,phone"`
	Notes                 *string    `json:"notes,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (p *Patient) normalize() {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*p.Email))
		p.Email = &e
		if e == "" {
			p.Email = nil
		}
	}
}
