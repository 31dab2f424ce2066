package medicalrecord

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

var (
	ErrRecordNotFound = apperr.New(apperr.NotFound, "medical record not found")
	ErrUnknownSubject = apperr.New(apperr.ReferentialGap, "patient, doctor or appointment does not exist")
)

// UnknownName stands in for a patient or doctor that no longer exists.
const UnknownName = "Unknown"

// VitalSigns is stored as a JSON document; every reading is optional.
type VitalSigns struct {
	BloodPressure    *string  `json:"blood_pressure,omitempty" validate:"omitempty,max=16"`
	HeartRate        *int     `json:"heart_rate,omitempty" validate:"omitempty,gte=20,lte=300"`
	Temperature      *float64 `json:"temperature,omitempty" validate:"omitempty,gte=30,lte=45"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty" validate:"omitempty,gte=4,lte=80"`
	Weight           *float64 `json:"weight,omitempty" validate:"omitempty,gt=0,lte=500"`
	Height           *float64 `json:"height,omitempty" validate:"omitempty,gt=0,lte=300"`
	OxygenSaturation *int     `json:"oxygen_saturation,omitempty" validate:"omitempty,gte=50,lte=100"`
}

// MedicalRecord documents one visit. At most one record exists per
// appointment.
type MedicalRecord struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id" validate:"required"`
	DoctorID       uuid.UUID  `json:"doctor_id" validate:"required"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	VisitDate      string     `json:"visit_date" validate:"required,datetime=2006-01-02"`
	ChiefComplaint *string    `json:"chief_complaint,omitempty"`
	Diagnosis      *string    `json:"diagnosis,omitempty"`
	Treatment      *string    `json:"treatment,omitempty"`
	Prescription   *string    `json:"prescription,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	FollowUpDate   *string    `json:"follow_up_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	VitalSigns     VitalSigns `json:"vital_signs"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Detail is a record with the names of its patient and doctor. Missing
// referents read as UnknownName with the matching flag set.
type Detail struct {
	MedicalRecord
	PatientName    string `json:"patient_name"`
	DoctorName     string `json:"doctor_name"`
	PatientMissing bool   `json:"patient_missing,omitempty"`
	DoctorMissing  bool   `json:"doctor_missing,omitempty"`
}

// FromAppointment is what a completed appointment contributes to its
// automatically created record.
type FromAppointment struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	VisitDate     string
	Diagnosis     *string
	Treatment     *string
	Notes         *string
	CreatedBy     *uuid.UUID
}

func (f FromAppointment) record() *MedicalRecord {
	id := f.AppointmentID
	return &MedicalRecord{
		PatientID:     f.PatientID,
		DoctorID:      f.DoctorID,
		AppointmentID: &id,
		VisitDate:     f.VisitDate,
		Diagnosis:     f.Diagnosis,
		Treatment:     f.Treatment,
		Notes:         f.Notes,
		CreatedBy:     f.CreatedBy,
	}
}
