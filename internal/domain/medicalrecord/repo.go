package medicalrecord

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	// CreateForAppointment inserts r unless a record for r.AppointmentID
	// already exists. It reports whether a row was inserted.
	CreateForAppointment(ctx context.Context, r *MedicalRecord) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Detail, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Detail, error)
	// UpdateContent rewrites the clinical fields only; the patient, doctor
	// and appointment links are fixed at creation.
	UpdateContent(ctx context.Context, r *MedicalRecord) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Detail, error)
}
