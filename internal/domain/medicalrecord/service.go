package medicalrecord

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/validate"
)

type Service struct {
	repo Repository
	ev   auth.Evaluator
}

func NewService(repo Repository, ev auth.Evaluator) *Service {
	return &Service{repo: repo, ev: ev}
}

func (s *Service) Create(ctx context.Context, p auth.Principal, r *MedicalRecord) error {
	if err := auth.Authorize(s.ev, p, auth.CreateMedicalRecord); err != nil {
		return err
	}
	if err := validate.Struct(r); err != nil {
		return err
	}
	r.CreatedBy = p.UUID()
	return s.repo.Create(ctx, r)
}

// CreateForAppointment writes the record that accompanies a completed
// appointment. Calling it again for the same appointment is a no-op; the
// result reports whether a record was written. Authorization is the
// caller's: completing the appointment already required it.
func (s *Service) CreateForAppointment(ctx context.Context, from FromAppointment) (bool, error) {
	r := from.record()
	if err := validate.Struct(r); err != nil {
		return false, err
	}
	return s.repo.CreateForAppointment(ctx, r)
}

func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Detail, error) {
	if err := auth.Authorize(s.ev, p, auth.ViewMedicalRecord); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByAppointment(ctx context.Context, p auth.Principal, appointmentID uuid.UUID) (*Detail, error) {
	if err := auth.Authorize(s.ev, p, auth.ViewMedicalRecord); err != nil {
		return nil, err
	}
	return s.repo.GetByAppointment(ctx, appointmentID)
}

// Update rewrites the clinical content of a record.
func (s *Service) Update(ctx context.Context, p auth.Principal, r *MedicalRecord) error {
	if err := auth.Authorize(s.ev, p, auth.EditMedicalRecord); err != nil {
		return err
	}
	existing, err := s.repo.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}
	r.PatientID = existing.PatientID
	r.DoctorID = existing.DoctorID
	r.AppointmentID = existing.AppointmentID
	if r.VisitDate == "" {
		r.VisitDate = existing.VisitDate
	}
	if err := validate.Struct(r); err != nil {
		return err
	}
	return s.repo.UpdateContent(ctx, r)
}

func (s *Service) ListByPatient(ctx context.Context, p auth.Principal, patientID uuid.UUID) ([]*Detail, error) {
	if err := auth.Authorize(s.ev, p, auth.ViewMedicalRecord); err != nil {
		return nil, err
	}
	return s.repo.ListByPatient(ctx, patientID)
}
