package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error)
	// UpdateStatus writes the status and its lifecycle fields: cost,
	// clinical notes and the checked-in, completed and cancelled stamps.
	UpdateStatus(ctx context.Context, a *Appointment) error
	Reschedule(ctx context.Context, a *Appointment) error
	// ListByDate orders by appointment time. A nil status lists all.
	ListByDate(ctx context.Context, date string, status *Status) ([]*Detail, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Detail, error)
	// CountActiveOnDate counts non-cancelled appointments on date, other
	// than exclude.
	CountActiveOnDate(ctx context.Context, date string, exclude uuid.UUID) (int, error)
}
