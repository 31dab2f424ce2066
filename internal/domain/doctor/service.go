package doctor

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/db"
	"github.com/clinicops/clinic/internal/platform/validate"
)

type Service struct {
	repo Repository
	tx   db.TxRunner
	ev   auth.Evaluator
}

func NewService(repo Repository, tx db.TxRunner, ev auth.Evaluator) *Service {
	return &Service{repo: repo, tx: tx, ev: ev}
}

func (s *Service) Create(ctx context.Context, p auth.Principal, d *Doctor) error {
	if err := auth.Authorize(s.ev, p, auth.CreateDoctor); err != nil {
		return err
	}
	d.applyDefaults()
	if err := check(d); err != nil {
		return err
	}
	return s.repo.Create(ctx, d)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUserID returns the doctor record linked to a user account.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *Service) Update(ctx context.Context, p auth.Principal, d *Doctor) error {
	if err := auth.Authorize(s.ev, p, auth.EditDoctor); err != nil {
		return err
	}
	existing, err := s.repo.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	d.UserID = existing.UserID
	d.applyDefaults()
	if err := check(d); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, d); err != nil {
		return err
	}
	d.FullName, d.Email = existing.FullName, existing.Email
	return nil
}

func (s *Service) SetAvailability(ctx context.Context, p auth.Principal, id uuid.UUID, available bool) error {
	if err := auth.Authorize(s.ev, p, auth.EditDoctor); err != nil {
		return err
	}
	return s.repo.SetAvailability(ctx, id, available)
}

// Delete removes a doctor nothing refers to.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := auth.Authorize(s.ev, p, auth.DeleteDoctor); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		refs, err := s.repo.References(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrDoctorReferenced
		}
		return s.repo.Delete(ctx, id)
	})
}

func (s *Service) List(ctx context.Context, availableOnly bool) ([]*Doctor, error) {
	return s.repo.List(ctx, availableOnly)
}

// Fee returns the doctor's consultation fee.
func (s *Service) Fee(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return d.ConsultationFee, nil
}

func check(d *Doctor) error {
	d.Specialization = strings.TrimSpace(d.Specialization)
	for i, w := range d.WorkingDays {
		d.WorkingDays[i] = strings.ToLower(strings.TrimSpace(w))
	}
	if err := validate.Struct(d); err != nil {
		return err
	}
	if d.ConsultationFee.IsNegative() {
		return ErrNegativeFee
	}
	if d.WorkingHoursStart >= d.WorkingHoursEnd {
		return ErrHoursOutOfOrder
	}
	return nil
}
