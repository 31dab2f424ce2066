package patient

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicops/clinic/internal/platform/apperr"
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

func (s *Service) Create(ctx context.Context, p auth.Principal, pt *Patient) error {
	if err := auth.Authorize(s.ev, p, auth.CreatePatient); err != nil {
		return err
	}
	pt.normalize()
	if err := validate.Struct(pt); err != nil {
		return err
	}
	if err := s.checkPhone(ctx, pt.Phone, uuid.Nil); err != nil {
		return err
	}
	return s.repo.Create(ctx, pt)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p auth.Principal, pt *Patient) error {
	if err := auth.Authorize(s.ev, p, auth.EditPatient); err != nil {
		return err
	}
	pt.normalize()
	if err := validate.Struct(pt); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, pt.ID); err != nil {
		return err
	}
	if err := s.checkPhone(ctx, pt.Phone, pt.ID); err != nil {
		return err
	}
	return s.repo.Update(ctx, pt)
}

// Delete removes a patient nothing refers to. Patients with appointments or
// medical records are kept so history never loses its subject.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := auth.Authorize(s.ev, p, auth.DeletePatient); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		refs, err := s.repo.References(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrPatientReferenced
		}
		return s.repo.Delete(ctx, id)
	})
}

func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, strings.TrimSpace(search), limit, offset)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) checkPhone(ctx context.Context, phone string, self uuid.UUID) error {
	existing, err := s.repo.GetByPhone(ctx, phone)
	if errors.Is(err, ErrPatientNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != self {
		return ErrDuplicatePhone
	}
	return nil
}

// Exists reports whether id names a patient. Lookup failures other than
// not-found are returned.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if apperr.Is(err, apperr.NotFound) {
		return false, nil
	}
	return err == nil, err
}
