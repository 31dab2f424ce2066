package settings

import (
	"context"
	"strings"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/validate"
)

// Reader is what consumers of the settings need. Booking, the lifecycle
// state machine and the stats engine depend on this rather than *Service.
type Reader interface {
	Get(ctx context.Context) (*CenterSettings, error)
}

type Service struct {
	repo Repository
	ev   auth.Evaluator
}

func NewService(repo Repository, ev auth.Evaluator) *Service {
	return &Service{repo: repo, ev: ev}
}

// Get returns the clinic settings, creating the default row on first
// access.
func (s *Service) Get(ctx context.Context) (*CenterSettings, error) {
	cs, err := s.repo.Get(ctx)
	if err == nil {
		return cs, nil
	}
	if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}
	if err := s.repo.EnsureDefaults(ctx); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, p auth.Principal, cs *CenterSettings) error {
	if err := auth.Authorize(s.ev, p, auth.ManageSettings); err != nil {
		return err
	}
	for i, d := range cs.WorkingDays {
		cs.WorkingDays[i] = strings.ToLower(strings.TrimSpace(d))
	}
	cs.CurrencyCode = strings.ToUpper(cs.CurrencyCode)
	if err := validate.Struct(cs); err != nil {
		return err
	}
	if cs.WorkingHoursStart >= cs.WorkingHoursEnd {
		return apperr.New(apperr.Validation, "working_hours_start must be before working_hours_end")
	}
	if _, err := s.Get(ctx); err != nil {
		return err
	}
	return s.repo.Update(ctx, cs)
}
