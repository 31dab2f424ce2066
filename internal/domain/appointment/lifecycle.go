package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicops/clinic/internal/domain/medicalrecord"
	"github.com/clinicops/clinic/internal/domain/notification"
	"github.com/clinicops/clinic/internal/domain/settings"
	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
)

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusWaiting, StatusCancelled, StatusNoShow},
	StatusReturn:    {StatusWaiting, StatusCancelled, StatusNoShow},
	StatusWaiting:   {StatusCompleted, StatusCancelled},
}

// targetCapability is the capability needed to move an appointment into a
// status. Scheduled and return are only ever initial.
var targetCapability = map[Status]auth.Capability{
	StatusWaiting:   auth.CheckInAppointment,
	StatusCompleted: auth.CompleteAppointment,
	StatusCancelled: auth.CancelAppointment,
	StatusNoShow:    auth.MarkNoShow,
}

// CanTransition reports whether from → to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// TransitionOptions carry the data a status change may record.
type TransitionOptions struct {
	Cost               *decimal.Decimal `json:"cost,omitempty"`
	Diagnosis          *string          `json:"diagnosis,omitempty"`
	Treatment          *string          `json:"treatment,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
	CancellationReason *string          `json:"cancellation_reason,omitempty"`
}

// Transition moves appointment id to target on behalf of p.
//
// The caller's capability is checked first. An appointment already in
// target is returned unchanged, so repeating a request is harmless. A move
// the lifecycle does not allow fails with an InvalidTransition error and
// leaves the row untouched. The status change and its side effects commit
// together.
func (s *Service) Transition(ctx context.Context, p auth.Principal, id uuid.UUID, target Status, opts TransitionOptions) (*Appointment, error) {
	if !target.Valid() {
		return nil, apperr.Newf(apperr.Validation, "unknown appointment status %q", target)
	}
	if c, ok := targetCapability[target]; ok {
		if err := auth.Authorize(s.ev, p, c); err != nil {
			return nil, err
		}
	}
	if opts.Cost != nil && opts.Cost.IsNegative() {
		return nil, apperr.New(apperr.Validation, "cost must not be negative")
	}

	var (
		result  *Appointment
		from    Status
		changed bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = a.Status
		if a.Status == target {
			result = a
			return nil
		}
		if !CanTransition(a.Status, target) {
			return invalidTransition(a.Status, target)
		}
		cs, err := s.settings.Get(ctx)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, p, a, target, opts, cs); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, a); err != nil {
			return err
		}
		if err := s.afterTransition(ctx, p, a, cs); err != nil {
			return err
		}
		result, changed = a, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info().
			Str("appointment_id", id.String()).
			Str("from", string(from)).
			Str("to", string(target)).
			Str("actor", p.UserID).
			Str("role", string(p.Role)).
			Msg("appointment status changed")
	}
	return result, nil
}

// apply sets the fields that accompany a move into target.
func (s *Service) apply(ctx context.Context, p auth.Principal, a *Appointment, target Status, opts TransitionOptions, cs *settings.CenterSettings) error {
	now := s.now()
	if opts.Notes != nil {
		a.Notes = opts.Notes
	}
	switch target {
	case StatusWaiting:
		a.CheckedInAt = &now
	case StatusCompleted:
		if opts.Diagnosis != nil {
			a.Diagnosis = opts.Diagnosis
		}
		if opts.Treatment != nil {
			a.Treatment = opts.Treatment
		}
		switch {
		case opts.Cost != nil:
			a.Cost = decimal.NewNullDecimal(*opts.Cost)
		case !a.Cost.Valid:
			fee, ok, err := s.doctorFee(ctx, a.DoctorID)
			if err != nil {
				return err
			}
			if ok {
				a.Cost = decimal.NewNullDecimal(fee)
			}
		}
		a.CompletedAt = &now
	case StatusCancelled:
		if a.Status != StatusWaiting {
			start, err := a.StartsAt(s.loc)
			if err != nil {
				return err
			}
			if cs.CancellationRestricted(start, now) && !s.ev.CanPerform(p.Role, auth.OverrideBookingRules) {
				return ErrInsideCancelWindow
			}
		}
		a.CancelledAt = &now
		a.CancellationReason = opts.CancellationReason
	}
	a.Status = target
	return nil
}

// afterTransition runs the side effects of the status a just entered.
func (s *Service) afterTransition(ctx context.Context, p auth.Principal, a *Appointment, cs *settings.CenterSettings) error {
	switch a.Status {
	case StatusCompleted:
		if !cs.AutoCreateMedicalRecords || s.records == nil {
			return nil
		}
		created, err := s.records.CreateForAppointment(ctx, medicalrecord.FromAppointment{
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			DoctorID:      a.DoctorID,
			VisitDate:     a.Date,
			Diagnosis:     a.Diagnosis,
			Treatment:     a.Treatment,
			Notes:         a.Notes,
			CreatedBy:     p.UUID(),
		})
		if err != nil {
			return err
		}
		if created {
			s.logger.Debug().Str("appointment_id", a.ID.String()).Msg("medical record created")
		}
	case StatusCancelled:
		if !cs.InAppNotifications {
			return nil
		}
		msg := fmt.Sprintf("The appointment on %s at %s was cancelled.", a.Date, a.Time)
		if a.CancellationReason != nil && *a.CancellationReason != "" {
			msg += " Reason: " + *a.CancellationReason
		}
		return s.notifyDoctor(ctx, a, "Appointment cancelled", msg)
	}
	return nil
}

// doctorFee returns the consultation fee of a doctor. A doctor that no
// longer exists reports ok=false rather than an error.
func (s *Service) doctorFee(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, bool, error) {
	d, err := s.doctors.Get(ctx, doctorID)
	if apperr.Is(err, apperr.NotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return d.ConsultationFee, true, nil
}

func (s *Service) notifyDoctor(ctx context.Context, a *Appointment, title, msg string) error {
	if s.notifier == nil {
		return nil
	}
	d, err := s.doctors.Get(ctx, a.DoctorID)
	if apperr.Is(err, apperr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.notifier.Notify(ctx, notificationFor(a, d.UserID, title, msg))
}

func notificationFor(a *Appointment, userID uuid.UUID, title, msg string) *notification.Notification {
	return &notification.Notification{
		UserID:  userID,
		Type:    notification.TypeAppointment,
		Title:   title,
		Message: msg,
		Metadata: map[string]interface{}{
			"appointment_id": a.ID.String(),
			"patient_id":     a.PatientID.String(),
			"date":           a.Date,
			"time":           a.Time,
			"status":         string(a.Status),
		},
	}
}
