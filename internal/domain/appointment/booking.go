package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicops/clinic/internal/domain/doctor"
	"github.com/clinicops/clinic/internal/domain/settings"
	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/validate"
)

const dateLayout = "2006-01-02"

// BookRequest asks for a new appointment.
type BookRequest struct {
	PatientID uuid.UUID        `json:"patient_id" validate:"required"`
	DoctorID  uuid.UUID        `json:"doctor_id" validate:"required"`
	Date      string           `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time      string           `json:"appointment_time" validate:"required,clock"`
	Cost      *decimal.Decimal `json:"cost,omitempty"`
	Notes     *string          `json:"notes,omitempty"`
}

// ReturnRequest asks for a free follow-up of a completed appointment.
type ReturnRequest struct {
	Date  string  `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time  string  `json:"appointment_time" validate:"required,clock"`
	Notes *string `json:"notes,omitempty"`
}

// RescheduleRequest moves a not-yet-attended appointment.
type RescheduleRequest struct {
	Date  string  `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time  string  `json:"appointment_time" validate:"required,clock"`
	Notes *string `json:"notes,omitempty"`
}

// ReturnEligibility describes whether a completed visit still qualifies for
// a free return.
type ReturnEligibility struct {
	Eligible         bool   `json:"eligible"`
	OriginalDate     string `json:"original_date"`
	LastEligibleDate string `json:"last_eligible_date,omitempty"`
	ReturnDays       int    `json:"return_days"`
	Reason           string `json:"reason,omitempty"`
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.Validation, "invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// checkSlot applies the clinic calendar to a requested date and time.
func (s *Service) checkSlot(cs *settings.CenterSettings, date, clock string) error {
	day, err := parseDate(date, s.loc)
	if err != nil {
		return err
	}
	now := s.now().In(s.loc)
	today, _ := parseDate(now.Format(dateLayout), s.loc)
	if day.Before(today) {
		return ErrDateInPast
	}
	if day.Equal(today) && clock < now.Format("15:04") {
		return apperr.New(apperr.Validation, "appointment time has already passed")
	}
	if cs.BookingWindowDays > 0 && day.After(today.AddDate(0, 0, cs.BookingWindowDays)) {
		return ErrOutsideBookingWindow
	}
	if !cs.WorksOn(day) {
		return ErrClinicClosed
	}
	if !cs.WithinHours(clock) {
		return ErrOutsideWorkingHours
	}
	return nil
}

func (s *Service) checkCapacity(ctx context.Context, cs *settings.CenterSettings, date string, exclude uuid.UUID) error {
	if cs.MaxDailyAppointments <= 0 {
		return nil
	}
	n, err := s.repo.CountActiveOnDate(ctx, date, exclude)
	if err != nil {
		return err
	}
	if n >= cs.MaxDailyAppointments {
		return ErrDailyLimitReached
	}
	return nil
}

func (s *Service) availableDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	d, err := s.doctors.Get(ctx, id)
	if apperr.Is(err, apperr.NotFound) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	if !d.IsAvailable {
		return nil, ErrDoctorUnavailable
	}
	return d, nil
}

// Book creates a scheduled appointment after checking the patient, the
// doctor and the clinic calendar.
func (s *Service) Book(ctx context.Context, p auth.Principal, req BookRequest) (*Appointment, error) {
	if err := auth.Authorize(s.ev, p, auth.CreateAppointment); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Cost != nil && req.Cost.IsNegative() {
		return nil, apperr.New(apperr.Validation, "cost must not be negative")
	}

	a := &Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		Time:      req.Time,
		Status:    StatusScheduled,
		Notes:     req.Notes,
		CreatedBy: p.UUID(),
	}
	if req.Cost != nil {
		a.Cost = decimal.NewNullDecimal(*req.Cost)
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cs, err := s.settings.Get(ctx)
		if err != nil {
			return err
		}
		if err := s.checkSlot(cs, req.Date, req.Time); err != nil {
			return err
		}
		ok, err := s.patients.Exists(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPatientNotFound
		}
		d, err := s.availableDoctor(ctx, req.DoctorID)
		if err != nil {
			return err
		}
		if err := s.checkCapacity(ctx, cs, req.Date, uuid.Nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		if cs.InAppNotifications {
			msg := fmt.Sprintf("New appointment on %s at %s.", a.Date, a.Time)
			return s.notifyBooked(ctx, a, d, "New appointment", msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("date", a.Date).
		Str("time", a.Time).
		Str("actor", p.UserID).
		Msg("appointment booked")
	return a, nil
}

// BookReturn books the free follow-up of a completed appointment. The
// date must fall within the doctor's return window counted from the
// original visit; later dates are rejected with ErrReturnWindowExpired.
// A completed return is not itself an original.
func (s *Service) BookReturn(ctx context.Context, p auth.Principal, originalID uuid.UUID, req ReturnRequest) (*Appointment, error) {
	if err := auth.Authorize(s.ev, p, auth.CreateAppointment); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	var a *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		original, err := s.repo.GetByID(ctx, originalID)
		if err != nil {
			return err
		}
		if original.Status != StatusCompleted {
			return ErrOriginalNotCompleted
		}
		if original.OriginalAppointmentID != nil {
			return ErrReturnOfReturn
		}
		d, err := s.availableDoctor(ctx, original.DoctorID)
		if err != nil {
			return err
		}
		if err := s.checkReturnWindow(original, d.ReturnDays, req.Date); err != nil {
			return err
		}
		cs, err := s.settings.Get(ctx)
		if err != nil {
			return err
		}
		if err := s.checkSlot(cs, req.Date, req.Time); err != nil {
			return err
		}
		if err := s.checkCapacity(ctx, cs, req.Date, uuid.Nil); err != nil {
			return err
		}
		origID := original.ID
		a = &Appointment{
			PatientID:             original.PatientID,
			DoctorID:              original.DoctorID,
			Date:                  req.Date,
			Time:                  req.Time,
			Status:                StatusReturn,
			Cost:                  decimal.NewNullDecimal(decimal.Zero),
			Notes:                 req.Notes,
			OriginalAppointmentID: &origID,
			CreatedBy:             p.UUID(),
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		if cs.InAppNotifications {
			msg := fmt.Sprintf("Return visit on %s at %s.", a.Date, a.Time)
			return s.notifyBooked(ctx, a, d, "Return visit booked", msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("original_id", originalID.String()).
		Str("date", a.Date).
		Str("actor", p.UserID).
		Msg("return visit booked")
	return a, nil
}

func (s *Service) checkReturnWindow(original *Appointment, returnDays int, date string) error {
	day, err := parseDate(date, s.loc)
	if err != nil {
		return err
	}
	visit, err := parseDate(original.Date, s.loc)
	if err != nil {
		return err
	}
	if day.Before(visit) {
		return apperr.New(apperr.Validation, "a return visit cannot precede the original visit")
	}
	if day.After(visit.AddDate(0, 0, returnDays)) {
		return ErrReturnWindowExpired
	}
	return nil
}

// Eligibility reports whether a free return for originalID is possible on
// date, and the last date it would be.
func (s *Service) Eligibility(ctx context.Context, originalID uuid.UUID, date string) (*ReturnEligibility, error) {
	if date == "" {
		date = s.Today()
	}
	original, err := s.repo.GetByID(ctx, originalID)
	if err != nil {
		return nil, err
	}
	out := &ReturnEligibility{OriginalDate: original.Date}
	if original.Status != StatusCompleted {
		out.Reason = ErrOriginalNotCompleted.Msg
		return out, nil
	}
	if original.OriginalAppointmentID != nil {
		out.Reason = ErrReturnOfReturn.Msg
		return out, nil
	}
	d, err := s.doctors.Get(ctx, original.DoctorID)
	if apperr.Is(err, apperr.NotFound) {
		out.Reason = ErrDoctorNotFound.Msg
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	visit, err := parseDate(original.Date, s.loc)
	if err != nil {
		return nil, err
	}
	out.ReturnDays = d.ReturnDays
	out.LastEligibleDate = visit.AddDate(0, 0, d.ReturnDays).Format(dateLayout)
	if err := s.checkReturnWindow(original, d.ReturnDays, date); err != nil {
		out.Reason = apperr.Message(err)
		return out, nil
	}
	out.Eligible = true
	return out, nil
}

// Reschedule moves a scheduled or return appointment to another slot.
func (s *Service) Reschedule(ctx context.Context, p auth.Principal, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if err := auth.Authorize(s.ev, p, auth.CreateAppointment); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	var a *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusScheduled && a.Status != StatusReturn {
			return ErrNotReschedulable
		}
		cs, err := s.settings.Get(ctx)
		if err != nil {
			return err
		}
		if err := s.checkSlot(cs, req.Date, req.Time); err != nil {
			return err
		}
		if a.Status == StatusReturn && a.OriginalAppointmentID != nil {
			original, err := s.repo.GetByID(ctx, *a.OriginalAppointmentID)
			if err != nil {
				return err
			}
			d, err := s.availableDoctor(ctx, a.DoctorID)
			if err != nil {
				return err
			}
			if err := s.checkReturnWindow(original, d.ReturnDays, req.Date); err != nil {
				return err
			}
		}
		if req.Date != a.Date {
			if err := s.checkCapacity(ctx, cs, req.Date, a.ID); err != nil {
				return err
			}
		}
		a.Date, a.Time = req.Date, req.Time
		if req.Notes != nil {
			a.Notes = req.Notes
		}
		return s.repo.Reschedule(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) notifyBooked(ctx context.Context, a *Appointment, d *doctor.Doctor, title, msg string) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify(ctx, notificationFor(a, d.UserID, title, msg))
}
