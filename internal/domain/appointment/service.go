package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/domain/doctor"
	"github.com/clinicops/clinic/internal/domain/medicalrecord"
	"github.com/clinicops/clinic/internal/domain/notification"
	"github.com/clinicops/clinic/internal/domain/settings"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/db"
)

// PatientLookup reports whether a patient exists.
type PatientLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// DoctorLookup fetches a doctor.
type DoctorLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
}

// RecordWriter creates the medical record of a completed appointment.
type RecordWriter interface {
	CreateForAppointment(ctx context.Context, from medicalrecord.FromAppointment) (bool, error)
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) error
}

// Deps are the collaborators of the appointment service.
type Deps struct {
	Repo      Repository
	Tx        db.TxRunner
	Evaluator auth.Evaluator
	Settings  settings.Reader
	Patients  PatientLookup
	Doctors   DoctorLookup
	Records   RecordWriter
	Notifier  Notifier
	// Location defines the clinic's calendar day. Defaults to UTC.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	repo     Repository
	tx       db.TxRunner
	ev       auth.Evaluator
	settings settings.Reader
	patients PatientLookup
	doctors  DoctorLookup
	records  RecordWriter
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(d Deps, logger zerolog.Logger) *Service {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Tx == nil {
		d.Tx = db.NoTx{}
	}
	return &Service{
		repo:     d.Repo,
		tx:       d.Tx,
		ev:       d.Evaluator,
		settings: d.Settings,
		patients: d.Patients,
		doctors:  d.Doctors,
		records:  d.Records,
		notifier: d.Notifier,
		loc:      d.Location,
		now:      d.Now,
		logger:   logger.With().Str("component", "appointment").Logger(),
	}
}

// Today returns the clinic's current date as "YYYY-MM-DD".
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(dateLayout)
}

// Location returns the clinic time zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	return s.repo.GetDetail(ctx, id)
}

func (s *Service) ListByDate(ctx context.Context, date string, status *Status) ([]*Detail, error) {
	if _, err := parseDate(date, s.loc); err != nil {
		return nil, err
	}
	return s.repo.ListByDate(ctx, date, status)
}

func (s *Service) ListToday(ctx context.Context, status *Status) ([]*Detail, error) {
	return s.repo.ListByDate(ctx, s.Today(), status)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Detail, error) {
	return s.repo.ListByPatient(ctx, patientID)
}
