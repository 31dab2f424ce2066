package appointment

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicops/clinic/internal/domain/doctor"
	"github.com/clinicops/clinic/internal/domain/medicalrecord"
	"github.com/clinicops/clinic/internal/domain/notification"
	"github.com/clinicops/clinic/internal/domain/settings"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/db"
)

// 2026-10-18 is a Sunday, a working day under the default settings.
var testNow = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

type memRepo struct {
	appts    map[uuid.UUID]*Appointment
	patients map[uuid.UUID]string
	doctors  map[uuid.UUID]*doctor.Doctor
	updates  int
}

func (m *memRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = testNow
	a.UpdatedAt = testNow
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) detail(a *Appointment) *Detail {
	d := &Detail{Appointment: *a, PatientName: UnknownName, DoctorName: UnknownName}
	if name, ok := m.patients[a.PatientID]; ok {
		d.PatientName = name
	} else {
		d.PatientMissing = true
	}
	if doc, ok := m.doctors[a.DoctorID]; ok {
		d.DoctorName = doc.FullName
		d.DoctorSpecialization = doc.Specialization
		d.DoctorFee = doc.ConsultationFee
	} else {
		d.DoctorMissing = true
	}
	return d
}

func (m *memRepo) GetDetail(_ context.Context, id uuid.UUID) (*Detail, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return m.detail(a), nil
}

func (m *memRepo) UpdateStatus(_ context.Context, a *Appointment) error {
	m.updates++
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) Reschedule(_ context.Context, a *Appointment) error {
	m.updates++
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) ListByDate(_ context.Context, date string, status *Status) ([]*Detail, error) {
	var out []*Detail
	for _, a := range m.appts {
		if a.Date == date && (status == nil || a.Status == *status) {
			out = append(out, m.detail(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Detail, error) {
	var out []*Detail
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, m.detail(a))
		}
	}
	return out, nil
}

func (m *memRepo) CountActiveOnDate(_ context.Context, date string, exclude uuid.UUID) (int, error) {
	n := 0
	for _, a := range m.appts {
		if a.Date == date && a.Status.Active() && a.ID != exclude {
			n++
		}
	}
	return n, nil
}

type fakeSettings struct{ cs *settings.CenterSettings }

func (f *fakeSettings) Get(context.Context) (*settings.CenterSettings, error) {
	cp := *f.cs
	return &cp, nil
}

type fakePatients struct{ repo *memRepo }

func (f fakePatients) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := f.repo.patients[id]
	return ok, nil
}

type fakeDoctors struct{ repo *memRepo }

func (f fakeDoctors) Get(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	d, ok := f.repo.doctors[id]
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

type fakeRecords struct{ byAppointment map[uuid.UUID]int }

func (f *fakeRecords) CreateForAppointment(_ context.Context, from medicalrecord.FromAppointment) (bool, error) {
	if f.byAppointment[from.AppointmentID] > 0 {
		return false, nil
	}
	f.byAppointment[from.AppointmentID]++
	return true, nil
}

type fakeNotifier struct{ sent []*notification.Notification }

func (f *fakeNotifier) Notify(_ context.Context, n *notification.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	settings *fakeSettings
	records  *fakeRecords
	notifier *fakeNotifier
	patient  uuid.UUID
	doctor   *doctor.Doctor
}

var (
	admin        = auth.Principal{UserID: uuid.NewString(), Role: auth.RoleAdmin}
	doctorUser   = auth.Principal{UserID: uuid.NewString(), Role: auth.RoleDoctor}
	receptionist = auth.Principal{UserID: uuid.NewString(), Role: auth.RoleReceptionist}
	nurse        = auth.Principal{UserID: uuid.NewString(), Role: auth.RoleNurse}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &memRepo{
		appts:    make(map[uuid.UUID]*Appointment),
		patients: make(map[uuid.UUID]string),
		doctors:  make(map[uuid.UUID]*doctor.Doctor),
	}
	f := &fixture{
		repo:     repo,
		settings: &fakeSettings{cs: settings.Defaults()},
		records:  &fakeRecords{byAppointment: make(map[uuid.UUID]int)},
		notifier: &fakeNotifier{},
		patient:  uuid.New(),
		doctor: &doctor.Doctor{
			ID:              uuid.New(),
			UserID:          uuid.New(),
			FullName:        "Dr. Hany",
			Specialization:  "Cardiology",
			ConsultationFee: decimal.NewFromInt(150),
			ReturnDays:      7,
			IsAvailable:     true,
		},
	}
	repo.patients[f.patient] = "Mona Aly"
	repo.doctors[f.doctor.ID] = f.doctor
	f.svc = NewService(Deps{
		Repo:      repo,
		Tx:        db.NoTx{},
		Evaluator: auth.StaticEvaluator{},
		Settings:  f.settings,
		Patients:  fakePatients{repo},
		Doctors:   fakeDoctors{repo},
		Records:   f.records,
		Notifier:  f.notifier,
		Location:  time.UTC,
		Now:       func() time.Time { return testNow },
	}, zerolog.Nop())
	return f
}

// seed stores an appointment directly, bypassing booking rules.
func (f *fixture) seed(status Status, date, clock string) *Appointment {
	a := &Appointment{
		ID:        uuid.New(),
		PatientID: f.patient,
		DoctorID:  f.doctor.ID,
		Date:      date,
		Time:      clock,
		Status:    status,
	}
	f.repo.appts[a.ID] = a
	cp := *a
	return &cp
}

func (f *fixture) book(t *testing.T, date, clock string) *Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), receptionist, BookRequest{
		PatientID: f.patient, DoctorID: f.doctor.ID, Date: date, Time: clock,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return a
}
