package appointment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

func TestBook_Success(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, "2026-10-19", "10:30")

	if a.Status != StatusScheduled {
		t.Errorf("expected scheduled, got %s", a.Status)
	}
	if a.Cost.Valid {
		t.Error("expected cost unset until completion")
	}
	if a.CreatedBy == nil || a.CreatedBy.String() != receptionist.UserID {
		t.Errorf("expected created_by to be the booking user, got %v", a.CreatedBy)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].UserID != f.doctor.UserID {
		t.Errorf("expected doctor to be notified, got %+v", f.notifier.sent)
	}
}

func TestBook_NoNotificationWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.settings.cs.InAppNotifications = false
	f.book(t, "2026-10-19", "10:30")
	if len(f.notifier.sent) != 0 {
		t.Errorf("expected no notification, got %d", len(f.notifier.sent))
	}
}

func TestBook_Rules(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		mutate func(f *fixture, r *BookRequest)
		want   error
		kind   apperr.Kind
	}{
		{name: "past date", mutate: func(_ *fixture, r *BookRequest) { r.Date = "2026-10-15" }, want: ErrDateInPast},
		{name: "earlier today", mutate: func(_ *fixture, r *BookRequest) { r.Date, r.Time = "2026-10-18", "09:00" }, kind: apperr.Validation},
		{name: "beyond window", mutate: func(_ *fixture, r *BookRequest) { r.Date = "2026-11-22" }, want: ErrOutsideBookingWindow},
		{name: "clinic closed", mutate: func(_ *fixture, r *BookRequest) { r.Date = "2026-10-23" }, want: ErrClinicClosed},
		{name: "before opening", mutate: func(_ *fixture, r *BookRequest) { r.Time = "08:30" }, want: ErrOutsideWorkingHours},
		{name: "at closing", mutate: func(_ *fixture, r *BookRequest) { r.Time = "17:00" }, want: ErrOutsideWorkingHours},
		{name: "unknown patient", mutate: func(_ *fixture, r *BookRequest) { r.PatientID = uuid.New() }, want: ErrPatientNotFound},
		{name: "unknown doctor", mutate: func(_ *fixture, r *BookRequest) { r.DoctorID = uuid.New() }, want: ErrDoctorNotFound},
		{name: "doctor unavailable", setup: func(f *fixture) { f.doctor.IsAvailable = false }, want: ErrDoctorUnavailable},
		{name: "malformed time", mutate: func(_ *fixture, r *BookRequest) { r.Time = "10:30am" }, kind: apperr.Validation},
		{
			name: "daily limit",
			setup: func(f *fixture) {
				f.settings.cs.MaxDailyAppointments = 2
				f.seed(StatusScheduled, "2026-10-19", "09:00")
				f.seed(StatusWaiting, "2026-10-19", "09:30")
				f.seed(StatusCancelled, "2026-10-19", "10:00")
			},
			want: ErrDailyLimitReached,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			req := BookRequest{PatientID: f.patient, DoctorID: f.doctor.ID, Date: "2026-10-19", Time: "10:30"}
			if tt.mutate != nil {
				tt.mutate(f, &req)
			}
			before := len(f.repo.appts)
			_, err := f.svc.Book(context.Background(), receptionist, req)
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.want == nil && apperr.KindOf(err) != tt.kind {
				t.Fatalf("expected kind %v, got %v", tt.kind, err)
			}
			if len(f.repo.appts) != before {
				t.Error("expected nothing written")
			}
		})
	}
}

func TestBook_DailyLimitIgnoresCancelled(t *testing.T) {
	f := newFixture(t)
	f.settings.cs.MaxDailyAppointments = 2
	f.seed(StatusScheduled, "2026-10-19", "09:00")
	f.seed(StatusCancelled, "2026-10-19", "09:30")
	f.book(t, "2026-10-19", "10:30")
}

func TestBook_Denied(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Book(context.Background(), nurse, BookRequest{PatientID: f.patient, DoctorID: f.doctor.ID, Date: "2026-10-19", Time: "10:30"})
	if !apperr.Is(err, apperr.PermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func completedVisit(f *fixture, date string) *Appointment {
	a := f.seed(StatusCompleted, date, "09:00")
	a.Cost = decimal.NewNullDecimal(decimal.NewFromInt(150))
	f.repo.appts[a.ID].Cost = a.Cost
	return a
}

func TestBookReturn_WithinWindow(t *testing.T) {
	f := newFixture(t)
	original := completedVisit(f, "2026-10-18")

	ret, err := f.svc.BookReturn(context.Background(), receptionist, original.ID, ReturnRequest{Date: "2026-10-25", Time: "09:30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ret.Status != StatusReturn {
		t.Errorf("expected return status, got %s", ret.Status)
	}
	if !ret.Cost.Valid || !ret.Cost.Decimal.IsZero() {
		t.Errorf("expected zero cost, got %v", ret.Cost)
	}
	if ret.OriginalAppointmentID == nil || *ret.OriginalAppointmentID != original.ID {
		t.Error("expected link to the original appointment")
	}
	if ret.PatientID != original.PatientID || ret.DoctorID != original.DoctorID {
		t.Error("expected same patient and doctor")
	}
}

func TestBookReturn_OutsideWindowRejected(t *testing.T) {
	f := newFixture(t)
	original := completedVisit(f, "2026-10-18")
	before := len(f.repo.appts)

	_, err := f.svc.BookReturn(context.Background(), receptionist, original.ID, ReturnRequest{Date: "2026-10-26", Time: "09:30"})
	if !errors.Is(err, ErrReturnWindowExpired) {
		t.Fatalf("expected return window expired, got %v", err)
	}
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("expected validation kind, got %v", apperr.KindOf(err))
	}
	if len(f.repo.appts) != before {
		t.Error("expected nothing written")
	}
}

func TestBookReturn_RequiresCompletedOriginal(t *testing.T) {
	f := newFixture(t)
	original := f.seed(StatusWaiting, "2026-10-18", "09:00")
	_, err := f.svc.BookReturn(context.Background(), receptionist, original.ID, ReturnRequest{Date: "2026-10-20", Time: "09:30"})
	if !errors.Is(err, ErrOriginalNotCompleted) {
		t.Fatalf("expected original not completed, got %v", err)
	}
}

func TestBookReturn_CompletedReturnIsNotAnOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := completedVisit(f, "2026-10-18")

	ret, err := f.svc.BookReturn(ctx, receptionist, original.ID, ReturnRequest{Date: "2026-10-22", Time: "09:30"})
	if err != nil {
		t.Fatalf("BookReturn: %v", err)
	}
	f.repo.appts[ret.ID].Status = StatusCompleted
	before := len(f.repo.appts)

	_, err = f.svc.BookReturn(ctx, receptionist, ret.ID, ReturnRequest{Date: "2026-10-30", Time: "09:30"})
	if !errors.Is(err, ErrReturnOfReturn) {
		t.Fatalf("expected return of return rejected, got %v", err)
	}
	if len(f.repo.appts) != before {
		t.Error("expected nothing written")
	}

	el, err := f.svc.Eligibility(ctx, ret.ID, "2026-10-30")
	if err != nil {
		t.Fatalf("Eligibility: %v", err)
	}
	if el.Eligible || el.Reason != ErrReturnOfReturn.Msg {
		t.Errorf("expected ineligible with return-of-return reason, got %+v", el)
	}
}

func TestEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := completedVisit(f, "2026-10-18")

	e, err := f.svc.Eligibility(ctx, original.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if !e.Eligible || e.LastEligibleDate != "2026-10-25" || e.ReturnDays != 7 {
		t.Errorf("unexpected eligibility: %+v", e)
	}

	e, err = f.svc.Eligibility(ctx, original.ID, "2026-10-30")
	if err != nil {
		t.Fatal(err)
	}
	if e.Eligible || e.Reason == "" {
		t.Errorf("expected ineligible with a reason, got %+v", e)
	}

	pending := f.seed(StatusScheduled, "2026-10-20", "09:00")
	e, err = f.svc.Eligibility(ctx, pending.ID, "2026-10-21")
	if err != nil {
		t.Fatal(err)
	}
	if e.Eligible {
		t.Error("expected a scheduled visit to be ineligible")
	}
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, "2026-10-19", "10:30")

	moved, err := f.svc.Reschedule(ctx, receptionist, a.ID, RescheduleRequest{Date: "2026-10-20", Time: "11:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Date != "2026-10-20" || moved.Time != "11:00" {
		t.Errorf("unexpected slot %s %s", moved.Date, moved.Time)
	}

	done := f.seed(StatusCompleted, "2026-10-18", "09:00")
	if _, err := f.svc.Reschedule(ctx, receptionist, done.ID, RescheduleRequest{Date: "2026-10-20", Time: "11:00"}); !errors.Is(err, ErrNotReschedulable) {
		t.Fatalf("expected not reschedulable, got %v", err)
	}
}

func TestRescheduleReturnKeepsWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := completedVisit(f, "2026-10-18")
	ret, err := f.svc.BookReturn(ctx, receptionist, original.ID, ReturnRequest{Date: "2026-10-20", Time: "09:30"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Reschedule(ctx, receptionist, ret.ID, RescheduleRequest{Date: "2026-11-01", Time: "09:30"})
	if !errors.Is(err, ErrReturnWindowExpired) {
		t.Fatalf("expected return window expired, got %v", err)
	}
}

func TestListToday(t *testing.T) {
	f := newFixture(t)
	f.seed(StatusWaiting, "2026-10-18", "11:00")
	f.seed(StatusScheduled, "2026-10-18", "09:00")
	f.seed(StatusScheduled, "2026-10-19", "09:00")

	items, err := f.svc.ListToday(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Time != "09:00" {
		t.Fatalf("unexpected list: %+v", items)
	}
	if items[0].PatientName != "Mona Aly" || items[0].DoctorName != "Dr. Hany" {
		t.Errorf("expected joined names, got %q / %q", items[0].PatientName, items[0].DoctorName)
	}

	waiting := StatusWaiting
	items, _ = f.svc.ListToday(context.Background(), &waiting)
	if len(items) != 1 {
		t.Errorf("expected 1 waiting, got %d", len(items))
	}
}
