package stats

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicops/clinic/internal/domain/appointment"
	"github.com/clinicops/clinic/internal/domain/settings"
)

// Row is one of today's appointments as the aggregation needs it.
// DoctorFee is null when the doctor row no longer exists.
type Row struct {
	ID        uuid.UUID
	Status    appointment.Status
	Cost      decimal.NullDecimal
	DoctorFee decimal.NullDecimal
}

// amount is what a completed row contributes to revenue.
func (r Row) amount() decimal.Decimal {
	if r.Cost.Valid {
		return r.Cost.Decimal
	}
	if r.DoctorFee.Valid {
		return r.DoctorFee.Decimal
	}
	return decimal.Zero
}

// Snapshot holds the dashboard figures for one clinic day.
type Snapshot struct {
	Date               string          `json:"date"`
	AppointmentsToday  int             `json:"appointments_today"`
	CompletedToday     int             `json:"completed_today"`
	WaitingCount       int             `json:"waiting_count"`
	RevenueToday       decimal.Decimal `json:"revenue_today"`
	RegisteredPatients int             `json:"registered_patients"`
	CurrencyCode       string          `json:"currency_code"`
	CurrencySymbol     string          `json:"currency_symbol"`
	ComputedAt         time.Time       `json:"computed_at"`
}

// Compute folds today's rows into a snapshot. Waiting counts both booked
// and checked-in patients. Revenue sums completed rows, using the doctor's
// fee where no cost was recorded.
func Compute(rows []Row, patients int, cs *settings.CenterSettings) Snapshot {
	s := Snapshot{
		AppointmentsToday:  len(rows),
		RevenueToday:       decimal.Zero,
		RegisteredPatients: patients,
	}
	if cs != nil {
		s.CurrencyCode = cs.CurrencyCode
		s.CurrencySymbol = cs.CurrencySymbol
	}
	for _, r := range rows {
		switch r.Status {
		case appointment.StatusCompleted:
			s.CompletedToday++
			s.RevenueToday = s.RevenueToday.Add(r.amount())
		case appointment.StatusScheduled, appointment.StatusWaiting:
			s.WaitingCount++
		}
	}
	return s
}
