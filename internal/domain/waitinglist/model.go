package waitinglist

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

// Entry is one checked-in appointment on today's waiting list.
type Entry struct {
	AppointmentID  uuid.UUID  `json:"appointment_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	PatientName    string     `json:"patient_name"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	DoctorName     string     `json:"doctor_name"`
	Date           string     `json:"appointment_date"`
	Time           string     `json:"appointment_time"`
	CheckedInAt    *time.Time `json:"checked_in_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	PatientMissing bool       `json:"patient_missing,omitempty"`
	DoctorMissing  bool       `json:"doctor_missing,omitempty"`
}

// arrival is the ordering key: check-in time, or the last update for rows
// checked in before check-in times were recorded.
func (e Entry) arrival() time.Time {
	if e.CheckedInAt != nil {
		return *e.CheckedInAt
	}
	return e.UpdatedAt
}

// Direction moves an entry one place toward the front or the back.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Up, Down:
		return d, nil
	}
	return "", apperr.Newf(apperr.Validation, "direction must be %q or %q", Up, Down)
}

var (
	ErrEmpty      = apperr.New(apperr.Validation, "the waiting list is empty")
	ErrNotOnList  = apperr.New(apperr.NotFound, "appointment is not on the waiting list")
	ErrNotMounted = apperr.New(apperr.TransientIO, "waiting list is not loaded")
)

// sortEntries orders by arrival, then appointment id so equal check-in
// times always come out the same way.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].arrival(), entries[j].arrival()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return entries[i].AppointmentID.String() < entries[j].AppointmentID.String()
	})
}
