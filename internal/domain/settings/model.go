package settings

import (
	"strings"
	"time"
)

// CenterSettings is the clinic-wide business configuration. It lives in a
// single row and is passed explicitly to booking, lifecycle and stats code.
type CenterSettings struct {
	ClinicName               string    `json:"clinic_name" validate:"required,max=255"`
	Address                  string    `json:"address"`
	Phone                    string    `json:"phone" validate:"omitempty,phone"`
	Email                    string    `json:"email" validate:"omitempty,email"`
	WorkingHoursStart        string    `json:"working_hours_start" validate:"required,clock"`
	WorkingHoursEnd          string    `json:"working_hours_end" validate:"required,clock"`
	WorkingDays              []string  `json:"working_days" validate:"required,min=1,dive,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	AppointmentDuration      int       `json:"appointment_duration" validate:"gte=5,lte=480"`
	BookingWindowDays        int       `json:"booking_window_days" validate:"gte=0,lte=365"`
	CancellationWindowHours  int       `json:"cancellation_window_hours" validate:"gte=0,lte=168"`
	EmailNotifications       bool      `json:"email_notifications"`
	SMSNotifications         bool      `json:"sms_notifications"`
	InAppNotifications       bool      `json:"in_app_notifications"`
	CurrencyCode             string    `json:"currency_code" validate:"required,len=3"`
	CurrencySymbol           string    `json:"currency_symbol" validate:"required,max=8"`
	MaxDailyAppointments     int       `json:"max_daily_appointments" validate:"gte=0"`
	AutoCreateMedicalRecords bool      `json:"auto_create_medical_records"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Defaults returns the settings a fresh clinic starts with.
func Defaults() *CenterSettings {
	return &CenterSettings{
		ClinicName:               "Clinic",
		WorkingHoursStart:        "09:00",
		WorkingHoursEnd:          "17:00",
		WorkingDays:              []string{"sunday", "monday", "tuesday", "wednesday", "thursday"},
		AppointmentDuration:      30,
		BookingWindowDays:        30,
		InAppNotifications:       true,
		CurrencyCode:             "USD",
		CurrencySymbol:           "$",
		AutoCreateMedicalRecords: true,
	}
}

// WorksOn reports whether the clinic is open on d's weekday.
func (s *CenterSettings) WorksOn(d time.Time) bool {
	day := strings.ToLower(d.Weekday().String())
	for _, w := range s.WorkingDays {
		if strings.EqualFold(w, day) {
			return true
		}
	}
	return false
}

// WithinHours reports whether clock ("HH:MM") falls in [start, end).
func (s *CenterSettings) WithinHours(clock string) bool {
	return clock >= s.WorkingHoursStart && clock < s.WorkingHoursEnd
}

// CancellationRestricted reports whether cancelling an appointment that
// starts at start, at time now, falls inside the cancellation window.
func (s *CenterSettings) CancellationRestricted(start, now time.Time) bool {
	if s.CancellationWindowHours <= 0 {
		return false
	}
	return start.Sub(now) < time.Duration(s.CancellationWindowHours)*time.Hour
}
