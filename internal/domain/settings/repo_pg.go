package settings

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const settingsCols = `clinic_name, address, phone, email,
	to_char(working_hours_start, 'HH24:MI'), to_char(working_hours_end, 'HH24:MI'), working_days,
	appointment_duration, booking_window_days, cancellation_window_hours,
	email_notifications, sms_notifications, in_app_notifications,
	currency_code, currency_symbol, max_daily_appointments, auto_create_medical_records, updated_at`

func scanSettings(row pgx.Row) (*CenterSettings, error) {
	var s CenterSettings
	err := row.Scan(&s.ClinicName, &s.Address, &s.Phone, &s.Email,
		&s.WorkingHoursStart, &s.WorkingHoursEnd, &s.WorkingDays,
		&s.AppointmentDuration, &s.BookingWindowDays, &s.CancellationWindowHours,
		&s.EmailNotifications, &s.SMSNotifications, &s.InAppNotifications,
		&s.CurrencyCode, &s.CurrencySymbol, &s.MaxDailyAppointments, &s.AutoCreateMedicalRecords, &s.UpdatedAt)
	return &s, err
}

func (r *repoPG) Get(ctx context.Context) (*CenterSettings, error) {
	s, err := scanSettings(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+settingsCols+` FROM center_settings WHERE id = 1`))
	if err != nil {
		return nil, apperr.PG(err, "settings.get")
	}
	return s, nil
}

func (r *repoPG) EnsureDefaults(ctx context.Context) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO center_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`)
	return apperr.PG(err, "settings.ensure_defaults")
}

func (r *repoPG) Update(ctx context.Context, s *CenterSettings) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE center_settings SET clinic_name=$1, address=$2, phone=$3, email=$4,
			working_hours_start=$5::time, working_hours_end=$6::time, working_days=$7,
			appointment_duration=$8, booking_window_days=$9, cancellation_window_hours=$10,
			email_notifications=$11, sms_notifications=$12, in_app_notifications=$13,
			currency_code=$14, currency_symbol=$15, max_daily_appointments=$16,
			auto_create_medical_records=$17, updated_at=NOW()
		WHERE id = 1
		RETURNING updated_at`,
		s.ClinicName, s.Address, s.Phone, s.Email,
		s.WorkingHoursStart, s.WorkingHoursEnd, s.WorkingDays,
		s.AppointmentDuration, s.BookingWindowDays, s.CancellationWindowHours,
		s.EmailNotifications, s.SMSNotifications, s.InAppNotifications,
		s.CurrencyCode, s.CurrencySymbol, s.MaxDailyAppointments,
		s.AutoCreateMedicalRecords).Scan(&s.UpdatedAt)
	return apperr.PG(err, "settings.update")
}
