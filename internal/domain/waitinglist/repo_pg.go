package waitinglist

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) ListWaiting(ctx context.Context, date string) ([]Entry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT a.id, a.patient_id, COALESCE(pt.full_name, 'Unknown'),
			a.doctor_id, COALESCE(pr.full_name, 'Unknown'),
			to_char(a.appointment_date, 'YYYY-MM-DD'), to_char(a.appointment_time, 'HH24:MI'),
			a.checked_in_at, a.updated_at, pt.id IS NULL, d.id IS NULL
		FROM appointments a
		LEFT JOIN patients pt ON pt.id = a.patient_id
		LEFT JOIN doctors d ON d.id = a.doctor_id
		LEFT JOIN profiles pr ON pr.id = d.user_id
		WHERE a.appointment_date = $1::date AND a.status = 'waiting'
		ORDER BY COALESCE(a.checked_in_at, a.updated_at), a.id`, date)
	if err != nil {
		return nil, apperr.PG(err, "waitinglist.list")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.AppointmentID, &e.PatientID, &e.PatientName,
			&e.DoctorID, &e.DoctorName, &e.Date, &e.Time,
			&e.CheckedInAt, &e.UpdatedAt, &e.PatientMissing, &e.DoctorMissing); err != nil {
			return nil, apperr.PG(err, "waitinglist.list")
		}
		out = append(out, e)
	}
	return out, apperr.PG(rows.Err(), "waitinglist.list")
}
