package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const apptCols = `a.id, a.patient_id, a.doctor_id, to_char(a.appointment_date, 'YYYY-MM-DD'),
	to_char(a.appointment_time, 'HH24:MI'), a.status, a.cost, a.notes, a.diagnosis, a.treatment,
	a.original_appointment_id, a.checked_in_at, a.completed_at, a.cancelled_at, a.cancellation_reason,
	a.created_by, a.created_at, a.updated_at`

// Joins are LEFT so an appointment whose patient or doctor vanished still
// reads, with placeholders.
const detailSelect = `SELECT ` + apptCols + `,
	COALESCE(pt.full_name, 'Unknown'), COALESCE(pt.phone, ''),
	COALESCE(pr.full_name, 'Unknown'), COALESCE(d.specialization, ''), COALESCE(d.consultation_fee, 0),
	pt.id IS NULL, d.id IS NULL
	FROM appointments a
	LEFT JOIN patients pt ON pt.id = a.patient_id
	LEFT JOIN doctors d ON d.id = a.doctor_id
	LEFT JOIN profiles pr ON pr.id = d.user_id`

func apptDest(a *Appointment) []interface{} {
	return []interface{}{&a.ID, &a.PatientID, &a.DoctorID, &a.Date,
		&a.Time, &a.Status, &a.Cost, &a.Notes, &a.Diagnosis, &a.Treatment,
		&a.OriginalAppointmentID, &a.CheckedInAt, &a.CompletedAt, &a.CancelledAt, &a.CancellationReason,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(apptDest(&a)...)
	return &a, err
}

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail
	dest := append(apptDest(&d.Appointment),
		&d.PatientName, &d.PatientPhone,
		&d.DoctorName, &d.DoctorSpecialization, &d.DoctorFee,
		&d.PatientMissing, &d.DoctorMissing)
	err := row.Scan(dest...)
	return &d, err
}

func classify(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAppointmentNotFound
	}
	return apperr.PG(err, op)
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_time, status,
			cost, notes, original_appointment_id, created_by)
		VALUES ($1,$2,$3,$4::date,$5::time,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, a.Status,
		a.Cost, a.Notes, a.OriginalAppointmentID, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return classify(err, "appointment.create")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments a WHERE a.id = $1`, id))
	if err != nil {
		return nil, classify(err, "appointment.get")
	}
	return a, nil
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments a WHERE a.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, classify(err, "appointment.get_for_update")
	}
	return a, nil
}

func (r *repoPG) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	d, err := scanDetail(db.Conn(ctx, r.pool).QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, classify(err, "appointment.get_detail")
	}
	return d, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments SET status=$2, cost=$3, notes=$4, diagnosis=$5, treatment=$6,
			checked_in_at=$7, completed_at=$8, cancelled_at=$9, cancellation_reason=$10
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, a.Cost, a.Notes, a.Diagnosis, a.Treatment,
		a.CheckedInAt, a.CompletedAt, a.CancelledAt, a.CancellationReason,
	).Scan(&a.UpdatedAt)
	return classify(err, "appointment.update_status")
}

func (r *repoPG) Reschedule(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments SET appointment_date=$2::date, appointment_time=$3::time, notes=$4
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Date, a.Time, a.Notes,
	).Scan(&a.UpdatedAt)
	return classify(err, "appointment.reschedule")
}

func (r *repoPG) list(ctx context.Context, op, where string, args ...interface{}) ([]*Detail, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, detailSelect+` WHERE `+where, args...)
	if err != nil {
		return nil, apperr.PG(err, op)
	}
	defer rows.Close()
	var items []*Detail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, apperr.PG(err, op)
		}
		items = append(items, d)
	}
	return items, apperr.PG(rows.Err(), op)
}

func (r *repoPG) ListByDate(ctx context.Context, date string, status *Status) ([]*Detail, error) {
	if status != nil {
		return r.list(ctx, "appointment.list_by_date",
			`a.appointment_date = $1::date AND a.status = $2 ORDER BY a.appointment_time, a.id`, date, *status)
	}
	return r.list(ctx, "appointment.list_by_date",
		`a.appointment_date = $1::date ORDER BY a.appointment_time, a.id`, date)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Detail, error) {
	return r.list(ctx, "appointment.list_by_patient",
		`a.patient_id = $1 ORDER BY a.appointment_date DESC, a.appointment_time DESC`, patientID)
}

func (r *repoPG) CountActiveOnDate(ctx context.Context, date string, exclude uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE appointment_date = $1::date AND status <> 'cancelled' AND id <> $2`, date, exclude).Scan(&n)
	return n, apperr.PG(err, "appointment.count_active")
}
