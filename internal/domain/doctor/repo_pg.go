package doctor

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

// The profile join is LEFT so a doctor whose profile vanished still reads.
const doctorSelect = `SELECT d.id, d.user_id, COALESCE(p.full_name, 'Unknown'), p.email,
	d.specialization, d.consultation_fee, d.return_days,
	to_char(d.working_hours_start, 'HH24:MI'), to_char(d.working_hours_end, 'HH24:MI'),
	d.working_days, d.is_available, d.bio, d.created_at, d.updated_at
	FROM doctors d LEFT JOIN profiles p ON p.id = d.user_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.FullName, &d.Email,
		&d.Specialization, &d.ConsultationFee, &d.ReturnDays,
		&d.WorkingHoursStart, &d.WorkingHoursEnd,
		&d.WorkingDays, &d.IsAvailable, &d.Bio, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func classify(err error, op string) error {
	switch pgErr := apperr.PG(err, op); {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrDoctorNotFound
	case apperr.Is(pgErr, apperr.ReferentialGap):
		return ErrProfileNotFound
	case apperr.Is(pgErr, apperr.Conflict):
		return ErrDoctorExists
	default:
		return pgErr
	}
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, specialization, consultation_fee, return_days,
			working_hours_start, working_hours_end, working_days, is_available, bio)
		VALUES ($1,$2,$3,$4,$5,$6::time,$7::time,$8,$9,$10)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.Specialization, d.ConsultationFee, d.ReturnDays,
		d.WorkingHoursStart, d.WorkingHoursEnd, d.WorkingDays, d.IsAvailable, d.Bio,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	return classify(err, "doctor.create")
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
	if err != nil {
		return nil, classify(err, "doctor.get")
	}
	return d, nil
}

func (r *repoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, doctorSelect+` WHERE d.user_id = $1`, userID))
	if err != nil {
		return nil, classify(err, "doctor.get_by_user")
	}
	return d, nil
}

func (r *repoPG) Update(ctx context.Context, d *Doctor) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE doctors SET specialization=$2, consultation_fee=$3, return_days=$4,
			working_hours_start=$5::time, working_hours_end=$6::time, working_days=$7,
			is_available=$8, bio=$9
		WHERE id = $1
		RETURNING user_id, created_at, updated_at`,
		d.ID, d.Specialization, d.ConsultationFee, d.ReturnDays,
		d.WorkingHoursStart, d.WorkingHoursEnd, d.WorkingDays, d.IsAvailable, d.Bio,
	).Scan(&d.UserID, &d.CreatedAt, &d.UpdatedAt)
	return classify(err, "doctor.update")
}

func (r *repoPG) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE doctors SET is_available = $2 WHERE id = $1`, id, available)
	if err != nil {
		return classify(err, "doctor.set_availability")
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		if apperr.Is(apperr.PG(err, ""), apperr.ReferentialGap) {
			return ErrDoctorReferenced
		}
		return apperr.PG(err, "doctor.delete")
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, availableOnly bool) ([]*Doctor, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		doctorSelect+` WHERE ($1 = FALSE OR d.is_available) ORDER BY COALESCE(p.full_name, ''), d.id`, availableOnly)
	if err != nil {
		return nil, apperr.PG(err, "doctor.list")
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, apperr.PG(err, "doctor.list")
		}
		items = append(items, d)
	}
	return items, apperr.PG(rows.Err(), "doctor.list")
}

func (r *repoPG) References(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM appointments WHERE doctor_id = $1)
		     + (SELECT COUNT(*) FROM medical_records WHERE doctor_id = $1)`, id).Scan(&n)
	return n, apperr.PG(err, "doctor.references")
}
