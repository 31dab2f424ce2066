package patient

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, user_id, full_name, phone, email, to_char(date_of_birth, 'YYYY-MM-DD'),
	gender, address, blood_type, allergies, chronic_conditions,
	emergency_contact_name, emergency_contact_phone, notes, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.Phone, &p.Email, &p.DateOfBirth,
		&p.Gender, &p.Address, &p.BloodType, &p.Allergies, &p.ChronicConditions,
		&p.EmergencyContactName, &p.EmergencyContactPhone, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, user_id, full_name, phone, email, date_of_birth, gender, address,
			blood_type, allergies, chronic_conditions, emergency_contact_name, emergency_contact_phone, notes)
		VALUES ($1,$2,$3,$4,$5,$6::date,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FullName, p.Phone, p.Email, p.DateOfBirth, p.Gender, p.Address,
		p.BloodType, p.Allergies, p.ChronicConditions, p.EmergencyContactName, p.EmergencyContactPhone, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if apperr.Is(apperr.PG(err, ""), apperr.Conflict) {
		return ErrDuplicatePhone
	}
	return apperr.PG(err, "patient.create")
}

func (r *repoPG) get(ctx context.Context, where string, arg interface{}) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, apperr.PG(err, "patient.get")
	}
	return p, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *repoPG) GetByPhone(ctx context.Context, phone string) (*Patient, error) {
	return r.get(ctx, `phone = $1`, phone)
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patients SET user_id=$2, full_name=$3, phone=$4, email=$5, date_of_birth=$6::date,
			gender=$7, address=$8, blood_type=$9, allergies=$10, chronic_conditions=$11,
			emergency_contact_name=$12, emergency_contact_phone=$13, notes=$14
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FullName, p.Phone, p.Email, p.DateOfBirth,
		p.Gender, p.Address, p.BloodType, p.Allergies, p.ChronicConditions,
		p.EmergencyContactName, p.EmergencyContactPhone, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrPatientNotFound
	case apperr.Is(apperr.PG(err, ""), apperr.Conflict):
		return ErrDuplicatePhone
	}
	return apperr.PG(err, "patient.update")
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		if apperr.Is(apperr.PG(err, ""), apperr.ReferentialGap) {
			return ErrPatientReferenced
		}
		return apperr.PG(err, "patient.delete")
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where := `TRUE`
	var args []interface{}
	if search != "" {
		where = `(full_name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1)`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.PG(err, "patient.list")
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE `+where+
			` ORDER BY created_at DESC, id LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, apperr.PG(err, "patient.list")
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, apperr.PG(err, "patient.list")
		}
		items = append(items, p)
	}
	return items, total, apperr.PG(rows.Err(), "patient.list")
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, apperr.PG(err, "patient.count")
}

func (r *repoPG) References(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM appointments WHERE patient_id = $1)
		     + (SELECT COUNT(*) FROM medical_records WHERE patient_id = $1)`, id).Scan(&n)
	return n, apperr.PG(err, "patient.references")
}
