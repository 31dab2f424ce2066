package stats

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) RowsOn(ctx context.Context, date string) ([]Row, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT a.id, a.status, a.cost, d.consultation_fee
		FROM appointments a
		LEFT JOIN doctors d ON d.id = a.doctor_id
		WHERE a.appointment_date = $1::date`, date)
	if err != nil {
		return nil, apperr.PG(err, "stats.rows")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.Status, &row.Cost, &row.DoctorFee); err != nil {
			return nil, apperr.PG(err, "stats.rows")
		}
		out = append(out, row)
	}
	return out, apperr.PG(rows.Err(), "stats.rows")
}

func (r *repoPG) PatientCount(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, apperr.PG(err, "stats.patient_count")
}
