package medicalrecord

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

const detailSelect = `SELECT m.id, m.patient_id, m.doctor_id, m.appointment_id, to_char(m.visit_date, 'YYYY-MM-DD'),
	m.chief_complaint, m.diagnosis, m.treatment, m.prescription, m.notes,
	to_char(m.follow_up_date, 'YYYY-MM-DD'), m.vital_signs, m.created_by, m.created_at, m.updated_at,
	COALESCE(pt.full_name, 'Unknown'), COALESCE(pr.full_name, 'Unknown'), pt.id IS NULL, d.id IS NULL
	FROM medical_records m
	LEFT JOIN patients pt ON pt.id = m.patient_id
	LEFT JOIN doctors d ON d.id = m.doctor_id
	LEFT JOIN profiles pr ON pr.id = d.user_id`

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail
	m := &d.MedicalRecord
	err := row.Scan(&m.ID, &m.PatientID, &m.DoctorID, &m.AppointmentID, &m.VisitDate,
		&m.ChiefComplaint, &m.Diagnosis, &m.Treatment, &m.Prescription, &m.Notes,
		&m.FollowUpDate, &m.VitalSigns, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt,
		&d.PatientName, &d.DoctorName, &d.PatientMissing, &d.DoctorMissing)
	return &d, err
}

func classify(err error, op string) error {
	switch pgErr := apperr.PG(err, op); {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrRecordNotFound
	case apperr.Is(pgErr, apperr.ReferentialGap):
		return ErrUnknownSubject
	default:
		return pgErr
	}
}

const insertRecord = `
	INSERT INTO medical_records (id, patient_id, doctor_id, appointment_id, visit_date,
		chief_complaint, diagnosis, treatment, prescription, notes, follow_up_date, vital_signs, created_by)
	VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8,$9,$10,$11::date,$12,$13)`

func insertArgs(r *MedicalRecord) []interface{} {
	return []interface{}{r.ID, r.PatientID, r.DoctorID, r.AppointmentID, r.VisitDate,
		r.ChiefComplaint, r.Diagnosis, r.Treatment, r.Prescription, r.Notes, r.FollowUpDate, r.VitalSigns, r.CreatedBy}
}

func (r *repoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	rec.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, insertRecord+` RETURNING created_at, updated_at`,
		insertArgs(rec)...).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	return classify(err, "medicalrecord.create")
}

func (r *repoPG) CreateForAppointment(ctx context.Context, rec *MedicalRecord) (bool, error) {
	rec.ID = uuid.New()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, insertRecord+` ON CONFLICT (appointment_id) DO NOTHING`, insertArgs(rec)...)
	if err != nil {
		return false, classify(err, "medicalrecord.create_for_appointment")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Detail, error) {
	d, err := scanDetail(db.Conn(ctx, r.pool).QueryRow(ctx, detailSelect+` WHERE m.id = $1`, id))
	if err != nil {
		return nil, classify(err, "medicalrecord.get")
	}
	return d, nil
}

func (r *repoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Detail, error) {
	d, err := scanDetail(db.Conn(ctx, r.pool).QueryRow(ctx, detailSelect+` WHERE m.appointment_id = $1`, appointmentID))
	if err != nil {
		return nil, classify(err, "medicalrecord.get_by_appointment")
	}
	return d, nil
}

func (r *repoPG) UpdateContent(ctx context.Context, rec *MedicalRecord) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medical_records SET visit_date=$2::date, chief_complaint=$3, diagnosis=$4, treatment=$5,
			prescription=$6, notes=$7, follow_up_date=$8::date, vital_signs=$9
		WHERE id = $1
		RETURNING patient_id, doctor_id, appointment_id, created_by, created_at, updated_at`,
		rec.ID, rec.VisitDate, rec.ChiefComplaint, rec.Diagnosis, rec.Treatment,
		rec.Prescription, rec.Notes, rec.FollowUpDate, rec.VitalSigns,
	).Scan(&rec.PatientID, &rec.DoctorID, &rec.AppointmentID, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	return classify(err, "medicalrecord.update")
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Detail, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		detailSelect+` WHERE m.patient_id = $1 ORDER BY m.visit_date DESC, m.created_at DESC`, patientID)
	if err != nil {
		return nil, apperr.PG(err, "medicalrecord.list")
	}
	defer rows.Close()
	var items []*Detail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, apperr.PG(err, "medicalrecord.list")
		}
		items = append(items, d)
	}
	return items, apperr.PG(rows.Err(), "medicalrecord.list")
}
