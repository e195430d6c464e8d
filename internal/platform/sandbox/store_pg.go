package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bharatemr/practice/internal/domain/consultation"
	"github.com/bharatemr/practice/internal/domain/followup"
	"github.com/bharatemr/practice/internal/domain/patient"
	"github.com/bharatemr/practice/internal/domain/visit"
	"github.com/bharatemr/practice/internal/platform/query"
)

type storePG struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the sandbox schema. Run the
// migrator first.
func NewPGStore(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *storePG) conn() querier { return r.pool }

const uniqueViolation = "23505"

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

const patientCols = `id, patient_code, full_name, mobile, email, date_of_birth, gender, blood_group,
	address, city, state, pincode, emergency_contact_name, emergency_contact_number, created_at`

var patientSort = map[string]string{
	"createdAt": "created_at",
	"fullName":  "LOWER(full_name)",
	// Ascending age is descending date of birth.
	"age": "(CURRENT_DATE - date_of_birth)",
	"id":  "id",
}

func scanPatient(row pgx.Row) (*patient.Patient, error) {
	var p patient.Patient
	var dob time.Time
	if err := row.Scan(&p.ID, &p.PatientID, &p.FullName, &p.Mobile, &p.Email, &dob, &p.Gender, &p.BloodGroup,
		&p.Address, &p.City, &p.State, &p.Pincode, &p.EmergencyContactName, &p.EmergencyContactNumber, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.DateOfBirth = dob.Format(query.DateLayout)
	return &p, nil
}

func (r *storePG) ListPatients(ctx context.Context, q ListQuery) ([]patient.Patient, int, error) {
	qb := newSearchQuery("patients", patientCols)
	st := q.State
	if st.Search != "" {
		qb.AddContains(st.Search, "full_name", "mobile", "patient_code")
	}
	if v, ok := st.Filter(patient.FilterGender); ok {
		qb.AddEq("gender", v)
	}
	if v, ok := st.Filter(patient.FilterBloodGroup); ok {
		qb.AddEq("blood_group", v)
	}
	if v, ok := st.Filter(patient.FilterCity); ok {
		qb.Add(fmt.Sprintf("LOWER(city) = LOWER($%d)", qb.Idx()), v)
	}
	// Age bounds become birth-date bounds relative to q.Now.
	if n, ok := numberFilter(st, patient.FilterMinAge); ok {
		qb.Add(fmt.Sprintf("date_of_birth <= $%d", qb.Idx()), q.Now.AddDate(-int(n), 0, 0))
	}
	if n, ok := numberFilter(st, patient.FilterMaxAge); ok {
		qb.Add(fmt.Sprintf("date_of_birth > $%d", qb.Idx()), q.Now.AddDate(-int(n)-1, 0, 0))
	}
	addDateRange(qb, "created_at", st, patient.FilterRegisteredFrom, patient.FilterRegisteredTo)
	qb.OrderBy(st.SortKey, st.SortDirection, patientSort, "created_at")

	var total int
	if err := r.conn().QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn().Query(ctx, qb.DataSQL(), qb.DataArgs(q.Page.Limit(), q.Page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []patient.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

func (r *storePG) GetPatient(ctx context.Context, id string) (*patient.Patient, error) {
	p, err := scanPatient(r.conn().QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id::text = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

func (r *storePG) CreatePatient(ctx context.Context, p *patient.Patient) error {
	_, err := r.conn().Exec(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.PatientID, p.FullName, p.Mobile, p.Email, p.DateOfBirth, p.Gender, p.BloodGroup,
		p.Address, p.City, p.State, p.Pincode, p.EmergencyContactName, p.EmergencyContactNumber, p.CreatedAt,
	)
	return translate(err)
}

// ---------------------------------------------------------------------------
// Visits
// ---------------------------------------------------------------------------

const visitCols = `v.id, v.patient_id, p.full_name, v.doctor_id, v.doctor_name, v.status,
	v.chief_complaint, v.present_illness, v.past_illness, v.medical_history, v.surgical_history,
	v.clinical_notes, v.medicines, v.tests, v.follow_up, v.created_at`

const visitFrom = `visits v JOIN patients p ON p.id = v.patient_id`

var visitSort = map[string]string{
	"createdAt":   "v.created_at",
	"patientName": "LOWER(p.full_name)",
	"id":          "v.id",
}

func scanVisit(row pgx.Row) (*visit.Visit, error) {
	var v visit.Visit
	var meds, tests, followUp []byte
	var status string
	if err := row.Scan(&v.ID, &v.PatientID, &v.PatientName, &v.DoctorID, &v.DoctorName, &status,
		&v.ChiefComplaint, &v.PresentIllness, &v.PastIllness, &v.MedicalHistory, &v.SurgicalHistory,
		&v.ClinicalNotes, &meds, &tests, &followUp, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Status = consultation.Status(status)
	if err := json.Unmarshal(meds, &v.Medicines); err != nil {
		return nil, fmt.Errorf("decode medicines of visit %s: %w", v.ID, err)
	}
	if err := json.Unmarshal(tests, &v.Tests); err != nil {
		return nil, fmt.Errorf("decode tests of visit %s: %w", v.ID, err)
	}
	if len(followUp) > 0 {
		if err := json.Unmarshal(followUp, &v.FollowUp); err != nil {
			return nil, fmt.Errorf("decode follow-up of visit %s: %w", v.ID, err)
		}
	}
	return &v, nil
}

// documents encodes the JSON columns of v.
func documents(v *visit.Visit) (meds, tests, followUp []byte, err error) {
	medicines := v.Medicines
	if medicines == nil {
		medicines = []consultation.PrescriptionLine{}
	}
	orders := v.Tests
	if orders == nil {
		orders = []consultation.TestOrder{}
	}
	if meds, err = json.Marshal(medicines); err != nil {
		return nil, nil, nil, err
	}
	if tests, err = json.Marshal(orders); err != nil {
		return nil, nil, nil, err
	}
	if v.FollowUp != nil && v.FollowUp.Active() {
		if followUp, err = json.Marshal(v.FollowUp); err != nil {
			return nil, nil, nil, err
		}
	}
	return meds, tests, followUp, nil
}

func (r *storePG) ListVisits(ctx context.Context, q ListQuery) ([]visit.Visit, int, error) {
	qb := newSearchQuery(visitFrom, visitCols)
	st := q.State
	if q.DoctorID != "" {
		qb.AddEq("v.doctor_id", q.DoctorID)
	}
	if q.PatientID != "" {
		qb.AddEq("v.patient_id::text", q.PatientID)
	}
	if st.Search != "" {
		qb.AddContains(st.Search, "p.full_name", "v.chief_complaint", "v.id::text")
	}
	if f, ok := st.Filter(visit.FilterStatus); ok {
		qb.AddEq("v.status", f)
	}
	if f, ok := st.Filter(visit.FilterPatientID); ok {
		qb.AddEq("v.patient_id::text", f)
	}
	addDateRange(qb, "v.created_at", st, visit.FilterFrom, visit.FilterTo)
	qb.OrderBy(st.SortKey, st.SortDirection, visitSort, "v.created_at")

	var total int
	if err := r.conn().QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn().Query(ctx, qb.DataSQL(), qb.DataArgs(q.Page.Limit(), q.Page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []visit.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *v)
	}
	return out, total, rows.Err()
}

func (r *storePG) GetVisit(ctx context.Context, id string) (*visit.Visit, error) {
	v, err := scanVisit(r.conn().QueryRow(ctx, `SELECT `+visitCols+` FROM `+visitFrom+` WHERE v.id::text = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func (r *storePG) CreateVisit(ctx context.Context, v *visit.Visit) error {
	meds, tests, followUp, err := documents(v)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO visits (
				id, patient_id, doctor_id, doctor_name, status,
				chief_complaint, present_illness, past_illness, medical_history, surgical_history, clinical_notes,
				medicines, tests, follow_up, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)`,
			v.ID, v.PatientID, v.DoctorID, v.DoctorName, string(v.Status),
			v.ChiefComplaint, v.PresentIllness, v.PastIllness, v.MedicalHistory, v.SurgicalHistory, v.ClinicalNotes,
			meds, tests, followUp, v.CreatedAt,
		)
		if err != nil {
			return translate(err)
		}
		return syncFollowUp(ctx, tx, v, v.CreatedAt)
	})
}

func (r *storePG) UpdateVisit(ctx context.Context, v *visit.Visit) error {
	meds, tests, followUp, err := documents(v)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE visits SET
				status = $2, chief_complaint = $3, present_illness = $4, past_illness = $5,
				medical_history = $6, surgical_history = $7, clinical_notes = $8,
				medicines = $9, tests = $10, follow_up = $11, updated_at = NOW()
			WHERE id::text = $1`,
			v.ID, string(v.Status), v.ChiefComplaint, v.PresentIllness, v.PastIllness,
			v.MedicalHistory, v.SurgicalHistory, v.ClinicalNotes, meds, tests, followUp,
		)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return syncFollowUp(ctx, tx, v, time.Now().UTC())
	})
}

func (r *storePG) Reset(ctx context.Context) error {
	_, err := r.conn().Exec(ctx, `TRUNCATE follow_ups, visits, patients`)
	return err
}

// ---------------------------------------------------------------------------
// Follow-ups
// ---------------------------------------------------------------------------

const followUpCols = `f.id, f.visit_id, f.patient_id, p.full_name, p.mobile, f.doctor_id, f.doctor_name,
	f.scheduled_date, f.notes, f.status, f.created_at`

const followUpFrom = `follow_ups f JOIN patients p ON p.id = f.patient_id`

var followUpSort = map[string]string{
	"scheduledDate": "f.scheduled_date",
	"patientName":   "LOWER(p.full_name)",
	"createdAt":     "f.created_at",
	"id":            "f.id",
}

// syncFollowUp applies the visit's follow-up inside the visit's
// transaction. A moved date books the follow-up again.
func syncFollowUp(ctx context.Context, q querier, v *visit.Visit, booked time.Time) error {
	if v.FollowUp == nil || !v.FollowUp.Active() {
		_, err := q.Exec(ctx, `
			UPDATE follow_ups SET status = $2, updated_at = NOW()
			WHERE visit_id::text = $1 AND status = $3`,
			v.ID, string(followup.Cancelled), string(followup.Scheduled))
		return err
	}
	_, err := q.Exec(ctx, `
		INSERT INTO follow_ups (id, visit_id, patient_id, doctor_id, doctor_name, scheduled_date, notes, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		ON CONFLICT (visit_id) DO UPDATE SET
			status = CASE WHEN follow_ups.scheduled_date <> EXCLUDED.scheduled_date
				THEN EXCLUDED.status ELSE follow_ups.status END,
			scheduled_date = EXCLUDED.scheduled_date,
			notes = EXCLUDED.notes,
			updated_at = NOW()`,
		uuid.NewString(), v.ID, v.PatientID, v.DoctorID, v.DoctorName,
		v.FollowUp.ScheduledDate.Time(), v.FollowUp.Notes, string(followup.Scheduled), booked,
	)
	return translate(err)
}

func scanFollowUp(row pgx.Row) (*followup.FollowUp, error) {
	var f followup.FollowUp
	var day time.Time
	var status string
	if err := row.Scan(&f.ID, &f.VisitID, &f.PatientID, &f.PatientName, &f.PatientMobile, &f.DoctorID, &f.DoctorName,
		&day, &f.Notes, &status, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.ScheduledDate = consultation.NewDate(day.Year(), day.Month(), day.Day())
	f.Status = followup.Status(status)
	return &f, nil
}

func (r *storePG) ListFollowUps(ctx context.Context, q ListQuery) ([]followup.FollowUp, int, error) {
	qb := newSearchQuery(followUpFrom, followUpCols)
	st := q.State
	if q.DoctorID != "" {
		qb.AddEq("f.doctor_id", q.DoctorID)
	}
	if q.PatientID != "" {
		qb.AddEq("f.patient_id::text", q.PatientID)
	}
	if st.Search != "" {
		qb.AddContains(st.Search, "p.full_name", "f.notes")
	}
	if v, ok := st.Filter(followup.FilterStatus); ok {
		qb.AddEq("f.status", v)
	}
	addDateRange(qb, "f.scheduled_date", st, followup.FilterFrom, followup.FilterTo)
	qb.OrderBy(st.SortKey, st.SortDirection, followUpSort, "f.scheduled_date")

	var total int
	if err := r.conn().QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn().Query(ctx, qb.DataSQL(), qb.DataArgs(q.Page.Limit(), q.Page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []followup.FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *f)
	}
	return out, total, rows.Err()
}

func (r *storePG) GetFollowUp(ctx context.Context, id string) (*followup.FollowUp, error) {
	f, err := scanFollowUp(r.conn().QueryRow(ctx, `SELECT `+followUpCols+` FROM `+followUpFrom+` WHERE f.id::text = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return f, nil
}

func (r *storePG) SetFollowUpStatus(ctx context.Context, id string, from, to followup.Status) error {
	tag, err := r.conn().Exec(ctx, `
		UPDATE follow_ups SET status = $3, updated_at = NOW()
		WHERE id::text = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.conn().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM follow_ups WHERE id::text = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func addDateRange(qb *searchQuery, column string, st query.State, fromKey, toKey string) {
	if from, ok := dateFilter(st, fromKey); ok {
		qb.Add(fmt.Sprintf("%s >= $%d", column, qb.Idx()), from)
	}
	if to, ok := dateFilter(st, toKey); ok {
		qb.Add(fmt.Sprintf("%s < $%d", column, qb.Idx()), to.AddDate(0, 0, 1))
	}
}
