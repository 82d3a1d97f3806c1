package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsuarezmarra/clinic-sub001/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, patient_id, start_at, end_at, duration_minutes, price_cents,
	consumes_credit, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.StartAt, &a.EndAt, &a.DurationMinutes,
		&a.PriceCents, &a.ConsumesCredit, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, start_at, end_at, duration_minutes,
			price_cents, consumes_credit, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.StartAt, a.EndAt, a.DurationMinutes,
		a.PriceCents, a.ConsumesCredit, a.Status, a.Notes).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET patient_id=$2, start_at=$3, end_at=$4, duration_minutes=$5,
			price_cents=$6, consumes_credit=$7, status=$8, notes=$9, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.PatientID, a.StartAt, a.EndAt, a.DurationMinutes,
		a.PriceCents, a.ConsumesCredit, a.Status, a.Notes)
	return err
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE patient_id = $1 ORDER BY start_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) ListByRange(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE start_at < $2 AND end_at > $1 ORDER BY start_at`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}

func (r *repoPG) CountOverlapping(ctx context.Context, start, end time.Time, exclude *uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM appointments
		WHERE status = 'BOOKED' AND start_at < $2 AND end_at > $1`
	args := []interface{}{start, end}
	if exclude != nil {
		query += ` AND id <> $3`
		args = append(args, *exclude)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}
