package credit

import (
	"context"

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

// =========== Pack Repository ===========

type packRepoPG struct{ pool *pgxpool.Pool }

func NewPackRepoPG(pool *pgxpool.Pool) PackRepository { return &packRepoPG{pool: pool} }

func (r *packRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const packCols = `id, patient_id, label, units_total, units_remaining, unit_minutes,
	price_cents, paid, notes, created_at, updated_at`

func scanPack(row pgx.Row) (*CreditPack, error) {
	var p CreditPack
	err := row.Scan(&p.ID, &p.PatientID, &p.Label, &p.UnitsTotal, &p.UnitsRemaining,
		&p.UnitMinutes, &p.PriceCents, &p.Paid, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *packRepoPG) Create(ctx context.Context, p *CreditPack) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO credit_packs (id, patient_id, label, units_total, units_remaining,
			unit_minutes, price_cents, paid, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.Label, p.UnitsTotal, p.UnitsRemaining,
		p.UnitMinutes, p.PriceCents, p.Paid, p.Notes).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *packRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CreditPack, error) {
	return scanPack(r.conn(ctx).QueryRow(ctx,
		`SELECT `+packCols+` FROM credit_packs WHERE id = $1`, id))
}

func (r *packRepoPG) Update(ctx context.Context, p *CreditPack) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE credit_packs SET label=$2, price_cents=$3, paid=$4, notes=$5, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Label, p.PriceCents, p.Paid, p.Notes)
	return err
}

func (r *packRepoPG) SetPaid(ctx context.Context, id uuid.UUID, paid bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE credit_packs SET paid=$2, updated_at=NOW() WHERE id = $1`, id, paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *packRepoPG) SetUnitsRemaining(ctx context.Context, id uuid.UUID, units int) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE credit_packs SET units_remaining=$2, updated_at=NOW() WHERE id = $1`, id, units)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ConsumeUnits relies on a guarded UPDATE so concurrent bookings can
// never drive a pack negative.
func (r *packRepoPG) ConsumeUnits(ctx context.Context, id uuid.UUID, units int) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE credit_packs
		SET units_remaining = units_remaining - $2, updated_at = NOW()
		WHERE id = $1 AND units_remaining >= $2`,
		id, units)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *packRepoPG) RestoreUnits(ctx context.Context, id uuid.UUID, units int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE credit_packs
		SET units_remaining = LEAST(units_total, units_remaining + $2), updated_at = NOW()
		WHERE id = $1`,
		id, units)
	return err
}

func (r *packRepoPG) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		c := r.conn(ctx)
		if _, err := c.Exec(ctx,
			`DELETE FROM credit_redemptions WHERE credit_pack_id = $1`, id); err != nil {
			return err
		}
		tag, err := c.Exec(ctx, `DELETE FROM credit_packs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

// Paid packs first, then oldest first, so bookings draw from paid
// credit before unpaid and never jump the queue.
const packOrder = ` ORDER BY paid DESC, created_at ASC`

func (r *packRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*CreditPack, error) {
	return r.listPacks(ctx,
		`SELECT `+packCols+` FROM credit_packs WHERE patient_id = $1`+packOrder, patientID)
}

func (r *packRepoPG) ListActiveByPatient(ctx context.Context, patientID uuid.UUID) ([]*CreditPack, error) {
	return r.listPacks(ctx,
		`SELECT `+packCols+` FROM credit_packs WHERE patient_id = $1 AND units_remaining > 0`+packOrder,
		patientID)
}

func (r *packRepoPG) listPacks(ctx context.Context, query string, args ...interface{}) ([]*CreditPack, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CreditPack
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

func (r *packRepoPG) BatchSummary(ctx context.Context, patientIDs []uuid.UUID) ([]*BatchSummaryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id,
			COALESCE(SUM(units_total), 0),
			COALESCE(SUM(units_remaining), 0),
			COALESCE(SUM(price_cents) FILTER (WHERE units_remaining > 0), 0),
			BOOL_OR(NOT paid AND units_remaining > 0)
		FROM credit_packs
		WHERE patient_id = ANY($1)
		GROUP BY patient_id`,
		patientIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BatchSummaryEntry
	for rows.Next() {
		var e BatchSummaryEntry
		if err := rows.Scan(&e.PatientID, &e.TotalCredits, &e.ActiveCredits,
			&e.TotalPriceCents, &e.HasPendingPayment); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, nil
}

// =========== Redemption Repository ===========

type redemptionRepoPG struct{ pool *pgxpool.Pool }

func NewRedemptionRepoPG(pool *pgxpool.Pool) RedemptionRepository {
	return &redemptionRepoPG{pool: pool}
}

func (r *redemptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const redemptionCols = `id, credit_pack_id, appointment_id, units_used, created_at`

func scanRedemption(row pgx.Row) (*CreditRedemption, error) {
	var cr CreditRedemption
	err := row.Scan(&cr.ID, &cr.CreditPackID, &cr.AppointmentID, &cr.UnitsUsed, &cr.CreatedAt)
	return &cr, err
}

func (r *redemptionRepoPG) Create(ctx context.Context, cr *CreditRedemption) error {
	cr.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO credit_redemptions (id, credit_pack_id, appointment_id, units_used)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		cr.ID, cr.CreditPackID, cr.AppointmentID, cr.UnitsUsed).
		Scan(&cr.CreatedAt)
}

func (r *redemptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CreditRedemption, error) {
	return scanRedemption(r.conn(ctx).QueryRow(ctx,
		`SELECT `+redemptionCols+` FROM credit_redemptions WHERE id = $1`, id))
}

func (r *redemptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM credit_redemptions WHERE id = $1`, id)
	return err
}

func (r *redemptionRepoPG) ListByPack(ctx context.Context, packID uuid.UUID) ([]*CreditRedemption, error) {
	return r.list(ctx,
		`SELECT `+redemptionCols+` FROM credit_redemptions WHERE credit_pack_id = $1 ORDER BY created_at`,
		packID)
}

func (r *redemptionRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*CreditRedemption, error) {
	return r.list(ctx,
		`SELECT `+redemptionCols+` FROM credit_redemptions WHERE appointment_id = $1 ORDER BY created_at`,
		appointmentID)
}

func (r *redemptionRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*CreditRedemption, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CreditRedemption
	for rows.Next() {
		cr, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cr)
	}
	return items, nil
}

func (r *redemptionRepoPG) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM credit_redemptions cr
		JOIN credit_packs cp ON cp.id = cr.credit_pack_id
		WHERE cp.patient_id = $1`,
		patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT cr.id, cr.credit_pack_id, cr.appointment_id, cr.units_used, cr.created_at,
			cp.label, cp.unit_minutes, cp.paid
		FROM credit_redemptions cr
		JOIN credit_packs cp ON cp.id = cr.credit_pack_id
		WHERE cp.patient_id = $1
		ORDER BY cr.created_at DESC
		LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Redemption.ID, &e.Redemption.CreditPackID,
			&e.Redemption.AppointmentID, &e.Redemption.UnitsUsed, &e.Redemption.CreatedAt,
			&e.PackLabel, &e.UnitMinutes, &e.Paid); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, nil
}

func (r *redemptionRepoPG) ListOrphaned(ctx context.Context) ([]*OrphanedRedemption, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT cr.id, cr.credit_pack_id, cr.appointment_id,
			cp.id IS NULL AS missing_pack,
			a.id IS NULL AS missing_appointment
		FROM credit_redemptions cr
		LEFT JOIN credit_packs cp ON cp.id = cr.credit_pack_id
		LEFT JOIN appointments a ON a.id = cr.appointment_id
		WHERE cp.id IS NULL OR a.id IS NULL
		ORDER BY cr.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*OrphanedRedemption
	for rows.Next() {
		var o OrphanedRedemption
		if err := rows.Scan(&o.RedemptionID, &o.CreditPackID, &o.AppointmentID,
			&o.MissingPack, &o.MissingAppointment); err != nil {
			return nil, err
		}
		items = append(items, &o)
	}
	return items, nil
}
