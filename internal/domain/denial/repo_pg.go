package denial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcm/rcm/internal/platform/apperr"
	"github.com/rcm/rcm/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const denialCols = `d.id, d.claim_id, d.patient_id, d.billed_amount, d.denied_amount,
	d.reason_code, d.reason_description, d.classified_category, d.root_cause,
	d.payer_name, d.procedure_code, d.diagnosis_codes,
	d.denial_date, d.service_date, d.appeal_deadline,
	d.status, d.priority, d.resolution_type, d.resolved_at,
	d.created_by, d.created_at, d.updated_at`

// urgencyOrder mirrors SortByUrgency. Open denials are bucketed from the
// deadline at query time; closed ones use their stored priority.
const urgencyOrder = `CASE
		WHEN d.status IN ('resolved', 'written_off') THEN
			CASE d.priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END
		WHEN d.appeal_deadline IS NULL THEN 3
		WHEN d.appeal_deadline - CURRENT_DATE <= 3 THEN 0
		WHEN d.appeal_deadline - CURRENT_DATE <= 7 THEN 1
		WHEN d.appeal_deadline - CURRENT_DATE <= 21 THEN 2
		ELSE 3
	END,
	d.appeal_deadline ASC NULLS LAST, d.denied_amount DESC, d.created_at ASC`

func denialDest(d *Denial) []interface{} {
	return []interface{}{&d.ID, &d.ClaimID, &d.PatientID, &d.BilledAmount, &d.DeniedAmount,
		&d.ReasonCode, &d.ReasonDescription, &d.ClassifiedCategory, &d.RootCause,
		&d.PayerName, &d.ProcedureCode, &d.DiagnosisCodes,
		&d.DenialDate, &d.ServiceDate, &d.AppealDeadline,
		&d.Status, &d.Priority, &d.ResolutionType, &d.ResolvedAt,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt}
}

func scanDenial(row pgx.Row, id uuid.UUID) (*Denial, error) {
	var d Denial
	if err := row.Scan(denialDest(&d)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("denial", id.String())
		}
		return nil, err
	}
	return &d, nil
}

func (r *RepoPG) Create(ctx context.Context, d *Denial) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO denial (id, claim_id, patient_id, billed_amount, denied_amount,
			reason_code, reason_description, classified_category, root_cause,
			payer_name, procedure_code, diagnosis_codes,
			denial_date, service_date, appeal_deadline,
			status, priority, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		d.ID, d.ClaimID, d.PatientID, d.BilledAmount, d.DeniedAmount,
		d.ReasonCode, d.ReasonDescription, d.ClassifiedCategory, d.RootCause,
		d.PayerName, d.ProcedureCode, d.DiagnosisCodes,
		d.DenialDate, d.ServiceDate, d.AppealDeadline,
		d.Status, d.Priority, d.CreatedBy,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Denial, error) {
	return scanDenial(r.conn(ctx).QueryRow(ctx, `SELECT `+denialCols+` FROM denial d WHERE d.id = $1`, id), id)
}

func (r *RepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Denial, error) {
	return scanDenial(r.conn(ctx).QueryRow(ctx, `SELECT `+denialCols+` FROM denial d WHERE d.id = $1 FOR UPDATE`, id), id)
}

func (r *RepoPG) GetContext(ctx context.Context, id uuid.UUID) (*Context, error) {
	var (
		d       Denial
		claimID *uuid.UUID
		claim   ClaimSummary
		patID   *uuid.UUID
		patient PatientSummary
	)
	dest := append(denialDest(&d),
		&claimID, &claim.ClaimNumber, &claim.MemberID, &claim.ProviderName, &claim.ProviderNPI,
		&patID, &patient.FirstName, &patient.LastName, &patient.DateOfBirth)

	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+denialCols+`,
			c.id, c.claim_number, c.member_id, c.provider_name, c.provider_npi,
			p.id, p.first_name, p.last_name, p.date_of_birth
		FROM denial d
		LEFT JOIN claim c ON c.id = d.claim_id
		LEFT JOIN patient p ON p.id = d.patient_id
		WHERE d.id = $1`, id).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("denial", id.String())
		}
		return nil, err
	}

	out := &Context{Denial: &d}
	if claimID != nil {
		claim.ID = *claimID
		out.Claim = &claim
	}
	if patID != nil {
		patient.ID = *patID
		out.Patient = &patient
	}
	return out, nil
}

func (r *RepoPG) UpdateStatus(ctx context.Context, d *Denial) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE denial SET status = $2, resolution_type = $3, resolved_at = $4, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Status, d.ResolutionType, d.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("denial", d.ID.String())
	}
	return nil
}

func (r *RepoPG) UpdatePriority(ctx context.Context, id uuid.UUID, p Priority) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE denial SET priority = $2, updated_at = NOW() WHERE id = $1`, id, p)
	return err
}

func (r *RepoPG) List(ctx context.Context, f ListFilter) ([]*Denial, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("d.status = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("d.classified_category = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM denial d`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s FROM denial d%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		denialCols, clause, urgencyOrder, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *RepoPG) ListOpen(ctx context.Context) ([]*Denial, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+denialCols+` FROM denial d
		WHERE d.status NOT IN ('resolved', 'written_off') ORDER BY d.created_at`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Denial, error) {
	defer rows.Close()
	var items []*Denial
	for rows.Next() {
		var d Denial
		if err := rows.Scan(denialDest(&d)...); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}
