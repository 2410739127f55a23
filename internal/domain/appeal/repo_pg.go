package appeal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcm/rcm/internal/domain/denial"
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

const appealCols = `id, appeal_number, denial_id, template_id, appeal_type, subject_line, letter_body,
	clinical_justification, additional_notes, supporting_documents, optional_documents,
	disputed_amount, requested_amount, outcome_amount, status, submission_method,
	confirmation_number, submitted_at, response_deadline, response_date, response_notes,
	ai_generated, ai_enhanced, ai_confidence, created_by, created_at, updated_at`

func appealDest(a *Appeal) []interface{} {
	return []interface{}{&a.ID, &a.AppealNumber, &a.DenialID, &a.TemplateID, &a.AppealType, &a.SubjectLine, &a.LetterBody,
		&a.ClinicalJustification, &a.AdditionalNotes, &a.SupportingDocuments, &a.OptionalDocuments,
		&a.DisputedAmount, &a.RequestedAmount, &a.OutcomeAmount, &a.Status, &a.SubmissionMethod,
		&a.ConfirmationNumber, &a.SubmittedAt, &a.ResponseDeadline, &a.ResponseDate, &a.ResponseNotes,
		&a.AIGenerated, &a.AIEnhanced, &a.AIConfidence, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt}
}

func scanAppeal(row pgx.Row, id uuid.UUID) (*Appeal, error) {
	var a Appeal
	if err := row.Scan(appealDest(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("appeal", id.String())
		}
		return nil, err
	}
	return &a, nil
}

func (r *RepoPG) Create(ctx context.Context, a *Appeal) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appeal (id, appeal_number, denial_id, template_id, appeal_type, subject_line, letter_body,
			clinical_justification, additional_notes, supporting_documents, optional_documents,
			disputed_amount, requested_amount, status, response_deadline,
			ai_generated, ai_enhanced, ai_confidence, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at`,
		a.ID, a.AppealNumber, a.DenialID, a.TemplateID, a.AppealType, a.SubjectLine, a.LetterBody,
		a.ClinicalJustification, a.AdditionalNotes, a.SupportingDocuments, a.OptionalDocuments,
		a.DisputedAmount, a.RequestedAmount, a.Status, a.ResponseDeadline,
		a.AIGenerated, a.AIEnhanced, a.AIConfidence, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appeal, error) {
	return scanAppeal(r.conn(ctx).QueryRow(ctx, `SELECT `+appealCols+` FROM appeal WHERE id = $1`, id), id)
}

func (r *RepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appeal, error) {
	return scanAppeal(r.conn(ctx).QueryRow(ctx, `SELECT `+appealCols+` FROM appeal WHERE id = $1 FOR UPDATE`, id), id)
}

func (r *RepoPG) Update(ctx context.Context, a *Appeal) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appeal SET status = $2, submission_method = $3, confirmation_number = $4, submitted_at = $5,
			outcome_amount = $6, response_date = $7, response_notes = $8, additional_notes = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, a.SubmissionMethod, a.ConfirmationNumber, a.SubmittedAt,
		a.OutcomeAmount, a.ResponseDate, a.ResponseNotes, a.AdditionalNotes,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("appeal", a.ID.String())
	}
	return err
}

func (r *RepoPG) ListByDenial(ctx context.Context, denialID uuid.UUID, limit, offset int) ([]*Appeal, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appeal WHERE denial_id = $1`, denialID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+appealCols+` FROM appeal
		WHERE denial_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, denialID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appeal
	for rows.Next() {
		var a Appeal
		if err := rows.Scan(appealDest(&a)...); err != nil {
			return nil, 0, err
		}
		items = append(items, &a)
	}
	return items, total, rows.Err()
}

func (r *RepoPG) NumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appeal WHERE appeal_number = $1)`, number).Scan(&exists)
	return exists, err
}

// TemplateRepoPG reads the appeal_template table.
type TemplateRepoPG struct {
	pool *pgxpool.Pool
}

func NewTemplateRepoPG(pool *pgxpool.Pool) *TemplateRepoPG {
	return &TemplateRepoPG{pool: pool}
}

func (r *TemplateRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const templateCols = `id, name, subject_template, body_template, denial_category, is_default, active,
	required_attachments, optional_attachments, usage_count, created_at, updated_at`

func templateDest(t *Template) []interface{} {
	return []interface{}{&t.ID, &t.Name, &t.SubjectTemplate, &t.BodyTemplate, &t.DenialCategory, &t.IsDefault, &t.Active,
		&t.RequiredAttachments, &t.OptionalAttachments, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt}
}

func scanTemplate(row pgx.Row, id string) (*Template, error) {
	var t Template
	if err := row.Scan(templateDest(&t)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("appeal_template", id)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	return scanTemplate(r.conn(ctx).QueryRow(ctx, `SELECT `+templateCols+` FROM appeal_template WHERE id = $1`, id), id.String())
}

func (r *TemplateRepoPG) FindActiveByCategory(ctx context.Context, category denial.Category) ([]*Template, error) {
	return r.query(ctx, `SELECT `+templateCols+` FROM appeal_template
		WHERE active AND denial_category = $1
		ORDER BY is_default DESC, created_at ASC`, category)
}

func (r *TemplateRepoPG) FindGlobalDefault(ctx context.Context) (*Template, error) {
	return scanTemplate(r.conn(ctx).QueryRow(ctx, `SELECT `+templateCols+` FROM appeal_template
		WHERE active AND is_default AND denial_category IS NULL
		ORDER BY created_at ASC LIMIT 1`), "")
}

func (r *TemplateRepoPG) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE appeal_template SET usage_count = usage_count + 1, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *TemplateRepoPG) List(ctx context.Context, activeOnly bool) ([]*Template, error) {
	q := `SELECT ` + templateCols + ` FROM appeal_template`
	if activeOnly {
		q += ` WHERE active`
	}
	return r.query(ctx, q+` ORDER BY denial_category NULLS LAST, is_default DESC, name`)
}

func (r *TemplateRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Template, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(templateDest(&t)...); err != nil {
			return nil, err
		}
		items = append(items, &t)
	}
	return items, rows.Err()
}
