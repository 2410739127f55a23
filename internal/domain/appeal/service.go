package appeal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rcm/rcm/internal/domain/audit"
	"github.com/rcm/rcm/internal/domain/denial"
	"github.com/rcm/rcm/internal/platform/apperr"
	"github.com/rcm/rcm/internal/platform/db"
)

// ResponseWindow is added to the generation time to get response_deadline.
const ResponseWindow = 45 * 24 * time.Hour

const numberAttempts = 3

// Denials is the part of the denial service the appeal workflow drives.
type Denials interface {
	GetDenialContext(ctx context.Context, id uuid.UUID) (*denial.Context, error)
	SyncWithAppeal(ctx context.Context, id uuid.UUID, ev denial.AppealEvent) (from, to denial.Status, err error)
}

// AuditRecorder appends audit entries inside the caller's transaction.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

type Service struct {
	repo      Repository
	templates TemplateRepository
	resolver  *TemplateResolver
	denials   Denials
	audit     AuditRecorder
	enhancer  *AIEnhancer
	tx        db.Transactor
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(repo Repository, templates TemplateRepository, denials Denials, rec AuditRecorder, enhancer *AIEnhancer, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		templates: templates,
		resolver:  NewTemplateResolver(templates),
		denials:   denials,
		audit:     rec,
		enhancer:  enhancer,
		tx:        tx,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func requireActor(actorID string) error {
	if actorID == "" {
		return apperr.Invalid("actor_id", "is required")
	}
	return nil
}

// GenerateAppeal drafts an appeal letter for the denial and moves the denial
// to appealing. Everything that can be computed without writing (template,
// rendering, AI enhancement, number) happens first; the insert, the denial
// update and the audit entry then commit together.
func (s *Service) GenerateAppeal(ctx context.Context, denialID uuid.UUID, opts GenerateOptions, actorID string) (*GenerateResult, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if opts.AppealType == "" {
		opts.AppealType = TypeFirstLevel
	}
	if !validAppealTypes[opts.AppealType] {
		return nil, apperr.Invalid("appeal_type", fmt.Sprintf("unknown appeal type %q", opts.AppealType))
	}

	dc, err := s.denials.GetDenialContext(ctx, denialID)
	if err != nil {
		return nil, err
	}
	d := dc.Denial
	if d.Status.IsTerminal() {
		return nil, apperr.InvalidTransition("denial", string(d.Status), string(denial.StatusAppealing))
	}

	tmpl, source, err := s.resolver.Resolve(ctx, d.ClassifiedCategory, opts.TemplateID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	vars := BuildVariables(dc, opts, now).Map()
	subject := Render(tmpl.SubjectTemplate, vars)
	body := Render(tmpl.BodyTemplate, vars)
	if keys := Unresolved(subject + "\n" + body); len(keys) > 0 {
		s.logger.Debug().
			Str("denial_id", d.ID.String()).
			Str("template", tmpl.Name).
			Strs("placeholders", keys).
			Msg("template placeholders left unresolved")
	}

	confidence := BaseConfidence
	enhanced := false
	if opts.ClinicalJustification != nil && *opts.ClinicalJustification != "" {
		e := s.enhancer.Enhance(ctx, d, body, *opts.ClinicalJustification)
		body, confidence, enhanced = e.Letter, e.Confidence, e.Enhanced
	}

	number, err := s.nextNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	a := &Appeal{
		ID:                    uuid.New(),
		AppealNumber:          number,
		DenialID:              d.ID,
		AppealType:            opts.AppealType,
		SubjectLine:           subject,
		LetterBody:            body,
		ClinicalJustification: opts.ClinicalJustification,
		AdditionalNotes:       opts.AdditionalNotes,
		SupportingDocuments:   copyList(tmpl.RequiredAttachments),
		OptionalDocuments:     copyList(tmpl.OptionalAttachments),
		DisputedAmount:        d.DeniedAmount,
		RequestedAmount:       d.DeniedAmount,
		Status:                StatusDraft,
		ResponseDeadline:      now.Add(ResponseWindow),
		AIGenerated:           true,
		AIEnhanced:            enhanced,
		AIConfidence:          confidence,
		CreatedBy:             actorID,
	}
	if source != SourceFallback {
		id := tmpl.ID
		a.TemplateID = &id
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		// The denial row lock must be taken before the appeal insert, whose
		// foreign key check takes a key-share lock on the same row.
		from, to, err := s.denials.SyncWithAppeal(ctx, d.ID, denial.AppealGenerated)
		if err != nil {
			return err
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return apperr.Persistence("insert appeal", err)
		}
		return s.audit.Record(ctx, &audit.Entry{
			DenialID:    d.ID,
			AppealID:    &a.ID,
			ActionType:  audit.ActionAppealGenerated,
			Description: fmt.Sprintf("appeal %s generated (%s, %s template); denial %s -> %s", a.AppealNumber, a.AppealType, source, from, to),
			PerformedBy: actorID,
		})
	})
	if err != nil {
		return nil, apperr.Persistence("generate appeal", err)
	}

	if a.TemplateID != nil {
		if err := s.templates.IncrementUsage(ctx, *a.TemplateID); err != nil {
			s.logger.Warn().Err(err).Str("template_id", a.TemplateID.String()).Msg("failed to increment template usage")
		}
	}

	s.logger.Info().
		Str("appeal_id", a.ID.String()).
		Str("appeal_number", a.AppealNumber).
		Str("denial_id", d.ID.String()).
		Str("template_source", string(source)).
		Bool("ai_enhanced", enhanced).
		Msg("appeal generated")

	return &GenerateResult{
		AppealID:          a.ID,
		AppealNumber:      a.AppealNumber,
		SubjectLine:       a.SubjectLine,
		LetterBody:        a.LetterBody,
		RequiredDocuments: a.SupportingDocuments,
		OptionalDocuments: a.OptionalDocuments,
		AIConfidence:      a.AIConfidence,
		ResponseDeadline:  a.ResponseDeadline,
	}, nil
}

func (s *Service) nextNumber(ctx context.Context, now time.Time) (string, error) {
	for i := 0; i < numberAttempts; i++ {
		n, err := NewNumber(now)
		if err != nil {
			return "", err
		}
		exists, err := s.repo.NumberExists(ctx, n)
		if err != nil {
			return "", apperr.Persistence("check appeal number", err)
		}
		if !exists {
			return n, nil
		}
		s.logger.Warn().Str("appeal_number", n).Msg("appeal number collision, retrying")
	}
	return "", apperr.Persistence("generate appeal number", errors.New("no unused number after retries"))
}

func copyList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// SubmitAppeal records that the letter was sent to the payer.
func (s *Service) SubmitAppeal(ctx context.Context, id uuid.UUID, in SubmitInput, actorID string) (*Appeal, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if !validMethods[in.Method] {
		return nil, apperr.Invalid("submission_method", fmt.Sprintf("unknown submission method %q", in.Method))
	}

	var out *Appeal
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperr.Persistence("lock appeal", err)
		}
		if !canAdvance(a.Status, StatusSubmitted) {
			return apperr.InvalidTransition("appeal", string(a.Status), string(StatusSubmitted))
		}
		now := s.now().UTC()
		method := in.Method
		a.Status = StatusSubmitted
		a.SubmissionMethod = &method
		a.ConfirmationNumber = in.ConfirmationNumber
		a.SubmittedAt = &now
		if err := s.repo.Update(ctx, a); err != nil {
			return apperr.Persistence("update appeal", err)
		}
		out = a
		return s.audit.Record(ctx, &audit.Entry{
			DenialID:    a.DenialID,
			AppealID:    &a.ID,
			ActionType:  audit.ActionAppealSubmitted,
			Description: fmt.Sprintf("appeal %s submitted by %s", a.AppealNumber, method),
			PerformedBy: actorID,
		})
	})
	if err != nil {
		return nil, apperr.Persistence("submit appeal", err)
	}
	return out, nil
}

// RecordOutcome stores the payer's decision on a submitted or in-review
// appeal and synchronises the denial: won resolves it, partial sends it back
// to reviewing and denied reopens it.
func (s *Service) RecordOutcome(ctx context.Context, id uuid.UUID, in OutcomeInput, actorID string) (*Appeal, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	ev, ok := outcomeEvents[in.Outcome]
	if !ok {
		return nil, apperr.Invalid("outcome", fmt.Sprintf("unknown outcome %q", in.Outcome))
	}
	if in.Outcome != OutcomeDenied && in.Amount == nil {
		return nil, apperr.Invalid("amount", fmt.Sprintf("is required for outcome %s", in.Outcome))
	}

	var out *Appeal
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperr.Persistence("lock appeal", err)
		}
		if !a.Status.AwaitingResponse() {
			return apperr.InvalidTransition("appeal", string(a.Status), string(in.Outcome))
		}

		amount := decimal.Zero
		if in.Outcome != OutcomeDenied {
			amount = *in.Amount
			if amount.IsNegative() {
				return apperr.Invalid("amount", "must be non-negative")
			}
			if amount.GreaterThan(a.DisputedAmount) {
				return apperr.Invalid("amount", fmt.Sprintf("exceeds disputed amount %s", a.DisputedAmount.StringFixed(2)))
			}
		}

		from := a.Status
		today := dateOnly(s.now())
		notes := in.Notes
		a.Status = Status(in.Outcome)
		a.OutcomeAmount = decimal.NewNullDecimal(amount)
		a.ResponseDate = &today
		a.ResponseNotes = &notes
		if err := s.repo.Update(ctx, a); err != nil {
			return apperr.Persistence("update appeal", err)
		}

		dFrom, dTo, err := s.denials.SyncWithAppeal(ctx, a.DenialID, ev)
		if err != nil {
			return err
		}
		out = a
		return s.audit.Record(ctx, &audit.Entry{
			DenialID:   a.DenialID,
			AppealID:   &a.ID,
			ActionType: audit.ActionOutcomeRecorded,
			Description: fmt.Sprintf("appeal %s %s -> %s (%s); denial %s -> %s",
				a.AppealNumber, from, a.Status, amount.StringFixed(2), dFrom, dTo),
			PerformedBy: actorID,
		})
	})
	if err != nil {
		return nil, apperr.Persistence("record appeal outcome", err)
	}
	s.logger.Info().Str("appeal_id", id.String()).Str("outcome", string(in.Outcome)).Msg("appeal outcome recorded")
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MarkPendingReview sends a draft to internal review.
func (s *Service) MarkPendingReview(ctx context.Context, id uuid.UUID, actorID string) (*Appeal, error) {
	return s.advance(ctx, id, StatusPendingReview, actorID)
}

// ApproveAppeal approves a reviewed letter for submission.
func (s *Service) ApproveAppeal(ctx context.Context, id uuid.UUID, actorID string) (*Appeal, error) {
	return s.advance(ctx, id, StatusApproved, actorID)
}

// MarkInReview records that the payer acknowledged the submitted appeal.
func (s *Service) MarkInReview(ctx context.Context, id uuid.UUID, actorID string) (*Appeal, error) {
	return s.advance(ctx, id, StatusInReview, actorID)
}

func (s *Service) advance(ctx context.Context, id uuid.UUID, target Status, actorID string) (*Appeal, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	var out *Appeal
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperr.Persistence("lock appeal", err)
		}
		if !canAdvance(a.Status, target) {
			return apperr.InvalidTransition("appeal", string(a.Status), string(target))
		}
		from := a.Status
		a.Status = target
		if err := s.repo.Update(ctx, a); err != nil {
			return apperr.Persistence("update appeal", err)
		}
		out = a
		return s.audit.Record(ctx, &audit.Entry{
			DenialID:    a.DenialID,
			AppealID:    &a.ID,
			ActionType:  audit.ActionStatusChanged,
			Description: fmt.Sprintf("appeal %s status %s -> %s", a.AppealNumber, from, target),
			PerformedBy: actorID,
		})
	})
	if err != nil {
		return nil, apperr.Persistence("update appeal status", err)
	}
	return out, nil
}

// UpdateNotes edits the free-text notes. It is allowed in every status,
// including after the outcome has been recorded.
func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, in NotesInput, actorID string) (*Appeal, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if in.AdditionalNotes == nil && in.ResponseNotes == nil {
		return nil, apperr.Invalid("", "no notes to update")
	}

	var out *Appeal
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperr.Persistence("lock appeal", err)
		}
		if in.AdditionalNotes != nil {
			a.AdditionalNotes = in.AdditionalNotes
		}
		if in.ResponseNotes != nil {
			a.ResponseNotes = in.ResponseNotes
		}
		if err := s.repo.Update(ctx, a); err != nil {
			return apperr.Persistence("update appeal", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("update appeal notes", err)
	}
	s.logger.Debug().Str("appeal_id", id.String()).Str("actor", actorID).Msg("appeal notes updated")
	return out, nil
}

func (s *Service) GetAppeal(ctx context.Context, id uuid.UUID) (*Appeal, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get appeal", err)
	}
	return a, nil
}

func (s *Service) ListAppealsByDenial(ctx context.Context, denialID uuid.UUID, limit, offset int) ([]*Appeal, int, error) {
	items, total, err := s.repo.ListByDenial(ctx, denialID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list appeals", err)
	}
	return items, total, nil
}

func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]*Template, error) {
	items, err := s.templates.List(ctx, activeOnly)
	if err != nil {
		return nil, apperr.Persistence("list appeal templates", err)
	}
	return items, nil
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get appeal template", err)
	}
	return t, nil
}
