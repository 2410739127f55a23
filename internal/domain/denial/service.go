package denial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/domain/audit"
	"github.com/rcm/rcm/internal/platform/apperr"
	"github.com/rcm/rcm/internal/platform/db"
)

// AuditRecorder appends audit entries inside the caller's transaction.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

type Service struct {
	repo       Repository
	audit      AuditRecorder
	tx         db.Transactor
	windowDays int
	now        func() time.Time
	logger     zerolog.Logger
}

// NewService builds the denial service. windowDays is the appeal window used
// to derive appeal_deadline when the payer did not state one.
func NewService(repo Repository, rec AuditRecorder, tx db.Transactor, windowDays int, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		audit:      rec,
		tx:         tx,
		windowDays: windowDays,
		now:        time.Now,
		logger:     logger,
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

func (s *Service) CreateDenial(ctx context.Context, d *Denial, actorID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	if d.ReasonCode == "" {
		return apperr.Invalid("reason_code", "is required")
	}
	if d.BilledAmount.IsNegative() {
		return apperr.Invalid("billed_amount", "must be non-negative")
	}
	if d.DeniedAmount.IsNegative() {
		return apperr.Invalid("denied_amount", "must be non-negative")
	}
	if d.DenialDate.IsZero() {
		return apperr.Invalid("denial_date", "is required")
	}
	if d.ClassifiedCategory == "" {
		d.ClassifiedCategory = CategoryOther
	}
	if !d.ClassifiedCategory.Valid() {
		return apperr.Invalid("classified_category", fmt.Sprintf("unknown category %q", d.ClassifiedCategory))
	}
	if d.AppealDeadline != nil && d.AppealDeadline.Before(d.DenialDate) {
		return apperr.Invalid("appeal_deadline", "must not precede denial_date")
	}
	if d.DeniedAmount.GreaterThan(d.BilledAmount) {
		s.logger.Warn().
			Str("reason_code", d.ReasonCode).
			Str("billed_amount", d.BilledAmount.String()).
			Str("denied_amount", d.DeniedAmount.String()).
			Msg("denied amount exceeds billed amount")
	}

	if d.AppealDeadline == nil {
		deadline := d.DenialDate.AddDate(0, 0, s.windowDays)
		d.AppealDeadline = &deadline
	}
	if d.DiagnosisCodes == nil {
		d.DiagnosisCodes = []string{}
	}
	d.ID = uuid.New()
	d.Status = StatusNew
	d.Priority = ComputePriority(d.DaysUntilDeadline(s.now()))
	d.ResolutionType = nil
	d.ResolvedAt = nil
	d.CreatedBy = actorID

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, d); err != nil {
			return apperr.Persistence("insert denial", err)
		}
		return s.audit.Record(ctx, &audit.Entry{
			DenialID:    d.ID,
			ActionType:  audit.ActionDenialCreated,
			Description: fmt.Sprintf("denial %s created (%s, %s)", d.ReasonCode, d.ClassifiedCategory, d.DeniedAmount.StringFixed(2)),
			PerformedBy: actorID,
		})
	})
	return apperr.Persistence("create denial", err)
}

// derivePriority buckets an open denial against today's date so reads never
// surface a stale stored priority. Closed denials keep the bucket they were
// closed with.
func (s *Service) derivePriority(d *Denial) {
	if d == nil || d.Status.IsTerminal() {
		return
	}
	d.Priority = ComputePriority(d.DaysUntilDeadline(s.now()))
}

func (s *Service) GetDenial(ctx context.Context, id uuid.UUID) (*Denial, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get denial", err)
	}
	s.derivePriority(d)
	return d, nil
}

// GetDenialContext loads the denial joined with its claim and patient.
func (s *Service) GetDenialContext(ctx context.Context, id uuid.UUID) (*Context, error) {
	dc, err := s.repo.GetContext(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get denial context", err)
	}
	s.derivePriority(dc.Denial)
	return dc, nil
}

func (s *Service) ListDenials(ctx context.Context, f ListFilter) ([]*Denial, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, 0, apperr.Invalid("category", fmt.Sprintf("unknown category %q", f.Category))
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, apperr.Persistence("list denials", err)
	}
	for _, d := range items {
		s.derivePriority(d)
	}
	SortByUrgency(items, s.now())
	return items, total, nil
}

// TransitionDenial moves a denial along the lifecycle table. Repeating the
// current non-terminal status is a no-op and is not audited.
func (s *Service) TransitionDenial(ctx context.Context, id uuid.UUID, target Status, resolutionType *string, actorID string) (*Denial, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	var out *Denial
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperr.Persistence("lock denial", err)
		}
		changed, err := checkTransition(d.Status, target)
		if err != nil {
			return err
		}
		s.derivePriority(d)
		out = d
		if !changed {
			return nil
		}

		from := d.Status
		d.Status = target
		switch target {
		case StatusResolved:
			rt := ResolutionManual
			if resolutionType != nil && *resolutionType != "" {
				rt = *resolutionType
			}
			d.ResolutionType = &rt
		case StatusWrittenOff:
			rt := ResolutionWrittenOff
			d.ResolutionType = &rt
		}
		if target.IsTerminal() {
			now := s.now().UTC()
			d.ResolvedAt = &now
		}
		if err := s.repo.UpdateStatus(ctx, d); err != nil {
			return apperr.Persistence("update denial status", err)
		}
		s.logger.Debug().Str("denial_id", id.String()).Str("from", string(from)).Str("to", string(target)).Msg("denial transitioned")

		return s.audit.Record(ctx, &audit.Entry{
			DenialID:    d.ID,
			ActionType:  audit.ActionStatusChanged,
			Description: fmt.Sprintf("denial status %s -> %s", from, target),
			PerformedBy: actorID,
		})
	})
	if err != nil {
		return nil, apperr.Persistence("transition denial", err)
	}
	return out, nil
}

// SyncWithAppeal applies an appeal event to the parent denial under a row
// lock. It joins the caller's transaction; the caller records the audit
// entry describing the appeal change.
func (s *Service) SyncWithAppeal(ctx context.Context, id uuid.UUID, ev AppealEvent) (from, to Status, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return apperr.Persistence("lock denial", err)
		}
		from = d.Status
		next, resolution, err := ApplyAppealEvent(d.Status, ev)
		if err != nil {
			return err
		}
		to = next
		if from == to {
			return nil
		}

		d.Status = to
		if resolution != nil {
			d.ResolutionType = resolution
		}
		if to.IsTerminal() {
			now := s.now().UTC()
			d.ResolvedAt = &now
		}
		if err := s.repo.UpdateStatus(ctx, d); err != nil {
			return apperr.Persistence("update denial status", err)
		}
		s.logger.Debug().Str("denial_id", id.String()).Str("event", string(ev)).
			Str("from", string(from)).Str("to", string(to)).Msg("denial synced with appeal")
		return nil
	})
	return from, to, apperr.Persistence("sync denial with appeal", err)
}

// RecomputePriorities re-derives the priority of every open denial from its
// deadline and persists those whose bucket changed. It returns the number
// updated.
func (s *Service) RecomputePriorities(ctx context.Context) (int, error) {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return 0, apperr.Persistence("list open denials", err)
	}
	today := s.now()
	updated := 0
	for _, d := range open {
		p := ComputePriority(d.DaysUntilDeadline(today))
		if p == d.Priority {
			continue
		}
		if err := s.repo.UpdatePriority(ctx, d.ID, p); err != nil {
			return updated, apperr.Persistence("update denial priority", err)
		}
		updated++
	}
	s.logger.Info().Int("open", len(open)).Int("updated", updated).Msg("denial priorities recomputed")
	return updated, nil
}

// Today returns the service clock's current time.
func (s *Service) Today() time.Time {
	return s.now()
}
