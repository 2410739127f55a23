package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/platform/apperr"
)

type Service struct {
	repo   Repository
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, now: time.Now, logger: logger}
}

// SetClock overrides the time source used for entry timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Record appends e after assigning its id and timestamp. It joins whatever
// transaction ctx carries, so the entry commits or rolls back with the
// change it describes.
func (s *Service) Record(ctx context.Context, e *Entry) error {
	if e.DenialID == uuid.Nil {
		return apperr.Invalid("denial_id", "is required")
	}
	if !validActionTypes[e.ActionType] {
		return apperr.Invalid("action_type", fmt.Sprintf("unknown action %q", e.ActionType))
	}
	if e.PerformedBy == "" {
		return apperr.Invalid("performed_by", "is required")
	}
	e.ID = uuid.New()
	e.Timestamp = s.now().UTC()
	if err := s.repo.Append(ctx, e); err != nil {
		return apperr.Persistence("append audit entry", err)
	}
	s.logger.Debug().
		Str("denial_id", e.DenialID.String()).
		Str("action", string(e.ActionType)).
		Str("actor", e.PerformedBy).
		Msg("audit entry recorded")
	return nil
}

// ListByDenial returns the trail of a denial, newest first.
func (s *Service) ListByDenial(ctx context.Context, denialID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	items, total, err := s.repo.ListByDenial(ctx, denialID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list audit entries", err)
	}
	return items, total, nil
}
