package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository is append-only.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByDenial(ctx context.Context, denialID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
