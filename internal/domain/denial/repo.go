package denial

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Denial) error
	GetByID(ctx context.Context, id uuid.UUID) (*Denial, error)
	// GetForUpdate reads the denial and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Denial, error)
	GetContext(ctx context.Context, id uuid.UUID) (*Context, error)
	UpdateStatus(ctx context.Context, d *Denial) error
	UpdatePriority(ctx context.Context, id uuid.UUID, p Priority) error
	List(ctx context.Context, f ListFilter) ([]*Denial, int, error)
	ListOpen(ctx context.Context) ([]*Denial, error)
}
