package appeal

import (
	"context"

	"github.com/google/uuid"

	"github.com/rcm/rcm/internal/domain/denial"
)

type Repository interface {
	Create(ctx context.Context, a *Appeal) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appeal, error)
	// GetForUpdate reads the appeal and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appeal, error)
	// Update writes the workflow, submission, outcome and note fields.
	Update(ctx context.Context, a *Appeal) error
	ListByDenial(ctx context.Context, denialID uuid.UUID, limit, offset int) ([]*Appeal, int, error)
	NumberExists(ctx context.Context, number string) (bool, error)
}

type TemplateRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	// FindActiveByCategory returns active templates for the category, default
	// templates first.
	FindActiveByCategory(ctx context.Context, category denial.Category) ([]*Template, error)
	// FindGlobalDefault returns the active default template that has no
	// category, or a NotFound error.
	FindGlobalDefault(ctx context.Context) (*Template, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, activeOnly bool) ([]*Template, error)
}
