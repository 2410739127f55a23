package appeal

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/rcm/rcm/internal/domain/denial"
	"github.com/rcm/rcm/internal/platform/apperr"
)

//go:embed templates/fallback_subject.txt
var fallbackSubject string

//go:embed templates/fallback_body.txt
var fallbackBody string

// Source records which resolution step produced a template.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceCategory Source = "category"
	SourceDefault  Source = "default"
	SourceFallback Source = "fallback"
)

// FallbackTemplate returns the built-in skeleton used when no stored template
// applies. Its ID is uuid.Nil.
func FallbackTemplate() *Template {
	return &Template{
		Name:                "Built-in appeal letter",
		SubjectTemplate:     strings.TrimSpace(fallbackSubject),
		BodyTemplate:        fallbackBody,
		Active:              true,
		RequiredAttachments: []string{"Copy of original claim", "Explanation of benefits / denial notice"},
		OptionalAttachments: []string{"Medical records", "Letter of medical necessity"},
	}
}

type TemplateResolver struct {
	repo TemplateRepository
}

func NewTemplateResolver(repo TemplateRepository) *TemplateResolver {
	return &TemplateResolver{repo: repo}
}

// Resolve picks the template for a denial: the explicit id when given (it
// must exist and be active), else the first active template of the category
// with defaults first, else the global default, else the built-in fallback.
// Only an invalid explicit id or a storage failure produces an error.
func (r *TemplateResolver) Resolve(ctx context.Context, category denial.Category, templateID *uuid.UUID) (*Template, Source, error) {
	if templateID != nil {
		t, err := r.repo.GetByID(ctx, *templateID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, "", apperr.NotFound("appeal_template", templateID.String())
			}
			return nil, "", apperr.Persistence("get appeal template", err)
		}
		if !t.Active {
			return nil, "", apperr.NotFound("appeal_template", templateID.String())
		}
		return t, SourceExplicit, nil
	}

	matches, err := r.repo.FindActiveByCategory(ctx, category)
	if err != nil {
		return nil, "", apperr.Persistence("find appeal templates by category", err)
	}
	if len(matches) > 0 {
		return matches[0], SourceCategory, nil
	}

	def, err := r.repo.FindGlobalDefault(ctx)
	switch {
	case err == nil:
		return def, SourceDefault, nil
	case errors.Is(err, apperr.ErrNotFound):
		return FallbackTemplate(), SourceFallback, nil
	default:
		return nil, "", apperr.Persistence("find default appeal template", err)
	}
}
