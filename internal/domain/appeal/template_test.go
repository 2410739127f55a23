package appeal

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcm/rcm/internal/domain/denial"
	"github.com/rcm/rcm/internal/platform/apperr"
)

func catPtr(c denial.Category) *denial.Category { return &c }

func TestResolve_CategoryBeatsGlobalDefault(t *testing.T) {
	store := newMemStore()
	store.addTemplate(Template{Name: "global", IsDefault: true, Active: true})
	want := store.addTemplate(Template{Name: "coding", DenialCategory: catPtr(denial.CategoryCodingError), Active: true})

	got, src, err := NewTemplateResolver(templateRepo{store}).Resolve(context.Background(), denial.CategoryCodingError, nil)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, SourceCategory, src)
}

func TestResolve_CategoryDefaultFirst(t *testing.T) {
	store := newMemStore()
	store.addTemplate(Template{Name: "older", DenialCategory: catPtr(denial.CategoryBundling), Active: true})
	want := store.addTemplate(Template{Name: "preferred", DenialCategory: catPtr(denial.CategoryBundling), IsDefault: true, Active: true})
	store.addTemplate(Template{Name: "inactive default", DenialCategory: catPtr(denial.CategoryBundling), IsDefault: true})

	got, _, err := NewTemplateResolver(templateRepo{store}).Resolve(context.Background(), denial.CategoryBundling, nil)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
}

func TestResolve_GlobalDefault(t *testing.T) {
	store := newMemStore()
	want := store.addTemplate(Template{Name: "global", IsDefault: true, Active: true})
	store.addTemplate(Template{Name: "auth", DenialCategory: catPtr(denial.CategoryAuthorization), Active: true})

	got, src, err := NewTemplateResolver(templateRepo{store}).Resolve(context.Background(), denial.CategoryEligibility, nil)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, SourceDefault, src)
}

func TestResolve_FallbackWhenNothingConfigured(t *testing.T) {
	got, src, err := NewTemplateResolver(templateRepo{newMemStore()}).Resolve(context.Background(), denial.CategoryOther, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, src)
	assert.Equal(t, uuid.Nil, got.ID)
	assert.Contains(t, got.BodyTemplate, "{{patient_name}}")
	assert.NotContains(t, got.SubjectTemplate, "\n")
}

func TestResolve_Explicit(t *testing.T) {
	store := newMemStore()
	active := store.addTemplate(Template{Name: "chosen", Active: true})
	inactive := store.addTemplate(Template{Name: "retired"})
	r := NewTemplateResolver(templateRepo{store})
	ctx := context.Background()

	got, src, err := r.Resolve(ctx, denial.CategoryOther, &active.ID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
	assert.Equal(t, SourceExplicit, src)

	_, _, err = r.Resolve(ctx, denial.CategoryOther, &inactive.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	missing := uuid.New()
	_, _, err = r.Resolve(ctx, denial.CategoryOther, &missing)
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "appeal_template", nf.Entity)
	assert.Equal(t, missing.String(), nf.ID)
}

func TestResolve_StorageFailure(t *testing.T) {
	store := newMemStore()
	store.templateErr = errBoom

	_, _, err := NewTemplateResolver(templateRepo{store}).Resolve(context.Background(), denial.CategoryOther, nil)
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.ErrorIs(t, err, errBoom)
}
