//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcm/rcm/internal/domain/appeal"
	"github.com/rcm/rcm/internal/domain/audit"
	"github.com/rcm/rcm/internal/domain/denial"
	"github.com/rcm/rcm/internal/platform/apperr"
)

func usageCount(t *testing.T, s *stack, id uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, s.pool.QueryRow(context.Background(), `SELECT usage_count FROM appeal_template WHERE id = $1`, id).Scan(&n))
	return n
}

func TestAppealLifecycle_WonResolvesDenial(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	d := seedDenial(t, s, denial.CategoryMedicalNecessity, "1250.00", 30)

	res, err := s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{
		ClinicalJustification: strPtr("Conservative therapy failed over twelve weeks."),
	}, "biller-1")
	require.NoError(t, err)
	assert.Regexp(t, appeal.NumberPattern, res.AppealNumber)
	assert.Contains(t, res.SubjectLine, "Medical Necessity")
	assert.Contains(t, res.LetterBody, "Conservative therapy failed over twelve weeks.")
	assert.Contains(t, res.LetterBody, "$1250.00")
	assert.Contains(t, res.RequiredDocuments, "Letter of medical necessity")
	assert.Equal(t, appeal.BaseConfidence, res.AIConfidence)

	a, err := s.appeals.GetAppeal(ctx, res.AppealID)
	require.NoError(t, err)
	assert.Equal(t, appeal.StatusDraft, a.Status)
	assert.False(t, a.AIEnhanced)
	require.NotNil(t, a.TemplateID)
	assert.Equal(t, 1, usageCount(t, s, *a.TemplateID))
	assert.True(t, a.DisputedAmount.Equal(d.DeniedAmount))

	got, err := s.denials.GetDenial(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, denial.StatusAppealing, got.Status)

	_, err = s.appeals.SubmitAppeal(ctx, a.ID, appeal.SubmitInput{Method: appeal.MethodFax, ConfirmationNumber: strPtr("FAX-889")}, "biller-1")
	require.NoError(t, err)

	amount := decimal.RequireFromString("1250.00")
	won, err := s.appeals.RecordOutcome(ctx, a.ID, appeal.OutcomeInput{Outcome: appeal.OutcomeWon, Amount: &amount, Notes: "paid in full"}, "biller-2")
	require.NoError(t, err)
	assert.Equal(t, appeal.StatusWon, won.Status)

	a, err = s.appeals.GetAppeal(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appeal.StatusWon, a.Status)
	require.True(t, a.OutcomeAmount.Valid)
	assert.True(t, a.OutcomeAmount.Decimal.Equal(amount))
	assert.NotNil(t, a.ResponseDate)
	assert.NotNil(t, a.SubmittedAt)

	got, err = s.denials.GetDenial(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, denial.StatusResolved, got.Status)
	require.NotNil(t, got.ResolutionType)
	assert.Equal(t, denial.ResolutionAppealWon, *got.ResolutionType)

	assert.ElementsMatch(t, []audit.ActionType{
		audit.ActionDenialCreated,
		audit.ActionAppealGenerated,
		audit.ActionAppealSubmitted,
		audit.ActionOutcomeRecorded,
	}, auditActions(t, s, d.ID))

	_, err = s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{}, "biller-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestAppealOutcome_DeniedReopensDenial(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	d := seedDenial(t, s, denial.CategoryCodingError, "300.00", 30)

	res, err := s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{}, "biller-1")
	require.NoError(t, err)
	_, err = s.appeals.MarkPendingReview(ctx, res.AppealID, "biller-1")
	require.NoError(t, err)
	_, err = s.appeals.ApproveAppeal(ctx, res.AppealID, "supervisor-1")
	require.NoError(t, err)
	_, err = s.appeals.SubmitAppeal(ctx, res.AppealID, appeal.SubmitInput{Method: appeal.MethodPortal}, "biller-1")
	require.NoError(t, err)
	_, err = s.appeals.MarkInReview(ctx, res.AppealID, "biller-1")
	require.NoError(t, err)

	a, err := s.appeals.RecordOutcome(ctx, res.AppealID, appeal.OutcomeInput{Outcome: appeal.OutcomeDenied, Notes: "upheld"}, "biller-1")
	require.NoError(t, err)
	assert.True(t, a.OutcomeAmount.Decimal.IsZero())

	got, err := s.denials.GetDenial(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, denial.StatusNew, got.Status)

	// A reopened denial can be appealed again.
	second, err := s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{AppealType: appeal.TypeSecondLevel}, "biller-1")
	require.NoError(t, err)
	assert.NotEqual(t, res.AppealNumber, second.AppealNumber)

	items, total, err := s.appeals.ListAppealsByDenial(ctx, d.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)
}

func TestGenerateAppeal_FallsBackWhenNoTemplateIsActive(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, `UPDATE appeal_template SET active = FALSE`)
	require.NoError(t, err)

	d := seedDenial(t, s, denial.CategoryEligibility, "80.00", 30)
	res, err := s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{}, "biller-1")
	require.NoError(t, err)
	assert.Equal(t, appeal.FallbackTemplate().RequiredAttachments, res.RequiredDocuments)
	assert.Contains(t, res.LetterBody, "[PATIENT NAME]")

	a, err := s.appeals.GetAppeal(ctx, res.AppealID)
	require.NoError(t, err)
	assert.Nil(t, a.TemplateID)

	items, err := s.appeals.ListTemplates(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, items)
	items, err = s.appeals.ListTemplates(ctx, false)
	require.NoError(t, err)
	assert.NotEmpty(t, items)
}

func TestGenerateAppeal_ExplicitInactiveTemplateIsNotFound(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	var id uuid.UUID
	require.NoError(t, s.pool.QueryRow(ctx, `UPDATE appeal_template SET active = FALSE
		WHERE denial_category = 'coding_error' RETURNING id`).Scan(&id))

	d := seedDenial(t, s, denial.CategoryCodingError, "80.00", 30)
	_, err := s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{TemplateID: &id}, "biller-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := s.denials.GetDenial(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, denial.StatusNew, got.Status)
}

func TestGenerateAppeal_ConcurrentOnSameDenial(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	d := seedDenial(t, s, denial.CategoryAuthorization, "640.00", 30)

	const workers = 6
	var wg sync.WaitGroup
	numbers := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{}, "biller-1")
			errs[i] = err
			if err == nil {
				numbers[i] = res.AppealNumber
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "duplicate appeal number %s", numbers[i])
		seen[numbers[i]] = true
	}

	_, total, err := s.appeals.ListAppealsByDenial(ctx, d.ID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, workers, total)

	got, err := s.denials.GetDenial(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, denial.StatusAppealing, got.Status)
	assert.Len(t, auditActions(t, s, d.ID), workers+1)
}

func TestRecordOutcome_RollsBackWhenDenialIsClosed(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	d := seedDenial(t, s, denial.CategoryTimelyFiling, "410.00", 30)

	res, err := s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{}, "biller-1")
	require.NoError(t, err)
	_, err = s.appeals.SubmitAppeal(ctx, res.AppealID, appeal.SubmitInput{Method: appeal.MethodMail}, "biller-1")
	require.NoError(t, err)
	_, err = s.denials.TransitionDenial(ctx, d.ID, denial.StatusWrittenOff, nil, "manager-1")
	require.NoError(t, err)

	amount := decimal.RequireFromString("100.00")
	_, err = s.appeals.RecordOutcome(ctx, res.AppealID, appeal.OutcomeInput{Outcome: appeal.OutcomePartial, Amount: &amount}, "biller-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	a, err := s.appeals.GetAppeal(ctx, res.AppealID)
	require.NoError(t, err)
	assert.Equal(t, appeal.StatusSubmitted, a.Status)
	assert.False(t, a.OutcomeAmount.Valid)
	assert.Nil(t, a.ResponseDate)
	assert.NotContains(t, auditActions(t, s, d.ID), audit.ActionOutcomeRecorded)

	over := decimal.RequireFromString("410.01")
	_, err = s.appeals.RecordOutcome(ctx, res.AppealID, appeal.OutcomeInput{Outcome: appeal.OutcomeWon, Amount: &over}, "biller-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAuditTrail_IsAppendOnly(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	d := seedDenial(t, s, denial.CategoryBundling, "75.00", 30)

	_, err := s.pool.Exec(ctx, `UPDATE denial_audit SET description = 'edited' WHERE denial_id = $1`, d.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be modified")

	_, err = s.pool.Exec(ctx, `DELETE FROM denial_audit WHERE denial_id = $1`, d.ID)
	require.Error(t, err)

	entries, total, err := s.audit.ListByDenial(ctx, d.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "biller-1", entries[0].PerformedBy)
}

func TestAppealNumber_IsUnique(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	d := seedDenial(t, s, denial.CategoryDuplicate, "60.00", 30)

	res, err := s.appeals.GenerateAppeal(ctx, d.ID, appeal.GenerateOptions{}, "biller-1")
	require.NoError(t, err)

	exists, err := s.appealsPG.NumberExists(ctx, res.AppealNumber)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.appealsPG.NumberExists(ctx, "APL-20000101-ZZZZZZ")
	require.NoError(t, err)
	assert.False(t, exists)

	a, err := s.appeals.GetAppeal(ctx, res.AppealID)
	require.NoError(t, err)
	dup := *a
	dup.ID = uuid.New()
	assert.Error(t, s.appealsPG.Create(ctx, &dup))
}
