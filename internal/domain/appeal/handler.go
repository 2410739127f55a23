package appeal

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/rcm/rcm/internal/platform/apperr"
	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/validate"
	"github.com/rcm/rcm/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.POST("/denials/:id/appeals", h.GenerateAppeal)
	g.GET("/denials/:id/appeals", h.ListAppeals)

	g.GET("/appeals/:id", h.GetAppeal)
	g.POST("/appeals/:id/submit", h.SubmitAppeal)
	g.POST("/appeals/:id/outcome", h.RecordOutcome)
	g.POST("/appeals/:id/review", h.MarkPendingReview)
	g.POST("/appeals/:id/approve", h.ApproveAppeal)
	g.POST("/appeals/:id/in-review", h.MarkInReview)
	g.PUT("/appeals/:id/notes", h.UpdateNotes)

	g.GET("/appeal-templates", h.ListTemplates)
	g.GET("/appeal-templates/:id", h.GetTemplate)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type generateRequest struct {
	TemplateID            *uuid.UUID    `json:"template_id"`
	AppealType            string        `json:"appeal_type" validate:"omitempty,oneof=first_level second_level third_level external_review"`
	ClinicalJustification *string       `json:"clinical_justification" validate:"omitempty,max=10000"`
	AdditionalNotes       *string       `json:"additional_notes" validate:"omitempty,max=10000"`
	PracticeInfo          *PracticeInfo `json:"practice_info"`
	ProviderInfo          *ProviderInfo `json:"provider_info"`
}

func (r generateRequest) toOptions() GenerateOptions {
	opts := GenerateOptions{
		TemplateID:            r.TemplateID,
		AppealType:            AppealType(r.AppealType),
		ClinicalJustification: r.ClinicalJustification,
		AdditionalNotes:       r.AdditionalNotes,
	}
	if r.PracticeInfo != nil {
		opts.PracticeInfo = *r.PracticeInfo
	}
	if r.ProviderInfo != nil {
		opts.ProviderInfo = *r.ProviderInfo
	}
	return opts
}

func (h *Handler) GenerateAppeal(c echo.Context) error {
	denialID, err := pathID(c)
	if err != nil {
		return err
	}
	var req generateRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	res, err := h.svc.GenerateAppeal(c.Request().Context(), denialID, req.toOptions(), actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListAppeals(c echo.Context) error {
	denialID, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppealsByDenial(c.Request().Context(), denialID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetAppeal(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppeal(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type submitRequest struct {
	SubmissionMethod   string  `json:"submission_method" validate:"required,oneof=mail fax portal email electronic"`
	ConfirmationNumber *string `json:"confirmation_number" validate:"omitempty,max=100"`
}

func (h *Handler) SubmitAppeal(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req submitRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.SubmitAppeal(c.Request().Context(), id, SubmitInput{
		Method:             SubmissionMethod(req.SubmissionMethod),
		ConfirmationNumber: req.ConfirmationNumber,
	}, actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type outcomeRequest struct {
	Outcome string           `json:"outcome" validate:"required,oneof=won partial denied"`
	Amount  *decimal.Decimal `json:"amount"`
	Notes   string           `json:"notes" validate:"max=10000"`
}

func (h *Handler) RecordOutcome(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req outcomeRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.RecordOutcome(c.Request().Context(), id, OutcomeInput{
		Outcome: Outcome(req.Outcome),
		Amount:  req.Amount,
		Notes:   req.Notes,
	}, actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) MarkPendingReview(c echo.Context) error {
	return h.step(c, h.svc.MarkPendingReview)
}

func (h *Handler) ApproveAppeal(c echo.Context) error {
	return h.step(c, h.svc.ApproveAppeal)
}

func (h *Handler) MarkInReview(c echo.Context) error {
	return h.step(c, h.svc.MarkInReview)
}

func (h *Handler) step(c echo.Context, fn func(ctx context.Context, id uuid.UUID, actorID string) (*Appeal, error)) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	a, err := fn(c.Request().Context(), id, actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

type notesRequest struct {
	AdditionalNotes *string `json:"additional_notes" validate:"omitempty,max=10000"`
	ResponseNotes   *string `json:"response_notes" validate:"omitempty,max=10000"`
}

func (h *Handler) UpdateNotes(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.UpdateNotes(c.Request().Context(), id, NotesInput{
		AdditionalNotes: req.AdditionalNotes,
		ResponseNotes:   req.ResponseNotes,
	}, actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	activeOnly := c.QueryParam("include_inactive") != "true"
	items, err := h.svc.ListTemplates(c.Request().Context(), activeOnly)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Template{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}
