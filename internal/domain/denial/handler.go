package denial

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/rcm/rcm/internal/platform/apperr"
	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/validate"
	"github.com/rcm/rcm/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.POST("/denials", h.CreateDenial)
	g.GET("/denials", h.ListDenials)
	g.POST("/denials/priorities/recompute", h.RecomputePriorities)
	g.GET("/denials/:id", h.GetDenial)
	g.POST("/denials/:id/transition", h.TransitionDenial)
}

type createDenialRequest struct {
	ClaimID            *uuid.UUID      `json:"claim_id"`
	PatientID          *uuid.UUID      `json:"patient_id"`
	BilledAmount       decimal.Decimal `json:"billed_amount"`
	DeniedAmount       decimal.Decimal `json:"denied_amount"`
	ReasonCode         string          `json:"reason_code" validate:"required,max=50"`
	ReasonDescription  *string         `json:"reason_description"`
	ClassifiedCategory string          `json:"classified_category" validate:"omitempty,oneof=medical_necessity coding_error authorization eligibility timely_filing duplicate bundling coordination_of_benefits other"`
	RootCause          *string         `json:"root_cause"`
	PayerName          *string         `json:"payer_name"`
	ProcedureCode      *string         `json:"procedure_code" validate:"omitempty,max=20"`
	DiagnosisCodes     []string        `json:"diagnosis_codes" validate:"omitempty,dive,required,max=20"`
	DenialDate         string          `json:"denial_date" validate:"required,datetime=2006-01-02"`
	ServiceDate        *string         `json:"service_date" validate:"omitempty,datetime=2006-01-02"`
	AppealDeadline     *string         `json:"appeal_deadline" validate:"omitempty,datetime=2006-01-02"`
}

func parseDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil
	}
	return &t
}

func (r createDenialRequest) toDenial() *Denial {
	d := &Denial{
		ClaimID:            r.ClaimID,
		PatientID:          r.PatientID,
		BilledAmount:       r.BilledAmount,
		DeniedAmount:       r.DeniedAmount,
		ReasonCode:         r.ReasonCode,
		ReasonDescription:  r.ReasonDescription,
		ClassifiedCategory: Category(r.ClassifiedCategory),
		RootCause:          r.RootCause,
		PayerName:          r.PayerName,
		ProcedureCode:      r.ProcedureCode,
		DiagnosisCodes:     r.DiagnosisCodes,
		ServiceDate:        parseDate(r.ServiceDate),
		AppealDeadline:     parseDate(r.AppealDeadline),
	}
	if t := parseDate(&r.DenialDate); t != nil {
		d.DenialDate = *t
	}
	return d
}

// denialResponse adds the computed days_until_deadline and the statuses a
// client may move the denial to.
type denialResponse struct {
	*Denial
	DaysUntilDeadline  *int     `json:"days_until_deadline"`
	AllowedTransitions []Status `json:"allowed_transitions"`
}

func (h *Handler) respond(d *Denial) denialResponse {
	allowed := AllowedTransitions(d.Status)
	if allowed == nil {
		allowed = []Status{}
	}
	return denialResponse{
		Denial:             d,
		DaysUntilDeadline:  d.DaysUntilDeadline(h.svc.Today()),
		AllowedTransitions: allowed,
	}
}

func (h *Handler) CreateDenial(c echo.Context) error {
	var req createDenialRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	d := req.toDenial()
	actor := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.CreateDenial(c.Request().Context(), d, actor); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, h.respond(d))
}

func (h *Handler) GetDenial(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDenial(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, h.respond(d))
}

func (h *Handler) ListDenials(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDenials(c.Request().Context(), ListFilter{
		Status:   Status(c.QueryParam("status")),
		Category: Category(c.QueryParam("category")),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	out := make([]denialResponse, 0, len(items))
	for _, d := range items {
		out = append(out, h.respond(d))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg))
}

type transitionRequest struct {
	TargetStatus   string  `json:"target_status" validate:"required,oneof=new reviewing appealing correcting resubmitting resolved written_off"`
	ResolutionType *string `json:"resolution_type" validate:"omitempty,max=50"`
}

func (h *Handler) TransitionDenial(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	d, err := h.svc.TransitionDenial(c.Request().Context(), id, Status(req.TargetStatus), req.ResolutionType, actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, h.respond(d))
}

func (h *Handler) RecomputePriorities(c echo.Context) error {
	n, err := h.svc.RecomputePriorities(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}
