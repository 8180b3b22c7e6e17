package dispensing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
	"github.com/clinichq/clinic/internal/platform/auth"
	"github.com/clinichq/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dispensing")
	g.POST("", h.RecordSet)
	g.GET("", h.ListHistory)
	g.GET("/:id", h.GetRecord)
	g.DELETE("/:id", h.DeleteRecord, scope.RequirePermission(scope.PermWriteOffDrugs))
	g.POST("/deduplicate", h.Deduplicate, auth.RequireRole("admin"))
	g.GET("/diagnosis/:diagnosisID", h.ListByDiagnosis)

	a := api.Group("/usage-audit")
	a.GET("", h.ListAudit)
	a.DELETE("", h.ClearAudit, auth.RequireRole("admin"))
}

type recordSetRequest struct {
	DiagnosisID *uuid.UUID `json:"diagnosis_id,omitempty"`
	Lines       []Line     `json:"lines"`
	Snapshot    Snapshot   `json:"snapshot"`
}

func (h *Handler) RecordSet(c echo.Context) error {
	var req recordSetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	outcome, err := h.svc.RecordSet(c.Request().Context(), req.DiagnosisID, req.Lines, req.Snapshot)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	status := http.StatusCreated
	if len(outcome.FailedLines) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, outcome)
}

func (h *Handler) ListHistory(c echo.Context) error {
	p := pagination.FromContext(c)
	records, total, err := h.svc.ListHistory(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p.Limit, p.Offset))
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id, c.QueryParam("reason")); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByDiagnosis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("diagnosisID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid diagnosis id")
	}
	records, err := h.svc.ListByDiagnosis(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) Deduplicate(c echo.Context) error {
	removed, err := h.svc.Deduplicate(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) ListAudit(c echo.Context) error {
	p := pagination.FromContext(c)
	entries, total, err := h.svc.ListAudit(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, p.Limit, p.Offset))
}

func (h *Handler) ClearAudit(c echo.Context) error {
	if err := h.svc.ClearAudit(c.Request().Context()); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
