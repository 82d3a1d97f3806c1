package credit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dsuarezmarra/clinic-sub001/internal/platform/auth"
	"github.com/dsuarezmarra/clinic-sub001/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "therapist", "reception"))
	readGroup.GET("/patients/:patientId/packs", h.ListPacks)
	readGroup.GET("/patients/:patientId/packs/active", h.ListActivePacks)
	readGroup.GET("/patients/:patientId/credits/summary", h.Summary)
	readGroup.GET("/patients/:patientId/credits/history", h.History)
	readGroup.POST("/credits/summary/batch", h.BatchSummary)
	readGroup.GET("/packs/:id", h.GetPack)

	writeGroup := api.Group("", auth.RequireRole("admin", "reception"))
	writeGroup.POST("/packs", h.CreatePacks)
	writeGroup.PUT("/packs/:id/payment", h.SetPaymentStatus)
	writeGroup.PUT("/packs/:id/units", h.SetUnitsRemaining)
	writeGroup.DELETE("/packs/:id", h.DeletePack)

	api.GET("/integrity/redemptions", h.IntegritySweep, auth.RequireRole("admin"))
}

func (h *Handler) CreatePacks(c echo.Context) error {
	var in CreatePackInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	packs, err := h.svc.CreatePacks(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, packs)
}

func (h *Handler) GetPack(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPack(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "pack not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPacks(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	packs, err := h.svc.ListPacks(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, packs)
}

func (h *Handler) ListActivePacks(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	packs, err := h.svc.ListActivePacks(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, packs)
}

type paymentRequest struct {
	Paid bool `json:"paid"`
}

func (h *Handler) SetPaymentStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.SetPaymentStatus(c.Request().Context(), id, req.Paid)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "pack not found")
	}
	return c.JSON(http.StatusOK, p)
}

type unitsRequest struct {
	UnitsRemaining int `json:"unitsRemaining"`
}

func (h *Handler) SetUnitsRemaining(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req unitsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.SetUnitsRemaining(c.Request().Context(), id, req.UnitsRemaining)
	if err != nil {
		if _, ok := err.(*OutOfRangeError); ok {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusNotFound, "pack not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePack(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePack(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Summary(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	sum, err := h.svc.Summary(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

type batchSummaryRequest struct {
	PatientIDs []uuid.UUID `json:"patientIds"`
}

func (h *Handler) BatchSummary(c echo.Context) error {
	var req batchSummaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.PatientIDs) == 0 {
		return c.JSON(http.StatusOK, []*BatchSummaryEntry{})
	}
	entries, err := h.svc.BatchSummary(c.Request().Context(), req.PatientIDs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), patientID, pg.Limit, pg.Offset())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) IntegritySweep(c echo.Context) error {
	orphans, err := h.svc.IntegritySweep(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if orphans == nil {
		orphans = []*OrphanedRedemption{}
	}
	return c.JSON(http.StatusOK, orphans)
}
