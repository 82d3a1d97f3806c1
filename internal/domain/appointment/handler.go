package appointment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dsuarezmarra/clinic-sub001/internal/domain/credit"
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
	g := api.Group("", auth.RequireRole("admin", "therapist", "reception"))
	g.GET("/appointments", h.ListByRange)
	g.GET("/appointments/:id", h.Get)
	g.POST("/appointments", h.Book)
	g.PUT("/appointments/:id", h.Update)
	g.PUT("/appointments/:id/status", h.SetStatus)
	g.PUT("/appointments/:id/paid", h.SetPaid)
	g.DELETE("/appointments/:id", h.Delete)
	g.GET("/patients/:patientId/appointments", h.ListByPatient)
	g.GET("/patients/:patientId/appointments/proposed-duration", h.ProposedDuration)
}

func serviceError(err error) error {
	var insufficient *credit.InsufficientCreditError
	switch {
	case errors.Is(err, ErrOverlap):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &insufficient):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) Book(c echo.Context) error {
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Book(c.Request().Context(), in)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListByRange(c echo.Context) error {
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or missing from")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or missing to")
	}
	items, err := h.svc.ListByRange(c.Request().Context(), from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type paidRequest struct {
	Paid bool `json:"paid"`
}

func (h *Handler) SetPaid(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req paidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.SetPaid(c.Request().Context(), id, req.Paid)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ProposedDuration(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	minutes := h.svc.ProposedDuration(c.Request().Context(), patientID)
	return c.JSON(http.StatusOK, map[string]int{"durationMinutes": minutes})
}
