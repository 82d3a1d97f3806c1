package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dsuarezmarra/clinic-sub001/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "therapist", "reception"))
	readGroup.GET("/settings", h.List)
	readGroup.GET("/settings/prices", h.GetPrices)
	readGroup.GET("/settings/:key", h.Get)

	writeGroup := api.Group("", auth.RequireRole("admin"))
	writeGroup.PUT("/settings/:key", h.Set)
	writeGroup.DELETE("/settings/:key", h.Delete)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	s, err := h.svc.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "setting not found")
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetPrices(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Prices(c.Request().Context()))
}

type setRequest struct {
	Value string `json:"value"`
}

func (h *Handler) Set(c echo.Context) error {
	var req setRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	key := c.Param("key")
	if err := h.svc.Set(c.Request().Context(), key, req.Value); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.Get(c.Request().Context(), key)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("key")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
