package availability

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skinsense/telehealth/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors/:id/availability/:date", h.Get)
	api.GET("/doctors/:id/availability/:date/slots", h.SlotStates)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctors.PUT("/availability/:date", h.Set)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidDateKey), errors.Is(err, ErrInvalidSlot):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

func (h *Handler) Get(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	day, err := h.svc.Get(c.Request().Context(), doctorID, c.Param("date"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, day)
}

func (h *Handler) SlotStates(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	states, err := h.svc.SlotStates(c.Request().Context(), doctorID, c.Param("date"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, states)
}

func (h *Handler) Set(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	var req SetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	day, err := h.svc.Set(c.Request().Context(), s, c.Param("date"), req.Slots)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, day)
}
