package appointment

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skinsense/telehealth/internal/domain/availability"
	"github.com/skinsense/telehealth/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/cancel", h.Cancel)

	patients := api.Group("", auth.RequireRole(auth.RolePatient))
	patients.POST("/appointments", h.Book)
	patients.POST("/appointments/:id/reschedule", h.Reschedule)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctors.POST("/appointments/:id/approve", h.Approve)
	doctors.POST("/appointments/:id/reject", h.Reject)
	doctors.POST("/appointments/:id/complete", h.Complete)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidView), errors.Is(err, availability.ErrInvalidSlot):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSlotUnavailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

func (h *Handler) Book(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Book(c.Request().Context(), s, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) List(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	list, err := h.svc.List(c.Request().Context(), s, View(c.QueryParam("view")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Get(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), s, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type transitionFunc func(ctx context.Context, s *auth.Session, id uuid.UUID) (*Appointment, error)

func (h *Handler) runTransition(c echo.Context, fn transitionFunc) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := fn(c.Request().Context(), s, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Approve(c echo.Context) error  { return h.runTransition(c, h.svc.Approve) }
func (h *Handler) Reject(c echo.Context) error   { return h.runTransition(c, h.svc.Reject) }
func (h *Handler) Cancel(c echo.Context) error   { return h.runTransition(c, h.svc.Cancel) }
func (h *Handler) Complete(c echo.Context) error { return h.runTransition(c, h.svc.Complete) }

func (h *Handler) Reschedule(c echo.Context) error {
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.runTransition(c, func(ctx context.Context, s *auth.Session, id uuid.UUID) (*Appointment, error) {
		return h.svc.Reschedule(ctx, s, id, req)
	})
}
