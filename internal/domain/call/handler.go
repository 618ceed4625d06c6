package call

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
	api.POST("/calls/:peerId", h.Start)
	api.POST("/calls/sessions/:id/join", h.Join)
	api.POST("/calls/sessions/:id/leave", h.Leave)
	api.PUT("/calls/sessions/:id/media", h.SetMedia)
	api.DELETE("/calls/sessions/:id", h.Release)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPeerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTokenUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, ErrTokenUnavailable.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) Start(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	peer, err := uuidParam(c, "peerId")
	if err != nil {
		return err
	}
	sess, err := h.svc.Start(c.Request().Context(), s, peer)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// runStep handles the session lifecycle endpoints that only take an id.
func (h *Handler) runStep(c echo.Context, fn func(*auth.Session, uuid.UUID) (*Session, error)) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	sess, err := fn(s, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Join(c echo.Context) error {
	return h.runStep(c, func(s *auth.Session, id uuid.UUID) (*Session, error) {
		return h.svc.Join(c.Request().Context(), s, id)
	})
}

func (h *Handler) Leave(c echo.Context) error {
	return h.runStep(c, func(s *auth.Session, id uuid.UUID) (*Session, error) {
		return h.svc.Leave(c.Request().Context(), s, id)
	})
}

func (h *Handler) SetMedia(c echo.Context) error {
	var req MediaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.runStep(c, func(s *auth.Session, id uuid.UUID) (*Session, error) {
		return h.svc.SetMedia(c.Request().Context(), s, id, req)
	})
}

func (h *Handler) Release(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Release(c.Request().Context(), s, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
