package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skinsense/telehealth/internal/platform/auth"
	"github.com/skinsense/telehealth/internal/platform/blobstore"
	"github.com/skinsense/telehealth/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts sign-up and sign-in on public and everything else on
// the authenticated api group.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.POST("/auth/signup", h.SignUp)
	public.POST("/auth/signin", h.SignIn)

	api.POST("/auth/signout", h.SignOut)
	api.GET("/auth/me", h.Me)
	api.GET("/users/:id", h.GetProfile)
	api.PUT("/users/me", h.UpdateProfile)
	api.POST("/users/me/image", h.UploadProfileImage)
	api.GET("/doctors", h.ListDoctors)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, blobstore.ErrNotImage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

func (h *Handler) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.SignUp(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) SignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.SignIn(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) SignOut(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	if err := h.svc.SignOut(c.Request().Context(), s); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Me(c.Request().Context(), s)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":    u,
		"session": s,
	})
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetProfile(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	var upd ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), s, upd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UploadProfileImage(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"image\" is required")
	}
	if fh.Size > blobstore.MaxImageSize {
		return httpError(blobstore.ErrFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	u, err := h.svc.UploadProfileImage(c.Request().Context(), s, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if doctors == nil {
		doctors = []*User{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, pg))
}
