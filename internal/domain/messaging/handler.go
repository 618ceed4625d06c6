package messaging

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skinsense/telehealth/internal/platform/auth"
	"github.com/skinsense/telehealth/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/chats", h.Threads)
	api.GET("/chats/:peerId/messages", h.Messages)
	api.POST("/chats/:peerId/messages", h.SendText)
	api.POST("/chats/:peerId/images", h.SendImages)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, blobstore.ErrNotImage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRecipientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrUploadFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

func peerParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("peerId"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid peer id")
	}
	return id, nil
}

func (h *Handler) Threads(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	threads, err := h.svc.Threads(c.Request().Context(), s)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, threads)
}

func (h *Handler) Messages(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	peer, err := peerParam(c)
	if err != nil {
		return err
	}
	msgs, err := h.svc.Messages(c.Request().Context(), s, peer)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *Handler) SendText(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	peer, err := peerParam(c)
	if err != nil {
		return err
	}
	var req SendTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.SendText(c.Request().Context(), s, peer, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

// SendImages takes a multipart form with up to five "images" parts and an
// optional createdAt (epoch millis).
func (h *Handler) SendImages(c echo.Context) error {
	s, err := auth.CurrentSession(c)
	if err != nil {
		return err
	}
	peer, err := peerParam(c)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form expected")
	}
	headers := form.File["images"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"images\" is required")
	}
	if len(headers) > MaxImagesPerSend {
		return httpError(ErrInvalidInput)
	}

	var createdAt int64
	if v := c.FormValue("createdAt"); v != "" {
		if createdAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "createdAt must be epoch milliseconds")
		}
	}

	files := make([]Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()
		files = append(files, Upload{Filename: fh.Filename, Content: f})
	}

	res, err := h.svc.SendImages(c.Request().Context(), s, peer, files, createdAt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}
