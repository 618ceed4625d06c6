package blobstore

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler serves stored objects back to clients.
type Handler struct {
	store BlobStore
}

func NewHandler(store BlobStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/blobs/*", h.Download)
}

func (h *Handler) Download(c echo.Context) error {
	key := c.Param("*")
	if err := ValidateKey(key); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rc, obj, err := h.store.Get(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	defer rc.Close()

	if obj.Size > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(obj.Size, 10))
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=300")
	ct := obj.ContentType
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, ct, rc)
}
