package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"github.com/memohai/shopchat/internal/media"
)

// MaxFilesPerUpload bounds the number of files in one upload request.
const MaxFilesPerUpload = media.MaxDrafts

// UploadHandler ingests images and serves them back by storage key.
type UploadHandler struct {
	store     *media.Store
	maxBytes  int64
	publicURL string
	logger    *slog.Logger
}

type uploadResponse struct {
	URLs []string `json:"urls"`
}

// NewUploadHandler creates an UploadHandler. publicURL prefixes the returned
// URLs; when empty, the request's own scheme and host are used.
func NewUploadHandler(log *slog.Logger, store *media.Store, maxBytes int64, publicURL string) *UploadHandler {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = media.MaxAssetBytes
	}
	return &UploadHandler{
		store:     store,
		maxBytes:  maxBytes,
		publicURL: strings.TrimRight(strings.TrimSpace(publicURL), "/"),
		logger:    log.With(slog.String("handler", "upload")),
	}
}

func (h *UploadHandler) Register(e *echo.Echo) {
	e.POST("/uploads", h.Upload)
	e.GET("/media/*", h.Serve)
}

// Upload stores every file of the multipart field "files" and returns
// their URLs in submission order.
func (h *UploadHandler) Upload(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	if h.store == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "media store not configured")
	}
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "files is required")
	}
	if len(files) > MaxFilesPerUpload {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("at most %d files per upload", MaxFilesPerUpload))
	}

	ctx := c.Request().Context()
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		asset, err := h.store.Ingest(ctx, userID, f, h.maxBytes)
		_ = f.Close()
		if err != nil {
			h.logger.Warn("upload rejected", slog.String("file", fh.Filename), slog.Any("error", err))
			return httpError(err)
		}
		urls = append(urls, h.baseURL(c)+asset.AccessPath)
	}
	return c.JSON(http.StatusOK, uploadResponse{URLs: urls})
}

// Serve streams a stored image. Media URLs are public.
func (h *UploadHandler) Serve(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "media store not configured")
	}
	key := strings.TrimPrefix(c.Param("*"), "/")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "media key is required")
	}
	reader, err := h.store.Open(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, media.ErrProviderUnavailable) {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return echo.NewHTTPError(http.StatusNotFound, "asset not found")
	}
	defer reader.Close()
	data, err := media.ReadAllWithLimit(reader, h.maxBytes)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Blob(http.StatusOK, mimetype.Detect(data).String(), data)
}

func (h *UploadHandler) baseURL(c echo.Context) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	return c.Scheme() + "://" + c.Request().Host
}
