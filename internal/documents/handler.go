package documents

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"coursedocs-backend/internal/shared/server/middleware"
	"coursedocs-backend/internal/shared/server/respond"
)

// multipartOverhead is the slack allowed on top of the file limit for form boundaries and fields.
const multipartOverhead = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
// uploadMiddleware runs only in front of the upload route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, uploadMiddleware ...gin.HandlerFunc) {
	rg.POST("/documents", append(uploadMiddleware, h.upload)...)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents", h.list)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.Opts.MaxUploadSize+multipartOverhead)
	if err := c.Request.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusBadRequest, CodeSizeExceeded, "file exceeds upload limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, CodeMissingFile, "multipart form with a file is required", nil)
		return
	}

	containerID := strings.TrimSpace(c.PostForm("containerId"))
	if containerID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "containerId is required", nil)
		return
	}
	c.Set(middleware.ContainerIDKey, containerID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, CodeMissingFile, "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, CodeMissingFile, "unable to read file", nil)
		return
	}
	defer file.Close()

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	doc, err := h.Svc.Upload(ctx, UploadInput{
		Body:         file,
		DeclaredMime: fileHeader.Header.Get("Content-Type"),
		DeclaredSize: fileHeader.Size,
		OwnerID:      middleware.UserIDFromContext(c),
		ContainerID:  containerID,
		FileName:     fileHeader.Filename,
	})
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.Set(middleware.DocumentIDKey, doc.ID)
	c.Set(middleware.StatusTransitionKey, "->"+string(doc.State))
	respond.Created(c, c.Request.URL.Path+"/"+doc.ID, toResponse(doc))
}

func writeUploadError(c *gin.Context, err error) {
	var (
		validationErr *ValidationError
		storageErr    *StorageWriteError
		persistErr    *MetadataPersistError
	)
	switch {
	case errors.As(err, &validationErr):
		respond.Error(c, http.StatusBadRequest, validationErr.Code, validationErr.Message, nil)
	case errors.As(err, &storageErr):
		respond.Error(c, http.StatusInternalServerError, "storage_error", "failed to store document", nil)
	case errors.As(err, &persistErr):
		respond.Error(c, http.StatusInternalServerError, "persist_error", "failed to record document", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to upload document", nil)
	}
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)

	doc, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document", nil)
		}
		return
	}

	respond.OK(c, toDetailResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	containerID := strings.TrimSpace(c.Query("containerId"))
	if containerID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "containerId is required", nil)
		return
	}
	c.Set(middleware.ContainerIDKey, containerID)

	limit := queryInt(c, "limit", defaultListLimit)
	offset := queryInt(c, "offset", 0)

	docs, err := h.Svc.ListByContainer(c.Request.Context(), containerID, limit, offset)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		}
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toResponse(doc))
	}
	respond.OK(c, resp)
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}
