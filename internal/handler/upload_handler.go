package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/weekend-academy-api/internal/dto"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/response"
)

// FileStore persists uploaded bytes and returns their public URL.
type FileStore interface {
	Put(ctx context.Context, folder string, data []byte) (string, error)
}

var uploadFolders = map[string]struct{}{
	"receipts": {},
	"photos":   {},
}

// UploadHandler accepts payment receipts and photos ahead of a registration.
type UploadHandler struct {
	store FileStore
}

// NewUploadHandler builds an upload handler.
func NewUploadHandler(store FileStore) *UploadHandler {
	return &UploadHandler{store: store}
}

// Upload godoc
// @Summary Upload a receipt or photo
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Param kind formData string false "receipts (default) or photos"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	folder := c.DefaultPostForm("kind", "receipts")
	if _, ok := uploadFolders[folder]; !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "kind must be receipts or photos"))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	url, err := h.store.Put(c.Request.Context(), folder, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.UploadResponse{URL: url})
}
