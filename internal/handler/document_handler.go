package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PixlGalaxy/EagleDocs/internal/dto"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
	"github.com/PixlGalaxy/EagleDocs/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, actor *models.JWTClaims, courseID string, req dto.UploadDocumentRequest) (*dto.UploadDocumentResponse, error)
	List(ctx context.Context, courseID string) ([]models.CourseDocument, error)
	Delete(ctx context.Context, actor *models.JWTClaims, courseID, documentID string) error
	Reindex(ctx context.Context, actor *models.JWTClaims, courseID string) (*dto.ReindexResponse, error)
	Download(ctx context.Context, documentID, expires, signature string) (*models.CourseDocument, string, error)
}

// DocumentHandler manages course document endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// List godoc
// @Summary List course documents
// @Tags Documents
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if _, ok := requireCaller(c); !ok {
		return
	}
	docs, err := h.service.List(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Upload godoc
// @Summary Upload a PDF and index it
// @Tags Documents
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body dto.UploadDocumentRequest true "Base64 encoded PDF"
// @Success 201 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{courseId}/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.UploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload payload"))
		return
	}
	result, err := h.service.Upload(c.Request.Context(), claims, c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Delete godoc
// @Summary Delete a course document
// @Tags Documents
// @Param courseId path string true "Course ID"
// @Param documentId path string true "Document ID"
// @Success 204
// @Router /courses/{courseId}/documents/{documentId} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims, c.Param("courseId"), c.Param("documentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reindex godoc
// @Summary Rebuild every index of a course in the background
// @Tags Documents
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /courses/{courseId}/reindex [post]
func (h *DocumentHandler) Reindex(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	result, err := h.service.Reindex(c.Request.Context(), claims, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// Download godoc
// @Summary Download the original PDF through a signed link
// @Tags Documents
// @Produce application/pdf
// @Param documentId path string true "Document ID"
// @Param expires query string true "Expiry unix seconds"
// @Param signature query string true "HMAC signature"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /documents/{documentId}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	doc, path, err := h.service.Download(c.Request.Context(), c.Param("documentId"), c.Query("expires"), c.Query("signature"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=60")
	c.FileAttachment(path, doc.OriginalName)
}

func (h *DocumentHandler) ready(c *gin.Context) bool {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return false
	}
	return true
}
