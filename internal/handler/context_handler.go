package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PixlGalaxy/EagleDocs/internal/dto"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
	"github.com/PixlGalaxy/EagleDocs/pkg/response"
)

const defaultPreviewQuestion = "context preview"

type contextPreviewer interface {
	Preview(ctx context.Context, selector, question string) (models.RetrievalContext, error)
}

// ContextHandler exposes the retrieval preview used by instructors to check what the
// assistant would see for a question.
type ContextHandler struct {
	service contextPreviewer
}

// NewContextHandler constructs the handler.
func NewContextHandler(service contextPreviewer) *ContextHandler {
	return &ContextHandler{service: service}
}

// Preview godoc
// @Summary Preview retrieved course context
// @Tags Context
// @Produce json
// @Param courseCode path string true "Course code or CRN"
// @Param q query string false "Question"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /context/{courseCode} [get]
func (h *ContextHandler) Preview(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "context service not configured"))
		return
	}
	if _, ok := requireCaller(c); !ok {
		return
	}
	selector := c.Param("courseCode")
	question := strings.TrimSpace(c.Query("q"))
	if question == "" {
		question = defaultPreviewQuestion
	}
	result, err := h.service.Preview(c.Request.Context(), selector, question)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ContextPreviewResponse{
		CourseCode: selector,
		Question:   question,
		Context:    result.Text,
		Sources:    result.Sources,
		Notes:      result.Notes,
	}, nil)
}
