package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
	"github.com/PixlGalaxy/EagleDocs/pkg/response"
)

type modelCatalog interface {
	ListModels(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
}

// LLMHandler reports on the configured model backend.
type LLMHandler struct {
	backend modelCatalog
	name    string
}

// NewLLMHandler constructs the handler. name is the backend label shown to clients.
func NewLLMHandler(backend modelCatalog, name string) *LLMHandler {
	return &LLMHandler{backend: backend, name: name}
}

// Models godoc
// @Summary List installed models
// @Tags LLM
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /llm/models [get]
func (h *LLMHandler) Models(c *gin.Context) {
	if h.backend == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "llm backend not configured"))
		return
	}
	models, err := h.backend.ListModels(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "unable to list models"))
		return
	}
	if models == nil {
		models = []string{}
	}
	response.JSON(c, http.StatusOK, gin.H{"backend": h.name, "models": models}, nil)
}

// Health godoc
// @Summary Check the model backend
// @Tags LLM
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /llm/health [get]
func (h *LLMHandler) Health(c *gin.Context) {
	if h.backend == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "llm backend not configured"))
		return
	}
	if err := h.backend.Health(c.Request.Context()); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "llm backend unavailable"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"backend": h.name, "status": "ok"}, nil)
}
