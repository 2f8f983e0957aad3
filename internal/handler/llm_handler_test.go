package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type catalogStub struct {
	models    []string
	listErr   error
	healthErr error
}

func (s catalogStub) ListModels(ctx context.Context) ([]string, error) { return s.models, s.listErr }
func (s catalogStub) Health(ctx context.Context) error                  { return s.healthErr }

func serveLLM(h *LLMHandler, fn func(*LLMHandler, *gin.Context)) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/llm", nil)
	fn(h, c)
	return w
}

func TestLLMHandlerModels(t *testing.T) {
	w := serveLLM(NewLLMHandler(catalogStub{models: []string{"gpt-oss:20b", "llama3"}}, "ollama"), (*LLMHandler).Models)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"models":["gpt-oss:20b","llama3"]`)

	w = serveLLM(NewLLMHandler(catalogStub{listErr: errors.New("connection refused")}, "ollama"), (*LLMHandler).Models)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestLLMHandlerHealth(t *testing.T) {
	w := serveLLM(NewLLMHandler(catalogStub{}, "openai"), (*LLMHandler).Health)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backend":"openai"`)

	w = serveLLM(NewLLMHandler(catalogStub{healthErr: errors.New("down")}, "openai"), (*LLMHandler).Health)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = serveLLM(NewLLMHandler(nil, ""), (*LLMHandler).Health)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
