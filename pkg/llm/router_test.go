package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	args := m.Called(ctx, model, messages)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) Stream(ctx context.Context, model string, messages []Message) (TokenStream, error) {
	args := m.Called(ctx, model, messages)
	stream, _ := args.Get(0).(TokenStream)
	return stream, args.Error(1)
}

func (m *mockBackend) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	models, _ := args.Get(0).([]string)
	return models, args.Error(1)
}

func (m *mockBackend) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var notFound = &StatusError{Backend: "mock", StatusCode: 404, Body: "model not found"}

func TestRouterFallsBackOnModelNotFound(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Chat", mock.Anything, "custom", mock.Anything).Return("", notFound).Once()
	backend.On("Chat", mock.Anything, "gpt-oss:20b", mock.Anything).Return("answer", nil).Once()

	var observed []string
	router := NewRouter(backend, RouterConfig{
		DefaultModel: "gpt-oss:20b",
		Observe: func(_, model, op string, _ time.Duration, _ error) {
			observed = append(observed, op+":"+model)
		},
	})
	out, err := router.Chat(context.Background(), "custom", nil)

	require.NoError(t, err)
	assert.Equal(t, "answer", out.Content)
	assert.Equal(t, "gpt-oss:20b", out.Model)
	assert.Equal(t, []string{"chat:custom", "chat:gpt-oss:20b"}, observed)
	backend.AssertExpectations(t)
}

func TestRouterDoesNotRetryGenericFailures(t *testing.T) {
	backend := &mockBackend{}
	boom := errors.New("connection refused")
	backend.On("Chat", mock.Anything, "gpt-oss:20b", mock.Anything).Return("", boom).Once()

	router := NewRouter(backend, RouterConfig{DefaultModel: "gpt-oss:20b", Fallbacks: []string{"llama3"}})
	_, err := router.Chat(context.Background(), "", nil)

	assert.ErrorIs(t, err, boom)
	backend.AssertNotCalled(t, "Chat", mock.Anything, "llama3", mock.Anything)
	backend.AssertNotCalled(t, "ListModels", mock.Anything)
}

func TestRouterUsesDiscoveredModelsLast(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Chat", mock.Anything, "gpt-oss:20b", mock.Anything).Return("", notFound).Once()
	backend.On("Chat", mock.Anything, "llama3", mock.Anything).Return("", notFound).Once()
	backend.On("ListModels", mock.Anything).Return([]string{"llama3", "mistral"}, nil).Once()
	backend.On("Chat", mock.Anything, "mistral", mock.Anything).Return("ok", nil).Once()

	router := NewRouter(backend, RouterConfig{DefaultModel: "gpt-oss:20b", Fallbacks: []string{"llama3", "gpt-oss:20b"}})
	out, err := router.Chat(context.Background(), "", nil)

	require.NoError(t, err)
	assert.Equal(t, "mistral", out.Model)
	backend.AssertExpectations(t)
}

func TestRouterReturnsLastNotFoundWhenExhausted(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Stream", mock.Anything, "gpt-oss:20b", mock.Anything).Return(nil, notFound).Once()
	backend.On("ListModels", mock.Anything).Return(nil, errors.New("offline")).Once()

	router := NewRouter(backend, RouterConfig{DefaultModel: "gpt-oss:20b"})
	stream, model, err := router.Stream(context.Background(), "", nil)

	assert.Nil(t, stream)
	assert.Empty(t, model)
	assert.ErrorIs(t, err, ErrModelNotFound)
}
