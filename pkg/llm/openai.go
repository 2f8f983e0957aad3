package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

const openAIName = "openai"

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIBackend adapts go-openai to Backend.
type OpenAIBackend struct {
	client  *openai.Client
	timeout time.Duration
}

// NewOpenAIBackend constructs the backend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(clientCfg), timeout: cfg.Timeout}
}

// Name identifies the backend in logs and metrics.
func (b *OpenAIBackend) Name() string { return openAIName }

// Chat performs a non-streaming completion.
func (b *OpenAIBackend) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", b.translate(model, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream starts a streaming completion. It fails with ErrTimeout once the server
// stays silent for the configured timeout.
func (b *OpenAIBackend) Stream(ctx context.Context, model string, messages []Message) (TokenStream, error) {
	reqCtx, watch := newIdleWatch(ctx, b.timeout)
	stream, err := b.client.CreateChatCompletionStream(reqCtx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	})
	if err != nil {
		watch.stop()
		return nil, watch.wrap(b.translate(model, err))
	}
	return &openAIStream{ctx: ctx, stream: stream, watch: watch}, nil
}

// ListModels returns model ids visible to the API key.
func (b *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	list, err := b.client.ListModels(ctx)
	if err != nil {
		return nil, b.translate("", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// Health lists models with a short deadline.
func (b *OpenAIBackend) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := b.ListModels(ctx)
	return err
}

func (b *OpenAIBackend) translate(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		if code, ok := apiErr.Code.(string); ok && code == "model_not_found" {
			status = http.StatusNotFound
		}
		return &StatusError{Backend: openAIName, Model: model, StatusCode: status, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{Backend: openAIName, Model: model, StatusCode: reqErr.HTTPStatusCode, Body: fmt.Sprint(reqErr.Err)}
	}
	return asTimeout(fmt.Errorf("openai request: %w", err))
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

type openAIStream struct {
	ctx    context.Context
	stream *openai.ChatCompletionStream
	watch  *idleWatch
	once   sync.Once
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", s.watch.wrap(asTimeout(fmt.Errorf("openai stream: %w", err)))
		}
		s.watch.touch()
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (s *openAIStream) Close() error {
	s.once.Do(func() {
		s.watch.stop()
		s.stream.Close()
	})
	return nil
}
