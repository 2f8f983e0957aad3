package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const ollamaName = "ollama"

// OllamaConfig configures the Ollama HTTP backend.
type OllamaConfig struct {
	Host          string
	Timeout       time.Duration
	HealthTimeout time.Duration
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// OllamaBackend speaks the Ollama /api/chat and /api/tags endpoints.
type OllamaBackend struct {
	host          string
	timeout       time.Duration
	healthTimeout time.Duration
	client        *http.Client
	streamClient  *http.Client
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatChunk struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message,omitempty"`
	Response string `json:"response,omitempty"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c ollamaChatChunk) text() string {
	if c.Message != nil && c.Message.Content != "" {
		return c.Message.Content
	}
	return c.Response
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// NewOllamaBackend constructs the backend. Blocking calls are bounded by Timeout end to end;
// streaming calls fail with ErrTimeout once the server stays silent for Timeout.
func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          32,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: cfg.Timeout,
		}
	}
	return &OllamaBackend{
		host:          strings.TrimRight(cfg.Host, "/"),
		timeout:       cfg.Timeout,
		healthTimeout: cfg.HealthTimeout,
		client:        &http.Client{Transport: transport, Timeout: cfg.Timeout},
		streamClient:  &http.Client{Transport: transport},
	}
}

// Name identifies the backend in logs and metrics.
func (b *OllamaBackend) Name() string { return ollamaName }

// Chat performs a non-streaming chat completion.
func (b *OllamaBackend) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.postChat(ctx, b.client, model, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	var chunk ollamaChatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return "", asTimeout(fmt.Errorf("decode ollama response: %w", err))
	}
	if chunk.Error != "" {
		return "", fmt.Errorf("ollama: %s", chunk.Error)
	}
	content := chunk.text()
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// Stream starts a streaming chat completion. The returned stream must be closed.
func (b *OllamaBackend) Stream(ctx context.Context, model string, messages []Message) (TokenStream, error) {
	reqCtx, watch := newIdleWatch(ctx, b.timeout)
	resp, err := b.postChat(reqCtx, b.streamClient, model, messages, true)
	if err != nil {
		watch.stop()
		return nil, watch.wrap(err)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ollamaStream{ctx: ctx, body: resp.Body, scanner: scanner, watch: watch}, nil
}

func (b *OllamaBackend) postChat(ctx context.Context, client *http.Client, model string, messages []Message, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(ollamaChatRequest{Model: model, Messages: messages, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, asTimeout(fmt.Errorf("ollama request: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{Backend: ollamaName, Model: model, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// ListModels returns installed model names in server order.
func (b *OllamaBackend) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.tags(ctx)
}

// Health succeeds when the tags endpoint answers within the health timeout.
func (b *OllamaBackend) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.healthTimeout)
	defer cancel()
	_, err := b.tags(ctx)
	return err
}

func (b *OllamaBackend) tags(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, asTimeout(fmt.Errorf("ollama tags: %w", err))
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Backend: ollamaName, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// ollamaStream reads NDJSON chunks lazily from the response body.
type ollamaStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	watch   *idleWatch
	done    bool
	once    sync.Once
}

func (s *ollamaStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		s.watch.touch()
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			s.done = true
			return "", fmt.Errorf("ollama stream: %s", chunk.Error)
		}
		text := chunk.text()
		if chunk.Done {
			s.done = true
			if text == "" {
				return "", io.EOF
			}
			return text, nil
		}
		if text != "" {
			return text, nil
		}
	}
	s.done = true
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if err := s.scanner.Err(); err != nil {
		return "", s.watch.wrap(asTimeout(fmt.Errorf("read ollama stream: %w", err)))
	}
	return "", io.EOF
}

func (s *ollamaStream) Close() error {
	var err error
	s.once.Do(func() {
		s.watch.stop()
		err = s.body.Close()
	})
	return err
}
