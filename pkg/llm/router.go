package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ObserveFunc receives one record per backend attempt.
type ObserveFunc func(backend, model, operation string, elapsed time.Duration, err error)

// RouterConfig configures model selection.
type RouterConfig struct {
	DefaultModel string
	Fallbacks    []string
	Logger       *zap.Logger
	Observe      ObserveFunc
}

// Router picks a model for each request: the explicit model, then the configured
// default, then configured fallbacks, then whatever the backend reports as installed.
// It advances to the next candidate only on ErrModelNotFound.
type Router struct {
	backend  Backend
	defaults []string
	logger   *zap.Logger
	observe  ObserveFunc
}

// Completion is a blocking chat result.
type Completion struct {
	Content string
	Model   string
}

// NewRouter wraps backend with model fallback.
func NewRouter(backend Backend, cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	defaults := make([]string, 0, len(cfg.Fallbacks)+1)
	if cfg.DefaultModel != "" {
		defaults = append(defaults, cfg.DefaultModel)
	}
	defaults = append(defaults, cfg.Fallbacks...)
	return &Router{backend: backend, defaults: defaults, logger: cfg.Logger, observe: cfg.Observe}
}

// Backend exposes the wrapped backend.
func (r *Router) Backend() Backend { return r.backend }

// Chat runs a blocking completion.
func (r *Router) Chat(ctx context.Context, explicit string, messages []Message) (*Completion, error) {
	var out *Completion
	err := r.try(ctx, explicit, "chat", func(model string) error {
		content, err := r.backend.Chat(ctx, model, messages)
		if err != nil {
			return err
		}
		out = &Completion{Content: content, Model: model}
		return nil
	})
	return out, err
}

// Stream opens a token stream on the first model that exists.
func (r *Router) Stream(ctx context.Context, explicit string, messages []Message) (TokenStream, string, error) {
	var (
		stream TokenStream
		used   string
	)
	err := r.try(ctx, explicit, "stream", func(model string) error {
		s, err := r.backend.Stream(ctx, model, messages)
		if err != nil {
			return err
		}
		stream, used = s, model
		return nil
	})
	return stream, used, err
}

// ListModels delegates to the backend.
func (r *Router) ListModels(ctx context.Context) ([]string, error) {
	return r.backend.ListModels(ctx)
}

// Health delegates to the backend.
func (r *Router) Health(ctx context.Context) error {
	return r.backend.Health(ctx)
}

func (r *Router) try(ctx context.Context, explicit, operation string, call func(model string) error) error {
	tried := make(map[string]struct{})
	var lastErr error

	attempt := func(model string) (bool, error) {
		if model == "" {
			return false, nil
		}
		if _, seen := tried[model]; seen {
			return false, nil
		}
		tried[model] = struct{}{}

		start := time.Now()
		err := call(model)
		if r.observe != nil {
			r.observe(r.backend.Name(), model, operation, time.Since(start), err)
		}
		if err == nil {
			return true, nil
		}
		lastErr = err
		if !errors.Is(err, ErrModelNotFound) {
			return true, err
		}
		r.logger.Warn("model unavailable, trying next candidate",
			zap.String("backend", r.backend.Name()), zap.String("model", model), zap.Error(err))
		return false, nil
	}

	candidates := append([]string{explicit}, r.defaults...)
	for _, model := range candidates {
		if stop, err := attempt(model); stop {
			return err
		}
	}

	discovered, err := r.backend.ListModels(ctx)
	if err != nil {
		r.logger.Warn("model discovery failed", zap.String("backend", r.backend.Name()), zap.Error(err))
	}
	for _, model := range discovered {
		if stop, err := attempt(model); stop {
			return err
		}
	}

	if lastErr == nil {
		lastErr = ErrModelNotFound
	}
	return lastErr
}
