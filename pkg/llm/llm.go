// Package llm talks to the generative model backend. Backends expose a blocking
// chat call, a pull-based token stream, model discovery and a health probe;
// Router layers model fallback on top of any Backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrModelNotFound marks errors caused by an unknown or unavailable model name.
	ErrModelNotFound = errors.New("model not found")
	// ErrTimeout marks requests that exceeded the configured backend timeout.
	ErrTimeout = errors.New("generation timed out")
	// ErrEmptyResponse is returned when the backend answered without content.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenStream is a cancellable lazy sequence of text fragments.
// Recv returns io.EOF once the backend signals completion. Close releases the
// underlying connection and is safe to call more than once.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Backend is a generative model service.
type Backend interface {
	Name() string
	Chat(ctx context.Context, model string, messages []Message) (string, error)
	Stream(ctx context.Context, model string, messages []Message) (TokenStream, error)
	ListModels(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
}

// StatusError is a non-2xx answer from a backend.
type StatusError struct {
	Backend    string
	Model      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d for model %q: %s", e.Backend, e.StatusCode, e.Model, e.Body)
}

// Is lets errors.Is(err, ErrModelNotFound) match 404s and model-related 400/422s.
func (e *StatusError) Is(target error) bool {
	if target != ErrModelNotFound {
		return false
	}
	switch e.StatusCode {
	case 404:
		return true
	case 400, 422:
		return strings.Contains(strings.ToLower(e.Body), "model")
	default:
		return false
	}
}

// asTimeout maps deadline and network timeout errors onto ErrTimeout.
func asTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// idleWatch cancels a streaming request when the backend sends nothing for limit.
// The limit also covers the wait for response headers.
type idleWatch struct {
	limit   time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	expired atomic.Bool
}

func newIdleWatch(ctx context.Context, limit time.Duration) (context.Context, *idleWatch) {
	ctx, cancel := context.WithCancel(ctx)
	w := &idleWatch{limit: limit, cancel: cancel}
	w.timer = time.AfterFunc(limit, func() {
		w.expired.Store(true)
		cancel()
	})
	return ctx, w
}

// touch restarts the idle window after data arrived.
func (w *idleWatch) touch() {
	if !w.expired.Load() {
		w.timer.Reset(w.limit)
	}
}

// wrap reports err as ErrTimeout when the watch fired.
func (w *idleWatch) wrap(err error) error {
	if w.expired.Load() {
		return fmt.Errorf("%w: no data from backend for %s", ErrTimeout, w.limit)
	}
	return err
}

func (w *idleWatch) stop() {
	w.timer.Stop()
	w.cancel()
}
