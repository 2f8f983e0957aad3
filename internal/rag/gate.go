package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/PixlGalaxy/EagleDocs/pkg/llm"
)

// Gate policy names.
const (
	PolicyIntentThenSelect    = "intent"
	PolicyPerDocumentClassify = "classify"
	PolicyPassThrough         = "none"
)

// Gate outcomes reported to the observer.
const (
	OutcomeSelected = "selected"
	OutcomeRejected = "rejected"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
)

// Completer is the blocking chat call the gate needs; *llm.Router satisfies it.
type Completer interface {
	Chat(ctx context.Context, model string, messages []llm.Message) (*llm.Completion, error)
}

// Candidate is one document eligible for the context, with its best excerpt.
type Candidate struct {
	DocumentID   string
	DocumentName string
	CourseCode   string
	CRN          string
	Excerpt      string
	TopScore     int
}

// GateResult is the uniform answer of every policy. DocumentIDs is a subset of the
// candidate ids, without duplicates, in candidate order.
type GateResult struct {
	DocumentIDs  []string
	ContextNotes []string
}

// Gate decides which candidate documents are worth putting in front of the model.
type Gate interface {
	Policy() string
	Select(ctx context.Context, question string, candidates []Candidate) (GateResult, error)
}

// GateObserver receives one call per decision. Calls come from the goroutine
// running Select, one at a time, in candidate order.
type GateObserver func(policy, outcome string)

// GateConfig selects and tunes a policy.
type GateConfig struct {
	Policy      string
	Model       string
	Concurrency int
	Logger      *zap.Logger
	Observe     GateObserver
}

// NewGate builds the configured policy.
func NewGate(completer Completer, cfg GateConfig) (Gate, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observe == nil {
		cfg.Observe = func(string, string) {}
	}
	switch cfg.Policy {
	case "", PolicyIntentThenSelect:
		return &IntentThenSelect{completer: completer, model: cfg.Model, logger: cfg.Logger, observe: cfg.Observe}, nil
	case PolicyPerDocumentClassify:
		concurrency := cfg.Concurrency
		if concurrency <= 0 {
			concurrency = 4
		}
		return &PerDocumentClassify{completer: completer, model: cfg.Model, concurrency: concurrency, logger: cfg.Logger, observe: cfg.Observe}, nil
	case PolicyPassThrough:
		return PassThrough{}, nil
	default:
		return nil, fmt.Errorf("unknown gate policy %q", cfg.Policy)
	}
}

// PassThrough keeps every candidate.
type PassThrough struct{}

// Policy implements Gate.
func (PassThrough) Policy() string { return PolicyPassThrough }

// Select implements Gate.
func (PassThrough) Select(_ context.Context, _ string, candidates []Candidate) (GateResult, error) {
	return GateResult{DocumentIDs: allIDs(candidates)}, nil
}

func allIDs(candidates []Candidate) []string {
	seen := make(map[string]struct{}, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.DocumentID]; dup {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	return ids
}

// restrict keeps the ids in picked that belong to the pool, ordered like candidates.
func restrict(candidates []Candidate, picked []string) []string {
	want := make(map[string]struct{}, len(picked))
	for _, id := range picked {
		want[id] = struct{}{}
	}
	var ids []string
	for _, id := range allIDs(candidates) {
		if _, ok := want[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
