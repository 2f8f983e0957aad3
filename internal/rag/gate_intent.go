package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/PixlGalaxy/EagleDocs/pkg/llm"
)

const (
	intentSystemPrompt = `You route questions for a university course assistant. ` +
		`Decide whether answering needs the instructor's uploaded course documents ` +
		`(syllabus, slides, assignments, schedules, policies, readings). ` +
		`Return strictly valid JSON: {"needs_documents": true or false, "reason": "short explanation"}.`

	selectSystemPrompt = `You choose which course documents should be consulted to answer a question. ` +
		`Only use ids from the provided list. ` +
		`Return strictly valid JSON: {"use_documents": ["id", ...], "reason": "short explanation"}.`

	selectExcerptChars = 300
)

type intentDecision struct {
	NeedsDocuments *bool  `json:"needs_documents"`
	Reason         string `json:"reason"`
}

type selectDecision struct {
	UseDocuments *[]string `json:"use_documents"`
	Reason       string    `json:"reason"`
}

// IntentThenSelect first asks whether the question needs documents at all, then
// which candidates to use. Any unusable reply falls back to every candidate.
type IntentThenSelect struct {
	completer Completer
	model     string
	logger    *zap.Logger
	observe   GateObserver
}

// Policy implements Gate.
func (g *IntentThenSelect) Policy() string { return PolicyIntentThenSelect }

// Select implements Gate.
func (g *IntentThenSelect) Select(ctx context.Context, question string, candidates []Candidate) (GateResult, error) {
	if len(candidates) == 0 {
		return GateResult{}, nil
	}

	var intent intentDecision
	if err := g.ask(ctx, intentSystemPrompt, intentPrompt(question, candidates), &intent); err != nil {
		return g.fallback(ctx, "intent", candidates, err)
	}
	if intent.NeedsDocuments == nil {
		return g.fallback(ctx, "intent", candidates, fmt.Errorf("%w: needs_documents missing", ErrGateParse))
	}
	if !*intent.NeedsDocuments {
		g.observe(PolicyIntentThenSelect, OutcomeSkipped)
		return GateResult{ContextNotes: notes("intent", intent.Reason)}, nil
	}

	var selection selectDecision
	if err := g.ask(ctx, selectSystemPrompt, selectPrompt(question, candidates), &selection); err != nil {
		return g.fallback(ctx, "select", candidates, err)
	}
	if selection.UseDocuments == nil {
		return g.fallback(ctx, "select", candidates, fmt.Errorf("%w: use_documents missing", ErrGateParse))
	}
	ids := restrict(candidates, *selection.UseDocuments)
	if len(ids) == 0 {
		return g.fallback(ctx, "select", candidates, fmt.Errorf("%w: no known document ids selected", ErrGateParse))
	}
	g.observe(PolicyIntentThenSelect, OutcomeSelected)
	return GateResult{
		DocumentIDs:  ids,
		ContextNotes: append(notes("intent", intent.Reason), notes("select", selection.Reason)...),
	}, nil
}

func (g *IntentThenSelect) ask(ctx context.Context, system, user string, dst interface{}) error {
	out, err := g.completer.Chat(ctx, g.model, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	})
	if err != nil {
		return err
	}
	return decodeObject(out.Content, dst)
}

func (g *IntentThenSelect) fallback(ctx context.Context, step string, candidates []Candidate, cause error) (GateResult, error) {
	if err := ctx.Err(); err != nil {
		return GateResult{}, err
	}
	g.logger.Warn("relevance gate fell back to all candidates",
		zap.String("policy", PolicyIntentThenSelect), zap.String("step", step),
		zap.Int("candidates", len(candidates)), zap.Error(cause))
	g.observe(PolicyIntentThenSelect, OutcomeFallback)
	return GateResult{
		DocumentIDs:  allIDs(candidates),
		ContextNotes: []string{fmt.Sprintf("%s: using all candidate documents", step)},
	}, nil
}

func intentPrompt(question string, candidates []Candidate) string {
	var b strings.Builder
	first := candidates[0]
	fmt.Fprintf(&b, "Course: %s (CRN %s)\n", first.CourseCode, first.CRN)
	b.WriteString("Available documents:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s\n", c.DocumentName)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}

func selectPrompt(question string, candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("Candidate documents:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id: %s | name: %s | excerpt: %s\n",
			c.DocumentID, c.DocumentName, truncateRunes(strings.Join(strings.Fields(c.Excerpt), " "), selectExcerptChars))
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}

func notes(step, reason string) []string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	return []string{step + ": " + reason}
}
