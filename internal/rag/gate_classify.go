package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PixlGalaxy/EagleDocs/pkg/llm"
)

const classifySystemPrompt = "Return strictly valid JSON with keys relevant and reason."

type classifyDecision struct {
	Relevant *bool  `json:"relevant"`
	Reason   string `json:"reason"`
}

// PerDocumentClassify asks, per candidate, whether its best excerpt is relevant.
// A document whose reply cannot be used is left out.
type PerDocumentClassify struct {
	completer   Completer
	model       string
	concurrency int
	logger      *zap.Logger
	observe     GateObserver
}

// Policy implements Gate.
func (g *PerDocumentClassify) Policy() string { return PolicyPerDocumentClassify }

// Select implements Gate.
func (g *PerDocumentClassify) Select(ctx context.Context, question string, candidates []Candidate) (GateResult, error) {
	type verdict struct {
		keep    bool
		note    string
		outcome string
	}
	verdicts := make([]verdict, len(candidates))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, c := range candidates {
		i, c := i, c
		eg.Go(func() error {
			keep, reason, outcome := g.classify(egctx, question, c)
			verdicts[i] = verdict{keep: keep, note: reason, outcome: outcome}
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return GateResult{}, err
	}
	for _, v := range verdicts {
		g.observe(PolicyPerDocumentClassify, v.outcome)
	}

	var picked []string
	var contextNotes []string
	for i, v := range verdicts {
		if !v.keep {
			continue
		}
		picked = append(picked, candidates[i].DocumentID)
		if v.note != "" {
			contextNotes = append(contextNotes, fmt.Sprintf("%s: %s", candidates[i].DocumentName, v.note))
		}
	}
	return GateResult{DocumentIDs: restrict(candidates, picked), ContextNotes: contextNotes}, nil
}

func (g *PerDocumentClassify) classify(ctx context.Context, question string, c Candidate) (bool, string, string) {
	out, err := g.completer.Chat(ctx, g.model, []llm.Message{
		{Role: llm.RoleSystem, Content: classifySystemPrompt},
		{Role: llm.RoleUser, Content: classifyPrompt(question, c)},
	})
	if err == nil {
		var decision classifyDecision
		if err = decodeObject(out.Content, &decision); err == nil && decision.Relevant == nil {
			err = fmt.Errorf("%w: relevant missing", ErrGateParse)
		}
		if err == nil {
			outcome := OutcomeRejected
			if *decision.Relevant {
				outcome = OutcomeSelected
			}
			return *decision.Relevant, decision.Reason, outcome
		}
	}
	g.logger.Warn("relevance check excluded document",
		zap.String("policy", PolicyPerDocumentClassify), zap.String("document_id", c.DocumentID), zap.Error(err))
	return false, "", OutcomeFallback
}

func classifyPrompt(question string, c Candidate) string {
	return fmt.Sprintf(
		"Document: %s\nCourse: %s (CRN %s)\nExcerpt:\n%s\n\nQuestion: %s\n\n"+
			"Is this excerpt relevant to answering the question? Respond with JSON {\"relevant\": true or false, \"reason\": \"...\"}.",
		c.DocumentName, c.CourseCode, c.CRN, c.Excerpt, question)
}
