// Package verify binds AST existence and rule matches into per-identifier
// exclusion verdicts.
//
// A candidate is confirmed only when it exists in the AST document and at
// least one rule matches its symbol. A candidate missing from the AST is a
// hallucination; one found without a matching rule lacks evidence.
package verify

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/model"
	"github.com/ppiankov/astproof/internal/rules"
)

// Verdict reasoning texts
const (
	ReasonHallucination = "hallucination: absent from AST"
	ReasonNoRuleMatch   = "insufficient evidence: no rule match"
	advisorySuffix      = " (advisory)"
)

// Verifier owns a rule engine and a decision policy. It holds no per-call
// state and is safe for concurrent use.
type Verifier struct {
	engine *rules.Engine
	policy Policy
}

// New creates a verifier
func New(engine *rules.Engine, policy Policy) *Verifier {
	return &Verifier{engine: engine, policy: policy}
}

// Policy returns the decision policy
func (v *Verifier) Policy() Policy {
	return v.policy
}

// Engine returns the rule engine
func (v *Verifier) Engine() *rules.Engine {
	return v.engine
}

// BuildSymbolIndex indexes a document under the verifier's duplicate policy
func (v *Verifier) BuildSymbolIndex(doc *extract.Document) *Index {
	return BuildSymbolIndex(doc, v.policy.Duplicates)
}

// Verify produces verdicts for the identifiers in input order. Under
// KeepAll an identifier bound to several symbols yields one verdict per binding.
func (v *Verifier) Verify(doc *extract.Document, identifiers []string) []model.VerificationResult {
	return v.VerifyIndex(v.BuildSymbolIndex(doc), identifiers)
}

// VerifyIndex is Verify against an already built index
func (v *Verifier) VerifyIndex(idx *Index, identifiers []string) []model.VerificationResult {
	results := make([]model.VerificationResult, 0, len(identifiers))
	for _, id := range identifiers {
		results = append(results, v.verifyIdentifier(idx, id)...)
	}
	return results
}

// VerifyParallel evaluates candidates concurrently on up to workers
// goroutines. The output equals Verify for the same input.
func (v *Verifier) VerifyParallel(ctx context.Context, doc *extract.Document, identifiers []string, workers int) ([]model.VerificationResult, error) {
	return v.VerifyIndexParallel(ctx, v.BuildSymbolIndex(doc), identifiers, workers)
}

// VerifyIndexParallel is VerifyParallel against an already built index
func (v *Verifier) VerifyIndexParallel(ctx context.Context, idx *Index, identifiers []string, workers int) ([]model.VerificationResult, error) {
	if workers <= 1 {
		return v.VerifyIndex(idx, identifiers), nil
	}

	perID := make([][]model.VerificationResult, len(identifiers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, id := range identifiers {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perID[i] = v.verifyIdentifier(idx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]model.VerificationResult, 0, len(identifiers))
	for _, r := range perID {
		results = append(results, r...)
	}
	return results, nil
}

func (v *Verifier) verifyIdentifier(idx *Index, id string) []model.VerificationResult {
	bindings := idx.Bindings(id)
	if len(bindings) == 0 {
		return []model.VerificationResult{{
			Identifier:  id,
			RuleMatches: []model.RuleMatch{},
			Reasoning:   ReasonHallucination,
		}}
	}

	out := make([]model.VerificationResult, 0, len(bindings))
	for _, sym := range bindings {
		out = append(out, v.decide(id, sym))
	}
	return out
}

func (v *Verifier) decide(id string, sym *model.Symbol) model.VerificationResult {
	result := model.VerificationResult{
		Identifier:  id,
		FoundInAST:  true,
		Symbol:      sym,
		RuleMatches: v.engine.MatchSymbol(sym),
	}

	if len(result.RuleMatches) > 0 {
		ids := result.MatchedRuleIDs()
		result.FinalDecision = true
		result.Confidence = 1.0
		result.Reasoning = fmt.Sprintf("matched %d strict rule(s): %s", len(ids), strings.Join(ids, ", "))
		return result
	}

	result.RuleMatches = []model.RuleMatch{}
	result.Reasoning = ReasonNoRuleMatch
	if !v.policy.Strict {
		result.FinalDecision = true
		result.Confidence = AdvisoryConfidence
		result.Reasoning += advisorySuffix
	}
	return result
}

// FinalExclusions returns the identifiers confirmed for exclusion with at
// least minConfidence. Confidence is binary under the strict policy, so a
// threshold below 1.0 only admits advisory verdicts.
func FinalExclusions(results []model.VerificationResult, minConfidence float64) []string {
	exclusions := []string{}
	for _, r := range results {
		if r.FinalDecision && r.Confidence >= minConfidence {
			exclusions = append(exclusions, r.Identifier)
		}
	}
	return exclusions
}
