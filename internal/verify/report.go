package verify

import (
	"github.com/ppiankov/astproof/internal/model"
)

// GenerateReport aggregates verdicts into counters, rates and per-identifier
// details. Rates whose denominator is zero are left undefined.
//
// Under KeepAll an identifier may yield one result per binding. The summary
// and the exclusion list still count each identifier once: it is found when
// any binding exists and rule-matched when any binding matches. Details keep
// one entry per binding.
func GenerateReport(results []model.VerificationResult, policy Policy) *model.Report {
	report := &model.Report{
		Exclusions: FinalExclusions(results, policy.MinConfidence),
		Details:    make([]model.Detail, 0, len(results)),
	}
	for _, r := range results {
		report.Details = append(report.Details, model.DetailFrom(r))
	}

	s := &report.Summary
	if policy.Duplicates == KeepAll {
		report.Exclusions = uniqueIdentifiers(report.Exclusions)
		summarizeByIdentifier(s, results)
	} else {
		s.Total = len(results)
		for _, r := range results {
			if r.FoundInAST {
				s.FoundInAST++
			}
			if r.RuleMatched() {
				s.RuleMatched++
			}
		}
	}
	s.FinalExclusions = len(report.Exclusions)
	s.HallucinationRate = model.NewRate(s.Total-s.FoundInAST, s.Total)
	s.RuleMatchRate = model.NewRate(s.RuleMatched, s.FoundInAST)

	return report
}

// GenerateReport uses the verifier's own policy
func (v *Verifier) GenerateReport(results []model.VerificationResult) *model.Report {
	return GenerateReport(results, v.policy)
}

func summarizeByIdentifier(s *model.Summary, results []model.VerificationResult) {
	type tally struct{ found, matched bool }
	seen := make(map[string]*tally, len(results))
	var order []string
	for _, r := range results {
		t, ok := seen[r.Identifier]
		if !ok {
			t = &tally{}
			seen[r.Identifier] = t
			order = append(order, r.Identifier)
		}
		t.found = t.found || r.FoundInAST
		t.matched = t.matched || r.RuleMatched()
	}

	s.Total = len(order)
	for _, id := range order {
		if seen[id].found {
			s.FoundInAST++
		}
		if seen[id].matched {
			s.RuleMatched++
		}
	}
}

func uniqueIdentifiers(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
