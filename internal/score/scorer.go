package score

import (
	"fmt"
	"sort"

	"github.com/ppiankov/astproof/internal/model"
)

// Thresholds for run-level signals
const (
	HallucinationWarning  = 0.2
	HallucinationCritical = 0.5
	RuleCoverageWarning   = 0.5
)

// Scorer aggregates per-file results into run totals and diagnostic signals
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Summarize sums the counters of successful files. Failed files contribute
// nothing. Unique exclusions are sorted.
func (s *Scorer) Summarize(results []model.FileResult) model.RunSummary {
	var summary model.RunSummary
	unique := make(map[string]bool)

	for _, r := range results {
		if !r.Success {
			continue
		}
		summary.TotalPredictions += r.TotalPredictions
		summary.FoundInAST += r.FoundInAST
		summary.RuleMatched += r.RuleMatched
		summary.Exclusions += len(r.Exclusions)
		for _, id := range r.Exclusions {
			unique[id] = true
		}
	}

	summary.UniqueExclusions = make([]string, 0, len(unique))
	for id := range unique {
		summary.UniqueExclusions = append(summary.UniqueExclusions, id)
	}
	sort.Strings(summary.UniqueExclusions)

	summary.HallucinationRate = model.NewRate(summary.TotalPredictions-summary.FoundInAST, summary.TotalPredictions)
	summary.RuleMatchRate = model.NewRate(summary.RuleMatched, summary.FoundInAST)
	return summary
}

// Signals derives diagnostics from a finished run report
func (s *Scorer) Signals(report *model.RunReport) []model.Signal {
	var signals []model.Signal

	if report.FailedFiles > 0 {
		signals = append(signals, s.analyzerFailures(report))
	}

	sum := report.Summary
	if sum.TotalPredictions == 0 {
		return append(signals, model.Signal{
			Type:        model.SignalNoCandidates,
			Severity:    model.SeverityWarning,
			Description: "No candidate identifiers were verified",
			Data: map[string]any{
				"success_files": report.SuccessFiles,
			},
		})
	}

	signals = append(signals, s.hallucination(sum))
	if sig, ok := s.ruleCoverage(sum); ok {
		signals = append(signals, sig)
	}
	return signals
}

func (s *Scorer) analyzerFailures(report *model.RunReport) model.Signal {
	severity := model.SeverityWarning
	if report.SuccessFiles == 0 {
		severity = model.SeverityCritical
	}

	var failed []string
	for _, r := range report.Results {
		if !r.Success {
			failed = append(failed, r.File)
		}
	}

	return model.Signal{
		Type:        model.SignalAnalyzerFailures,
		Severity:    severity,
		Description: fmt.Sprintf("Analyzer failed on %d of %d files", report.FailedFiles, report.TotalFiles),
		Data: map[string]any{
			"failed_files": failed,
		},
	}
}

func (s *Scorer) hallucination(sum model.RunSummary) model.Signal {
	rate := sum.HallucinationRate.Value

	severity := model.SeverityInfo
	if rate >= HallucinationCritical {
		severity = model.SeverityCritical
	} else if rate >= HallucinationWarning {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalHallucinationRate,
		Severity:    severity,
		Description: fmt.Sprintf("%s of predicted identifiers do not exist in the AST", sum.HallucinationRate),
		Data: map[string]any{
			"predictions":  sum.TotalPredictions,
			"found_in_ast": sum.FoundInAST,
			"rate":         rate,
			"formula":      "(predictions - found_in_ast) / predictions",
		},
	}
}

// ruleCoverage is only reported when found symbols exist and coverage is low
func (s *Scorer) ruleCoverage(sum model.RunSummary) (model.Signal, bool) {
	if !sum.RuleMatchRate.Defined || sum.RuleMatchRate.Value >= RuleCoverageWarning {
		return model.Signal{}, false
	}
	return model.Signal{
		Type:        model.SignalRuleCoverage,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("Only %s of AST-backed candidates matched a rule", sum.RuleMatchRate),
		Data: map[string]any{
			"found_in_ast": sum.FoundInAST,
			"rule_matched": sum.RuleMatched,
			"rate":         sum.RuleMatchRate.Value,
			"formula":      "rule_matched / found_in_ast",
		},
	}, true
}
