package score

import (
	"testing"

	"github.com/ppiankov/astproof/internal/model"
)

func TestScorer_Summarize(t *testing.T) {
	scorer := NewScorer()

	results := []model.FileResult{
		{File: "A.swift", Success: true, TotalPredictions: 4, FoundInAST: 3, RuleMatched: 2, Exclusions: []string{"viewDidLoad", "shared"}},
		{File: "B.swift", Success: true, TotalPredictions: 4, FoundInAST: 3, RuleMatched: 1, Exclusions: []string{"shared"}},
		{File: "C.swift", Success: false, Error: "analyzer timed out", TotalPredictions: 9},
	}

	sum := scorer.Summarize(results)

	if sum.TotalPredictions != 8 {
		t.Errorf("Expected 8 predictions, got %d", sum.TotalPredictions)
	}
	if sum.FoundInAST != 6 {
		t.Errorf("Expected 6 found, got %d", sum.FoundInAST)
	}
	if sum.RuleMatched != 3 {
		t.Errorf("Expected 3 rule matches, got %d", sum.RuleMatched)
	}
	if sum.Exclusions != 3 {
		t.Errorf("Expected 3 exclusions, got %d", sum.Exclusions)
	}
	if len(sum.UniqueExclusions) != 2 || sum.UniqueExclusions[0] != "shared" || sum.UniqueExclusions[1] != "viewDidLoad" {
		t.Errorf("Expected sorted unique exclusions [shared viewDidLoad], got %v", sum.UniqueExclusions)
	}
	if got := sum.HallucinationRate.String(); got != "25.0%" {
		t.Errorf("Expected hallucination rate 25.0%%, got %s", got)
	}
	if got := sum.RuleMatchRate.String(); got != "50.0%" {
		t.Errorf("Expected rule match rate 50.0%%, got %s", got)
	}
}

func TestScorer_Summarize_Empty(t *testing.T) {
	sum := NewScorer().Summarize(nil)

	if sum.HallucinationRate.Defined || sum.RuleMatchRate.Defined {
		t.Error("Expected undefined rates for an empty run")
	}
	if sum.UniqueExclusions == nil {
		t.Error("Expected empty, non-nil unique exclusions")
	}
}

func findSignal(signals []model.Signal, typ model.SignalType) (model.Signal, bool) {
	for _, s := range signals {
		if s.Type == typ {
			return s, true
		}
	}
	return model.Signal{}, false
}

func TestScorer_Signals_HallucinationSeverity(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		found    int
		severity model.SignalSeverity
	}{
		{10, model.SeverityInfo},
		{9, model.SeverityInfo},
		{8, model.SeverityWarning},
		{5, model.SeverityCritical},
		{0, model.SeverityCritical},
	}

	for _, tt := range tests {
		report := &model.RunReport{
			TotalFiles:   1,
			SuccessFiles: 1,
			Summary: model.RunSummary{
				TotalPredictions:  10,
				FoundInAST:        tt.found,
				RuleMatched:       tt.found,
				HallucinationRate: model.NewRate(10-tt.found, 10),
				RuleMatchRate:     model.NewRate(tt.found, tt.found),
			},
		}

		sig, ok := findSignal(scorer.Signals(report), model.SignalHallucinationRate)
		if !ok {
			t.Fatalf("Expected hallucination signal for found=%d", tt.found)
		}
		if sig.Severity != tt.severity {
			t.Errorf("found=%d: expected severity %s, got %s", tt.found, tt.severity, sig.Severity)
		}
	}
}

func TestScorer_Signals_RuleCoverage(t *testing.T) {
	scorer := NewScorer()

	low := &model.RunReport{Summary: model.RunSummary{
		TotalPredictions:  10,
		FoundInAST:        10,
		RuleMatched:       2,
		HallucinationRate: model.NewRate(0, 10),
		RuleMatchRate:     model.NewRate(2, 10),
	}}
	if _, ok := findSignal(scorer.Signals(low), model.SignalRuleCoverage); !ok {
		t.Error("Expected rule coverage signal for 20% coverage")
	}

	high := &model.RunReport{Summary: model.RunSummary{
		TotalPredictions:  10,
		FoundInAST:        10,
		RuleMatched:       8,
		HallucinationRate: model.NewRate(0, 10),
		RuleMatchRate:     model.NewRate(8, 10),
	}}
	if _, ok := findSignal(scorer.Signals(high), model.SignalRuleCoverage); ok {
		t.Error("Expected no rule coverage signal for 80% coverage")
	}
}

func TestScorer_Signals_Failures(t *testing.T) {
	scorer := NewScorer()

	report := &model.RunReport{
		TotalFiles:   2,
		SuccessFiles: 0,
		FailedFiles:  2,
		Results: []model.FileResult{
			{File: "A.swift", Error: "exit status 1"},
			{File: "B.swift", Error: "timed out"},
		},
	}

	signals := scorer.Signals(report)

	sig, ok := findSignal(signals, model.SignalAnalyzerFailures)
	if !ok {
		t.Fatal("Expected analyzer failure signal")
	}
	if sig.Severity != model.SeverityCritical {
		t.Errorf("Expected critical severity when every file failed, got %s", sig.Severity)
	}
	if failed, _ := sig.Data["failed_files"].([]string); len(failed) != 2 {
		t.Errorf("Expected 2 failed files in signal data, got %v", sig.Data["failed_files"])
	}

	if _, ok := findSignal(signals, model.SignalNoCandidates); !ok {
		t.Error("Expected no-candidates signal when nothing was verified")
	}
}
