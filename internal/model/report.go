package model

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Report is the aggregate verification report for one batch of candidates
type Report struct {
	Summary    Summary  `json:"summary"`
	Exclusions []string `json:"exclusions"`
	Details    []Detail `json:"details"`
}

// Summary holds the report counters and derived rates
type Summary struct {
	Total             int  `json:"total_llm_predictions"`
	FoundInAST        int  `json:"found_in_ast"`
	RuleMatched       int  `json:"rule_matched"`
	FinalExclusions   int  `json:"final_exclusions"`
	HallucinationRate Rate `json:"hallucination_rate"` // (total - found) / total
	RuleMatchRate     Rate `json:"rule_match_rate"`    // matched / found
}

// Detail mirrors one VerificationResult in the report
type Detail struct {
	Identifier    string   `json:"identifier"`
	FoundInAST    bool     `json:"found_in_ast"`
	RuleMatched   bool     `json:"rule_matched"`
	MatchedRules  []string `json:"matched_rules"`
	FinalDecision bool     `json:"final_decision"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
}

// DetailFrom converts a verification result into its report form
func DetailFrom(r VerificationResult) Detail {
	return Detail{
		Identifier:    r.Identifier,
		FoundInAST:    r.FoundInAST,
		RuleMatched:   r.RuleMatched(),
		MatchedRules:  r.MatchedRuleIDs(),
		FinalDecision: r.FinalDecision,
		Confidence:    r.Confidence,
		Reasoning:     r.Reasoning,
	}
}

// WriteJSON serializes the report with two-space indentation
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// Rate is a ratio whose denominator may be zero.
// An undefined rate serializes as "0%"; a defined one as a percentage with one decimal.
type Rate struct {
	Value   float64 // fraction in [0, 1]
	Defined bool
}

// NewRate computes num/den, leaving the rate undefined when den is zero
func NewRate(num, den int) Rate {
	if den <= 0 {
		return Rate{}
	}
	return Rate{Value: float64(num) / float64(den), Defined: true}
}

// Percent returns the rate as a percentage, 0 when undefined
func (r Rate) Percent() float64 {
	if !r.Defined {
		return 0
	}
	return r.Value * 100
}

func (r Rate) String() string {
	if !r.Defined {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", r.Percent())
}

// MarshalJSON encodes the rate as percentage text
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts the percentage text produced by MarshalJSON
func (r *Rate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	if text == "0%" {
		*r = Rate{}
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
	if err != nil {
		return fmt.Errorf("parse rate %q: %w", text, err)
	}
	*r = Rate{Value: v / 100, Defined: true}
	return nil
}

// FileResult is the outcome of processing one source unit in a run
type FileResult struct {
	File             string   `json:"file"`
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
	Cached           bool     `json:"cached,omitempty"` // analyzer output came from cache
	Exclusions       []string `json:"exclusions,omitempty"`
	TotalPredictions int      `json:"total_predictions"`
	FoundInAST       int      `json:"found_in_ast"`
	RuleMatched      int      `json:"rule_matched"`
	Details          []Detail `json:"details,omitempty"`
}

// RunReport is the persisted result of a project-wide run
type RunReport struct {
	RunID             string       `json:"run_id"`
	Project           string       `json:"project"`
	StartedAt         time.Time    `json:"started_at"`
	TotalFiles        int          `json:"total_files"`
	SuccessFiles      int          `json:"success_files"`
	FailedFiles       int          `json:"failed_files"`
	ProcessingSeconds float64      `json:"processing_time_seconds"`
	FilesPerSecond    float64      `json:"files_per_second"`
	Workers           int          `json:"workers"`
	Summary           RunSummary   `json:"summary"`
	Signals           []Signal     `json:"signals,omitempty"`
	Results           []FileResult `json:"results"`
}

// RunSummary aggregates counters over the successful files of a run
type RunSummary struct {
	TotalPredictions  int      `json:"total_predictions"`
	FoundInAST        int      `json:"found_in_ast"`
	RuleMatched       int      `json:"rule_matched"`
	Exclusions        int      `json:"exclusions"`
	UniqueExclusions  []string `json:"unique_exclusions"`
	HallucinationRate Rate     `json:"hallucination_rate"`
	RuleMatchRate     Rate     `json:"rule_match_rate"`
}

// Signal is a run-level diagnostic derived from the summary
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"` // info, warning, critical
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalHallucinationRate SignalType = "hallucination_rate" // candidates absent from the AST
	SignalRuleCoverage      SignalType = "rule_coverage"      // AST-backed candidates without rule evidence
	SignalAnalyzerFailures  SignalType = "analyzer_failures"  // files the analyzer could not process
	SignalNoCandidates      SignalType = "no_candidates"      // nothing was verified
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
