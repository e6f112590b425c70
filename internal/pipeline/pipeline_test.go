package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/astproof/internal/cache"
	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/model"
	"github.com/ppiankov/astproof/internal/rules"
	"github.com/ppiankov/astproof/internal/verify"
	"github.com/ppiankov/astproof/internal/worker"
)

const pipelineRules = `
rules:
  - id: OBJC_METHOD
    description: Methods exposed to the Objective-C runtime
    pattern:
      - find:
          target: M
      - where:
          - M.attributes contains_any ['@objc']
`

const astOutput = `{"symbols": [
  {"symbol_name": "viewDidLoad", "symbol_kind": "method", "attributes": ["@objc", "override"]},
  {"symbol_name": "helperFunc", "symbol_kind": "method"}
]}`

// countingAnalyzer emits astOutput and appends a line to a counter file per run
func countingAnalyzer(t *testing.T) (path, counter string) {
	t.Helper()
	counter = filepath.Join(t.TempDir(), "runs")
	path = fakeAnalyzer(t, "echo run >> '"+counter+"'\ncat <<'EOF'\n"+astOutput+"\nEOF")
	return path, counter
}

func runCount(t *testing.T, counter string) int {
	t.Helper()
	data, err := os.ReadFile(counter)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "run")
}

func newTestPipeline(t *testing.T, analyzerPath, candidates string, mutate func(*model.Config), c cache.Cache) (*Pipeline, string) {
	t.Helper()

	engine, err := rules.Parse([]byte(pipelineRules))
	if err != nil {
		t.Fatalf("Failed to parse rules: %v", err)
	}
	cands, err := extract.ParseCandidates([]byte(candidates))
	if err != nil {
		t.Fatalf("Failed to parse candidates: %v", err)
	}

	cfg := model.DefaultConfig()
	cfg.Analyzer.Path = analyzerPath
	cfg.Analyzer.Timeout = 5 * time.Second
	cfg.Concurrency.Workers = 2
	if mutate != nil {
		mutate(cfg)
	}

	root := t.TempDir()
	p, err := NewPipeline(cfg, Options{
		Root:       root,
		Engine:     engine,
		Candidates: cands,
		Cache:      c,
	})
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p, root
}

func writeSource(t *testing.T, root, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("// "+rel+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewPipeline_Validation(t *testing.T) {
	engine, _ := rules.Parse([]byte(pipelineRules))
	cands, _ := extract.ParseCandidates([]byte(`{"identifiers": []}`))

	if _, err := NewPipeline(model.DefaultConfig(), Options{Candidates: cands}); err == nil {
		t.Error("Expected error without rule engine")
	}
	if _, err := NewPipeline(model.DefaultConfig(), Options{Engine: engine}); err == nil {
		t.Error("Expected error without candidates")
	}

	cfg := model.DefaultConfig()
	cfg.Verify.Duplicates = "keep-some"
	if _, err := NewPipeline(cfg, Options{Engine: engine, Candidates: cands}); err == nil {
		t.Error("Expected error for unknown duplicate policy")
	}
}

func TestNewPipeline_VerifierFromConfig(t *testing.T) {
	engine, _ := rules.Parse([]byte(pipelineRules))
	cands, _ := extract.ParseCandidates([]byte(`{"identifiers": []}`))

	cfg := model.DefaultConfig()
	cfg.Verify.Strict = false
	cfg.Verify.Duplicates = "keep-all"
	p, err := NewPipeline(cfg, Options{Engine: engine, Candidates: cands})
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	v := p.Verifier()
	if v.Engine() != engine {
		t.Error("Verifier should use the engine passed in Options")
	}
	policy := v.Policy()
	if policy.Strict {
		t.Error("Expected non-strict policy")
	}
	if policy.Duplicates != verify.KeepAll {
		t.Errorf("Expected keep-all, got %s", policy.Duplicates)
	}
}

func TestProcessFile(t *testing.T) {
	path, _ := countingAnalyzer(t)
	p, root := newTestPipeline(t, path, `{"identifiers": ["viewDidLoad", "helperFunc", "ghostMethod"]}`, nil, nil)
	src := writeSource(t, root, "Sources/App/ViewController.swift")

	result, err := p.ProcessFile(context.Background(), src)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if result.File != "Sources/App/ViewController.swift" {
		t.Errorf("Expected path relative to root, got %s", result.File)
	}
	if !result.Success {
		t.Error("Expected success")
	}
	if result.TotalPredictions != 3 || result.FoundInAST != 2 || result.RuleMatched != 1 {
		t.Errorf("Unexpected counters: total=%d found=%d matched=%d",
			result.TotalPredictions, result.FoundInAST, result.RuleMatched)
	}
	if len(result.Exclusions) != 1 || result.Exclusions[0] != "viewDidLoad" {
		t.Errorf("Expected [viewDidLoad], got %v", result.Exclusions)
	}
	if len(result.Details) != 3 {
		t.Fatalf("Expected 3 details, got %d", len(result.Details))
	}
	if result.Details[2].FoundInAST {
		t.Error("ghostMethod must not be found in AST")
	}
}

func TestProcessFile_ParallelVerifyMatchesSequential(t *testing.T) {
	path, _ := countingAnalyzer(t)
	ids := `{"identifiers": ["viewDidLoad", "helperFunc", "ghostMethod", "viewDidLoad"]}`

	seq, root := newTestPipeline(t, path, ids, nil, nil)
	par, _ := newTestPipeline(t, path, ids, func(cfg *model.Config) {
		cfg.Concurrency.VerifyWorkers = 4
	}, nil)
	src := writeSource(t, root, "A.swift")

	want, err := seq.ProcessFile(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	got, err := par.ProcessFile(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Details) != len(want.Details) {
		t.Fatalf("Detail count differs: %d vs %d", len(got.Details), len(want.Details))
	}
	for i := range want.Details {
		if got.Details[i].Identifier != want.Details[i].Identifier ||
			got.Details[i].FinalDecision != want.Details[i].FinalDecision {
			t.Errorf("Detail %d differs: %+v vs %+v", i, got.Details[i], want.Details[i])
		}
	}
}

func TestProcessFile_CacheHit(t *testing.T) {
	path, counter := countingAnalyzer(t)
	c := cache.New(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute})
	p, root := newTestPipeline(t, path, `{"identifiers": ["viewDidLoad"]}`, nil, c)
	src := writeSource(t, root, "A.swift")

	first, err := p.ProcessFile(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.ProcessFile(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}

	if first.Cached {
		t.Error("First run must not be cached")
	}
	if !second.Cached {
		t.Error("Second run should hit the cache")
	}
	if n := runCount(t, counter); n != 1 {
		t.Errorf("Expected analyzer to run once, ran %d times", n)
	}
	if len(second.Exclusions) != 1 {
		t.Errorf("Cached run should give the same verdicts, got %v", second.Exclusions)
	}
}

func TestProcessFile_PerFile(t *testing.T) {
	path, _ := countingAnalyzer(t)
	candidates := `{"A.swift": ["viewDidLoad"], "B.swift": ["ghostMethod", "helperFunc"]}`
	p, root := newTestPipeline(t, path, candidates, func(cfg *model.Config) {
		cfg.Verify.PerFile = true
	}, nil)

	a, err := p.ProcessFile(context.Background(), writeSource(t, root, "A.swift"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.ProcessFile(context.Background(), writeSource(t, root, "B.swift"))
	if err != nil {
		t.Fatal(err)
	}

	if a.TotalPredictions != 1 || len(a.Exclusions) != 1 {
		t.Errorf("A.swift: expected 1 prediction and 1 exclusion, got %d and %v", a.TotalPredictions, a.Exclusions)
	}
	if b.TotalPredictions != 2 || len(b.Exclusions) != 0 {
		t.Errorf("B.swift: expected 2 predictions and no exclusions, got %d and %v", b.TotalPredictions, b.Exclusions)
	}
}

func TestProcessFile_MergedByDefault(t *testing.T) {
	path, _ := countingAnalyzer(t)
	candidates := `{"A.swift": ["viewDidLoad"], "B.swift": ["ghostMethod", "viewDidLoad"]}`
	p, root := newTestPipeline(t, path, candidates, nil, nil)

	result, err := p.ProcessFile(context.Background(), writeSource(t, root, "A.swift"))
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalPredictions != 2 {
		t.Errorf("Expected merged candidates (2), got %d", result.TotalPredictions)
	}
}

func TestProcessFile_AnalyzerFailure(t *testing.T) {
	path := fakeAnalyzer(t, "echo boom >&2\nexit 1")
	p, root := newTestPipeline(t, path, `{"identifiers": ["viewDidLoad"]}`, nil, nil)

	result, err := p.ProcessFile(context.Background(), writeSource(t, root, "A.swift"))
	if !errors.Is(err, ErrAnalyzerFailed) {
		t.Fatalf("Expected ErrAnalyzerFailed, got %v", err)
	}
	if result == nil || result.Success {
		t.Fatal("Expected a failed result")
	}
	if !strings.Contains(result.Error, "boom") {
		t.Errorf("Expected stderr in result error, got %q", result.Error)
	}
}

func TestBuildRunReport(t *testing.T) {
	path, _ := countingAnalyzer(t)
	p, root := newTestPipeline(t, path, `{"identifiers": ["viewDidLoad", "ghostMethod"]}`, nil, nil)

	var outcomes []*worker.FileOutcome
	for _, name := range []string{"Z.swift", "A.swift"} {
		src := writeSource(t, root, name)
		res, err := p.ProcessFile(context.Background(), src)
		outcomes = append(outcomes, &worker.FileOutcome{Path: src, Result: res, Error: err})
	}
	outcomes = append(outcomes, &worker.FileOutcome{
		Path:  filepath.Join(root, "M.swift"),
		Error: context.Canceled,
	})

	report := p.BuildRunReport("Demo", time.Now().Add(-time.Second), outcomes, 2)

	if report.RunID == "" {
		t.Error("Expected a run id")
	}
	if report.TotalFiles != 3 || report.SuccessFiles != 2 || report.FailedFiles != 1 {
		t.Errorf("Unexpected file counts: %d/%d/%d", report.TotalFiles, report.SuccessFiles, report.FailedFiles)
	}

	var files []string
	for _, r := range report.Results {
		files = append(files, r.File)
	}
	if strings.Join(files, ",") != "A.swift,M.swift,Z.swift" {
		t.Errorf("Expected results sorted by file, got %v", files)
	}
	if report.Results[1].Error == "" {
		t.Error("Expected error recorded for unprocessed file")
	}

	s := report.Summary
	if s.TotalPredictions != 4 || s.FoundInAST != 2 || s.Exclusions != 2 {
		t.Errorf("Unexpected summary: %+v", s)
	}
	if len(s.UniqueExclusions) != 1 || s.UniqueExclusions[0] != "viewDidLoad" {
		t.Errorf("Expected unique exclusions [viewDidLoad], got %v", s.UniqueExclusions)
	}
	if s.HallucinationRate.String() != "50.0%" {
		t.Errorf("Expected 50.0%% hallucination rate, got %s", s.HallucinationRate)
	}
	if len(report.Signals) == 0 {
		t.Error("Expected signals for a run with failures and hallucinations")
	}
}

func TestWriteRunReport(t *testing.T) {
	path, _ := countingAnalyzer(t)
	p, root := newTestPipeline(t, path, `{"identifiers": ["viewDidLoad"]}`, nil, nil)

	src := writeSource(t, root, "A.swift")
	res, err := p.ProcessFile(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	report := p.BuildRunReport("Demo", time.Now(), []*worker.FileOutcome{{Path: src, Result: res}}, 1)

	out := filepath.Join(t.TempDir(), "nested", "out")
	jsonPath := filepath.Join(out, "report.json")
	mdPath := filepath.Join(out, "report.md")
	if err := p.WriteRunReport(report, jsonPath, mdPath); err != nil {
		t.Fatalf("WriteRunReport failed: %v", err)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if decoded["project"] != "Demo" {
		t.Errorf("Expected project Demo, got %v", decoded["project"])
	}

	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# Verification report: Demo", "| A.swift | ok |", "- `viewDidLoad`"} {
		if !strings.Contains(string(md), want) {
			t.Errorf("Markdown missing %q", want)
		}
	}
}

func TestMarkdown_EscapesCells(t *testing.T) {
	report := &model.RunReport{
		Project: "Demo",
		Results: []model.FileResult{
			{File: "a|b.swift", Error: "line one\nline two"},
		},
	}

	md := NewRenderer().Markdown(report)
	if !strings.Contains(md, `a\|b.swift`) {
		t.Error("Expected pipe in file name to be escaped")
	}
	if !strings.Contains(md, "failed: line one line two") {
		t.Error("Expected newline in error to be flattened")
	}
	if strings.Contains(md, "## Confirmed exclusions") {
		t.Error("Did not expect exclusions section without exclusions")
	}
}
