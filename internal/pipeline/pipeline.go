package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/astproof/internal/cache"
	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/model"
	"github.com/ppiankov/astproof/internal/rules"
	"github.com/ppiankov/astproof/internal/score"
	"github.com/ppiankov/astproof/internal/verify"
	"github.com/ppiankov/astproof/internal/worker"
)

// Options are the run inputs that do not come from configuration
type Options struct {
	Root       string // project root; file results are reported relative to it
	Engine     *rules.Engine
	Candidates *extract.Candidates
	Logger     *zap.Logger
	Cache      cache.Cache // nil disables caching

	// Telemetry providers; nil uses the otel globals
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Pipeline analyzes and verifies one source file at a time. It is safe for
// concurrent use by the batch processor.
type Pipeline struct {
	analyzer   *Analyzer
	verifier   *verify.Verifier
	candidates *extract.Candidates
	cache      cache.Cache
	scorer     *score.Scorer
	renderer   *Renderer
	metrics    *instruments
	logger     *zap.Logger
	root       string
	config     *model.Config
}

// PolicyFromConfig converts the verify section into a verifier policy
func PolicyFromConfig(cfg model.VerifyConfig) (verify.Policy, error) {
	dup, err := verify.ParseDuplicatePolicy(cfg.Duplicates)
	if err != nil {
		return verify.Policy{}, err
	}
	policy := verify.Policy{
		MinConfidence: cfg.MinConfidence,
		Strict:        cfg.Strict,
		Duplicates:    dup,
	}
	if err := policy.Validate(); err != nil {
		return verify.Policy{}, err
	}
	return policy, nil
}

// NewPipeline creates a pipeline from configuration and run inputs
func NewPipeline(cfg *model.Config, opts Options) (*Pipeline, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("rule engine is required")
	}
	if opts.Candidates == nil {
		return nil, fmt.Errorf("candidates are required")
	}

	policy, err := PolicyFromConfig(cfg.Verify)
	if err != nil {
		return nil, fmt.Errorf("verify policy: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics, err := newInstruments(opts.MeterProvider, opts.TracerProvider)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	var limiter *worker.Limiter
	if cfg.Analyzer.SpawnRate > 0 {
		limiter = worker.NewLimiter(cfg.Analyzer.SpawnRate, cfg.Concurrency.Workers)
	}

	return &Pipeline{
		analyzer:   NewAnalyzer(cfg.Analyzer.Path, cfg.Analyzer.Timeout, limiter),
		verifier:   verify.New(opts.Engine, policy),
		candidates: opts.Candidates,
		cache:      opts.Cache,
		scorer:     score.NewScorer(),
		renderer:   NewRenderer(),
		metrics:    metrics,
		logger:     logger,
		root:       opts.Root,
		config:     cfg,
	}, nil
}

// Analyzer returns the analyzer runner
func (p *Pipeline) Analyzer() *Analyzer {
	return p.analyzer
}

// Verifier returns the verifier
func (p *Pipeline) Verifier() *verify.Verifier {
	return p.verifier
}

// ProcessFile runs the analyzer on one file and verifies its candidates.
// On failure the returned result records the error and Success is false.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*model.FileResult, error) {
	rel := p.relative(path)
	ctx, span := p.metrics.startFileSpan(ctx, rel)
	defer span.End()

	result := &model.FileResult{File: rel}
	defer func() {
		setFileSpanResult(span, result)
		p.metrics.recordFile(ctx, result.Success, result.Cached)
	}()

	doc, cached, err := p.document(ctx, path)
	if err != nil {
		span.RecordError(err)
		result.Error = err.Error()
		return result, fmt.Errorf("%s: %w", rel, err)
	}
	result.Cached = cached

	identifiers := p.identifiersFor(rel)
	idx := p.verifier.BuildSymbolIndex(doc)
	if n := idx.Duplicates(); n > 0 {
		p.logger.Debug("duplicate symbol names",
			zap.String("file", rel),
			zap.Int("duplicates", n),
			zap.String("policy", string(p.verifier.Policy().Duplicates)))
	}

	results, err := p.verifier.VerifyIndexParallel(ctx, idx, identifiers, p.config.Concurrency.VerifyWorkers)
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("%s: verify: %w", rel, err)
	}
	p.metrics.recordVerdicts(ctx, results)

	report := p.verifier.GenerateReport(results)
	result.Success = true
	result.Exclusions = report.Exclusions
	result.TotalPredictions = report.Summary.Total
	result.FoundInAST = report.Summary.FoundInAST
	result.RuleMatched = report.Summary.RuleMatched
	result.Details = report.Details

	p.logger.Debug("file verified",
		zap.String("file", rel),
		zap.Bool("cached", cached),
		zap.Int("symbols", idx.Len()),
		zap.Int("predictions", result.TotalPredictions),
		zap.Int("exclusions", len(result.Exclusions)))

	return result, nil
}

// document returns the AST document of a file, from cache when unchanged
func (p *Pipeline) document(ctx context.Context, path string) (*extract.Document, bool, error) {
	var key string
	if p.cache != nil {
		if info, err := os.Stat(path); err == nil {
			key = cache.FileKey(path, info, p.analyzer.Path())
			if raw, ok := p.cache.Get(key); ok {
				if doc, err := extract.DecodeDocument(raw); err == nil {
					p.metrics.recordCacheLookup(ctx, true)
					return doc, true, nil
				}
				_ = p.cache.Delete(key)
			}
			p.metrics.recordCacheLookup(ctx, false)
		}
	}

	res, err := p.analyzer.Analyze(ctx, path)
	if err != nil {
		p.metrics.recordAnalyze(ctx, 0, false)
		return nil, false, err
	}
	p.metrics.recordAnalyze(ctx, res.Duration, true)

	if key != "" {
		if err := p.cache.Set(key, res.Raw, 0); err != nil {
			p.logger.Warn("cache write failed", zap.String("file", path), zap.Error(err))
		}
	}
	return res.Document, false, nil
}

// identifiersFor returns the candidates verified against one file: the merged
// list by default, or the file's own unit when per-file scoping is on.
func (p *Pipeline) identifiersFor(rel string) []string {
	if p.config.Verify.PerFile {
		return p.candidates.ForUnit(rel)
	}
	return p.candidates.Merged()
}

func (p *Pipeline) relative(path string) string {
	if p.root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// BuildRunReport assembles the run report from per-file outcomes. Results
// are sorted by file.
func (p *Pipeline) BuildRunReport(project string, started time.Time, outcomes []*worker.FileOutcome, workers int) *model.RunReport {
	elapsed := time.Since(started)

	report := &model.RunReport{
		RunID:             uuid.NewString(),
		Project:           project,
		StartedAt:         started.UTC(),
		TotalFiles:        len(outcomes),
		ProcessingSeconds: elapsed.Seconds(),
		Workers:           workers,
		Results:           make([]model.FileResult, 0, len(outcomes)),
	}

	for _, o := range outcomes {
		r := o.Result
		if r == nil {
			r = &model.FileResult{File: p.relative(o.Path)}
			if o.Error != nil {
				r.Error = o.Error.Error()
			}
		}
		if r.Success {
			report.SuccessFiles++
		} else {
			report.FailedFiles++
		}
		report.Results = append(report.Results, *r)
	}
	sortResults(report.Results)

	if elapsed > 0 {
		report.FilesPerSecond = float64(report.TotalFiles) / elapsed.Seconds()
	}
	report.Summary = p.scorer.Summarize(report.Results)
	report.Signals = p.scorer.Signals(report)
	return report
}

// WriteRunReport renders the run report as JSON and optionally Markdown
func (p *Pipeline) WriteRunReport(report *model.RunReport, jsonPath, mdPath string) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		p.logger.Info("wrote report", zap.String("path", jsonPath))
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(report, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		p.logger.Info("wrote markdown", zap.String("path", mdPath))
	}

	return nil
}
