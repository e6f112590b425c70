package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/astproof/internal/model"
)

const instrumentationName = "astproof.pipeline"

// Verdict outcomes used as the "outcome" metric attribute
const (
	outcomeConfirmed     = "confirmed"
	outcomeHallucination = "hallucination"
	outcomeNoRuleMatch   = "no_rule_match"
	outcomeAdvisory      = "advisory"
)

// instruments holds the pipeline's tracer and metric instruments. With the
// default global providers every call is a no-op.
type instruments struct {
	tracer trace.Tracer

	analyzeLatency metric.Float64Histogram
	filesTotal     metric.Int64Counter
	verdictsTotal  metric.Int64Counter
	cacheLookups   metric.Int64Counter
}

// newInstruments creates the instruments from the given providers. Nil
// providers fall back to the otel globals.
func newInstruments(mp metric.MeterProvider, tp trace.TracerProvider) (*instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	meter := mp.Meter(instrumentationName)
	ins := &instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	ins.analyzeLatency, err = meter.Float64Histogram(
		"astproof_analyze_duration_seconds",
		metric.WithDescription("Duration of external analyzer runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("analyze histogram: %w", err)
	}

	ins.filesTotal, err = meter.Int64Counter(
		"astproof_files_total",
		metric.WithDescription("Source files processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("files counter: %w", err)
	}

	ins.verdictsTotal, err = meter.Int64Counter(
		"astproof_verdicts_total",
		metric.WithDescription("Verification verdicts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("verdicts counter: %w", err)
	}

	ins.cacheLookups, err = meter.Int64Counter(
		"astproof_cache_lookups_total",
		metric.WithDescription("Analyzer output cache lookups"),
	)
	if err != nil {
		return nil, fmt.Errorf("cache counter: %w", err)
	}
	return ins, nil
}

func (m *instruments) startFileSpan(ctx context.Context, file string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "Pipeline.ProcessFile",
		trace.WithAttributes(
			attribute.String("astproof.file", file),
		),
	)
}

func setFileSpanResult(span trace.Span, result *model.FileResult) {
	span.SetAttributes(
		attribute.Bool("astproof.success", result.Success),
		attribute.Bool("astproof.cached", result.Cached),
		attribute.Int("astproof.predictions", result.TotalPredictions),
		attribute.Int("astproof.exclusions", len(result.Exclusions)),
	)
}

func (m *instruments) recordAnalyze(ctx context.Context, duration time.Duration, success bool) {
	m.analyzeLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

func (m *instruments) recordFile(ctx context.Context, success, cached bool) {
	m.filesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Bool("cached", cached),
	))
}

func (m *instruments) recordCacheLookup(ctx context.Context, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("hit", hit),
	))
}

func (m *instruments) recordVerdicts(ctx context.Context, results []model.VerificationResult) {
	counts := make(map[string]int64, 4)
	for _, r := range results {
		counts[verdictOutcome(r)]++
	}
	for outcome, n := range counts {
		m.verdictsTotal.Add(ctx, n, metric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func verdictOutcome(r model.VerificationResult) string {
	switch {
	case !r.FoundInAST:
		return outcomeHallucination
	case r.FinalDecision && r.RuleMatched():
		return outcomeConfirmed
	case r.FinalDecision:
		return outcomeAdvisory
	default:
		return outcomeNoRuleMatch
	}
}
