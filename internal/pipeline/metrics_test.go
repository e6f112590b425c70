package pipeline

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ppiankov/astproof/internal/cache"
	"github.com/ppiankov/astproof/internal/model"
)

// sumsBy returns the data points of an int64 counter keyed by the joined
// values of the given attributes
func sumsBy(t *testing.T, rm metricdata.ResourceMetrics, name string, keys ...string) map[string]int64 {
	t.Helper()
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected aggregation %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				label := ""
				for i, k := range keys {
					v, _ := dp.Attributes.Value(attribute.Key(k))
					if i > 0 {
						label += ","
					}
					label += k + "=" + v.Emit()
				}
				out[label] += dp.Value
			}
		}
	}
	return out
}

func histogramCount(rm metricdata.ResourceMetrics, name string) uint64 {
	var n uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok && m.Name == name {
				for _, dp := range h.DataPoints {
					n += dp.Count
				}
			}
		}
	}
	return n
}

func TestProcessFile_RecordsTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	path, _ := countingAnalyzer(t)
	c := cache.New(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute})
	p, root := newTestPipeline(t, path, `{"identifiers": ["viewDidLoad", "helperFunc", "ghostMethod"]}`, nil, c)
	metrics, err := newInstruments(mp, tp)
	if err != nil {
		t.Fatalf("newInstruments failed: %v", err)
	}
	p.metrics = metrics
	src := writeSource(t, root, "A.swift")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := p.ProcessFile(ctx, src); err != nil {
			t.Fatalf("ProcessFile #%d failed: %v", i+1, err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	files := sumsBy(t, rm, "astproof_files_total", "success", "cached")
	if files["success=true,cached=false"] != 1 || files["success=true,cached=true"] != 1 {
		t.Errorf("Unexpected files_total: %v", files)
	}

	verdicts := sumsBy(t, rm, "astproof_verdicts_total", "outcome")
	for outcome, want := range map[string]int64{
		"outcome=" + outcomeConfirmed:     2,
		"outcome=" + outcomeNoRuleMatch:   2,
		"outcome=" + outcomeHallucination: 2,
	} {
		if verdicts[outcome] != want {
			t.Errorf("%s: expected %d, got %d (all: %v)", outcome, want, verdicts[outcome], verdicts)
		}
	}

	lookups := sumsBy(t, rm, "astproof_cache_lookups_total", "hit")
	if lookups["hit=false"] != 1 || lookups["hit=true"] != 1 {
		t.Errorf("Unexpected cache lookups: %v", lookups)
	}

	if n := histogramCount(rm, "astproof_analyze_duration_seconds"); n != 1 {
		t.Errorf("Expected one analyzer run recorded, got %d", n)
	}

	ended := spans.Ended()
	if len(ended) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "Pipeline.ProcessFile" {
		t.Errorf("Unexpected span name %q", ended[0].Name())
	}
	found := false
	for _, kv := range ended[1].Attributes() {
		if kv.Key == "astproof.cached" && kv.Value.AsBool() {
			found = true
		}
	}
	if !found {
		t.Error("Second span should carry astproof.cached=true")
	}
}

func TestNewPipeline_DefaultsToGlobalProviders(t *testing.T) {
	path, _ := countingAnalyzer(t)
	p, root := newTestPipeline(t, path, `{"identifiers": ["viewDidLoad"]}`, nil, nil)
	if p.metrics == nil {
		t.Fatal("Expected instruments from the global providers")
	}
	if _, err := p.ProcessFile(context.Background(), writeSource(t, root, "A.swift")); err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
}
