package llm

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/astproof/internal/extract"
)

// fakeProvider answers from a map keyed by file
type fakeProvider struct {
	mu      sync.Mutex
	replies map[string][]string
	seen    []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeProvider) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req.Source)
	f.mu.Unlock()

	ids, ok := f.replies[req.File]
	if !ok {
		return nil, ErrNoIdentifiers
	}
	return &PredictResponse{Identifiers: ids, TokensUsed: 10}, nil
}

func writeFiles(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	root := t.TempDir()
	var paths []string
	for _, name := range names {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("// "+name), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}
	return root, paths
}

func TestPredictor_PredictFiles(t *testing.T) {
	root, paths := writeFiles(t, "A.swift", "Sub/B.swift", "C.swift")
	provider := &fakeProvider{replies: map[string][]string{
		"A.swift":     {"a1", "a2"},
		"Sub/B.swift": {"b1"},
	}}

	result, err := NewPredictor(provider, 2, nil).PredictFiles(context.Background(), root, paths)
	if err != nil {
		t.Fatalf("PredictFiles failed: %v", err)
	}

	if len(result.Units) != 2 {
		t.Errorf("Expected 2 units, got %d", len(result.Units))
	}
	if strings.Join(result.Units["Sub/B.swift"], ",") != "b1" {
		t.Errorf("Unexpected Sub/B.swift identifiers: %v", result.Units["Sub/B.swift"])
	}
	if len(result.Failed) != 1 || result.Failed[0].File != "C.swift" {
		t.Fatalf("Expected C.swift to fail, got %v", result.Failed)
	}
	if !errors.Is(result.Failed[0], ErrNoIdentifiers) {
		t.Errorf("Expected failure to wrap ErrNoIdentifiers, got %v", result.Failed[0])
	}
	if result.TokensUsed != 20 {
		t.Errorf("Expected 20 tokens, got %d", result.TokensUsed)
	}
	if len(provider.seen) != 3 || !strings.HasPrefix(provider.seen[0], "// ") {
		t.Errorf("Expected provider to receive file sources, got %v", provider.seen)
	}
}

func TestPredictor_MissingFile(t *testing.T) {
	root := t.TempDir()
	result, err := NewPredictor(&fakeProvider{}, 1, nil).PredictFiles(context.Background(), root, []string{filepath.Join(root, "gone.swift")})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Failed) != 1 {
		t.Errorf("Expected read failure to be recorded, got %v", result.Failed)
	}
}

func TestPredictor_Cancelled(t *testing.T) {
	root, paths := writeFiles(t, "A.swift")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewPredictor(&fakeProvider{}, 1, nil).PredictFiles(ctx, root, paths); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestBatchResult_WriteCandidates(t *testing.T) {
	result := &BatchResult{Units: map[string][]string{
		"A.swift": {"a1", "shared"},
		"B.swift": {"shared", "b1"},
	}}

	var buf bytes.Buffer
	if err := result.WriteCandidates(&buf); err != nil {
		t.Fatal(err)
	}

	cands, err := extract.ParseCandidates(buf.Bytes())
	if err != nil {
		t.Fatalf("Candidate document does not parse: %v", err)
	}
	if !cands.IsPerUnit() {
		t.Error("Expected a per-unit candidate document")
	}
	if got := strings.Join(cands.Merged(), ","); got != "a1,shared,b1" {
		t.Errorf("Unexpected merged candidates: %s", got)
	}
}
