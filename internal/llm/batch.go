package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FileError records a file whose prediction failed
type FileError struct {
	File string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// BatchResult maps relative source paths to predicted identifiers
type BatchResult struct {
	Units      map[string][]string
	Failed     []FileError
	TokensUsed int
}

// Predictor fans prediction out over source files
type Predictor struct {
	provider Provider
	workers  int
	logger   *zap.Logger
}

// NewPredictor creates a batch predictor running up to workers requests at once
func NewPredictor(provider Provider, workers int, logger *zap.Logger) *Predictor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{provider: provider, workers: workers, logger: logger}
}

// PredictFiles reads and predicts each file. Per-file failures are collected,
// not returned; the error is non-nil only when ctx ends the batch.
func (p *Predictor) PredictFiles(ctx context.Context, root string, files []string) (*BatchResult, error) {
	result := &BatchResult{Units: make(map[string][]string, len(files))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rel := relPath(root, path)
			resp, err := p.predictFile(gctx, path, rel)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("prediction failed", zap.String("file", rel), zap.Error(err))
				result.Failed = append(result.Failed, FileError{File: rel, Err: err})
				return nil
			}
			result.Units[rel] = resp.Identifiers
			result.TokensUsed += resp.TokensUsed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Predictor) predictFile(ctx context.Context, path, rel string) (*PredictResponse, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return p.provider.Predict(ctx, PredictRequest{File: rel, Source: string(source)})
}

// WriteCandidates writes the per-unit candidate document consumed by "run"
func (r *BatchResult) WriteCandidates(w io.Writer) error {
	units := r.Units
	if units == nil {
		units = map[string][]string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(units)
}

func relPath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
