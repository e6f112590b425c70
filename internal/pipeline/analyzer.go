package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/worker"
)

var (
	// ErrAnalyzerFailed marks a non-zero exit or unusable analyzer output
	ErrAnalyzerFailed = errors.New("analyzer failed")
	// ErrAnalyzerTimeout marks an analyzer run that exceeded its timeout
	ErrAnalyzerTimeout = errors.New("analyzer timed out")
)

// maxStderr bounds how much analyzer stderr is quoted in errors
const maxStderr = 512

// Analyzer runs the external AST analyzer, one process per source file
type Analyzer struct {
	path    string
	timeout time.Duration
	limiter *worker.Limiter // optional spawn-rate limit
}

// NewAnalyzer creates a runner for the analyzer executable at path
func NewAnalyzer(path string, timeout time.Duration, limiter *worker.Limiter) *Analyzer {
	return &Analyzer{
		path:    path,
		timeout: timeout,
		limiter: limiter,
	}
}

// Path returns the analyzer executable
func (a *Analyzer) Path() string {
	return a.path
}

// Check verifies the analyzer executable exists and is not a directory
func (a *Analyzer) Check() error {
	info, err := os.Stat(a.path)
	if err != nil {
		return fmt.Errorf("analyzer %s: %w", a.path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("analyzer %s is a directory", a.path)
	}
	return nil
}

// AnalyzeResult is the decoded output of one analyzer run
type AnalyzeResult struct {
	Document *extract.Document
	Raw      []byte // stdout from the first '{'
	Duration time.Duration
}

// Analyze runs the analyzer on one source file. A timeout, a non-zero exit
// and output without a JSON document are all reported as errors wrapping
// ErrAnalyzerTimeout or ErrAnalyzerFailed.
func (a *Analyzer) Analyze(ctx context.Context, sourcePath string) (*AnalyzeResult, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, a.path); err != nil {
			return nil, fmt.Errorf("wait for analyzer slot: %w", err)
		}
	}

	runCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, a.path, sourcePath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s", ErrAnalyzerTimeout, a.timeout)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v%s", ErrAnalyzerFailed, err, stderrTail(stderr.Bytes()))
	}

	raw := bytes.TrimSpace(stdout.Bytes())
	doc, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	return &AnalyzeResult{
		Document: doc,
		Raw:      raw[bytes.IndexByte(raw, '{'):],
		Duration: elapsed,
	}, nil
}

// Decode parses analyzer stdout, mapping decode failures to ErrAnalyzerFailed
func Decode(raw []byte) (*extract.Document, error) {
	doc, err := extract.DecodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalyzerFailed, err)
	}
	return doc, nil
}

func stderrTail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return ""
	}
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return ": " + s
}
