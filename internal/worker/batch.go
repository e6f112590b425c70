package worker

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/astproof/internal/model"
)

// FileProcessor verifies the candidates of one source file
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) (*model.FileResult, error)
}

// FileJob represents one source file to process
type FileJob struct {
	Path      string
	Processor FileProcessor
}

// Execute runs the processor on the file
func (j *FileJob) Execute(ctx context.Context) Result {
	result, err := j.Processor.ProcessFile(ctx, j.Path)
	return &FileOutcome{
		Path:   j.Path,
		Result: result,
		Error:  err,
	}
}

// FileOutcome is the result of a file job
type FileOutcome struct {
	Path   string
	Result *model.FileResult
	Error  error
}

// GetError returns the error from the file outcome
func (r *FileOutcome) GetError() error {
	return r.Error
}

// ProgressFunc is called once per finished file
type ProgressFunc func(done, total int, outcome *FileOutcome)

// BatchProcessor processes many source files concurrently
type BatchProcessor struct {
	processor   FileProcessor
	concurrency int
	logger      *zap.Logger
	progress    ProgressFunc
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(processor FileProcessor, concurrency int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		processor:   processor,
		concurrency: concurrency,
		logger:      logger,
	}
}

// OnProgress registers a progress callback
func (b *BatchProcessor) OnProgress(fn ProgressFunc) {
	b.progress = fn
}

// ProcessFiles processes the files and returns one outcome per path, in input order
func (b *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) []*FileOutcome {
	if len(paths) == 0 {
		return []*FileOutcome{}
	}

	pool := NewPool(ctx, b.concurrency)
	total := len(paths)
	pool.Observe(func(done int, r Result) {
		outcome := r.(*FileOutcome)
		if outcome.Error != nil {
			b.logger.Warn("file failed", zap.String("file", outcome.Path), zap.Error(outcome.Error))
		} else {
			b.logger.Debug("file done", zap.String("file", outcome.Path), zap.Int("done", done), zap.Int("total", total))
		}
		if b.progress != nil {
			b.progress(done, total, outcome)
		}
	})
	pool.Start()

	for _, path := range paths {
		if !pool.Submit(&FileJob{Path: path, Processor: b.processor}) {
			break
		}
	}

	results := pool.Wait()

	outcomes := make([]*FileOutcome, len(paths))
	for i, path := range paths {
		if i < len(results) && results[i] != nil {
			outcomes[i] = results[i].(*FileOutcome)
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		outcomes[i] = &FileOutcome{Path: path, Error: fmt.Errorf("not processed: %w", err)}
	}
	return outcomes
}

// DiscoverFiles walks root and returns the files whose extension is listed,
// sorted. Hidden directories such as .git or .build are skipped.
func DiscoverFiles(root string, extensions []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat project: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project %s is not a directory", root)
	}

	want := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		want[ext] = true
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if want[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk project: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// ReadFileList reads source paths from a file (one per line). Blank lines and
// '#' comments are skipped, duplicates dropped, and relative paths resolved
// against base.
func ReadFileList(filePath, base string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) && base != "" {
			line = filepath.Join(base, line)
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
