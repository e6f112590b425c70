package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/astproof/internal/cache"
	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/pipeline"
	"github.com/ppiankov/astproof/internal/rules"
	"github.com/ppiankov/astproof/internal/telemetry"
	"github.com/ppiankov/astproof/internal/worker"
)

var (
	runIdentifiers string
	runOutput      string
	runFilesFrom   string
	runNoCache     bool
	runTimeout     time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <project-dir>",
	Short: "Verify candidates against every source file of a project",
	Long: `Run discovers source files under the project directory, runs the AST
analyzer on each file in parallel, and verifies the candidate identifiers
against each file's symbols and the loaded rules.

Analyzer failures and timeouts are recorded per file and never abort the run.

Example:
  astproof run ./MyApp -i candidates.json
  astproof run ./MyApp -i candidates.json --rules rules.yaml -w 8 --markdown
  astproof run ./MyApp -i per_file.json --per-file --files-from changed.txt`,
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd, runFlagKeys) },
	RunE:    runRun,
}

var runFlagKeys = mergeKeys(policyKeys, map[string]string{
	"analyzer":   "analyzer.path",
	"timeout":    "analyzer.timeout",
	"spawn-rate": "analyzer.spawn_rate",
	"workers":    "concurrency.workers",
	"per-file":   "verify.per_file",
	"markdown":   "output.markdown",
	"output-dir": "output.dir",
	"cache-dir":  "cache.dir",
	"extensions": "analyzer.extensions",
	"metrics":    "telemetry.metrics",
	"traces":     "telemetry.traces",
})

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runIdentifiers, "identifiers", "i", "", "candidate identifiers JSON (required)")
	f.StringVarP(&runOutput, "output", "o", "", "report path (default: <output-dir>/verification_<unix>.json)")
	f.StringVar(&runFilesFrom, "files-from", "", "read source paths from a file (one per line) instead of discovering them")
	f.BoolVar(&runNoCache, "no-cache", false, "disable the analyzer output cache")
	f.DurationVar(&runTimeout, "run-timeout", 0, "total timeout for the run (0 = none)")

	f.String("analyzer", "", "AST analyzer executable")
	f.Duration("timeout", 30*time.Second, "analyzer timeout per source file")
	f.Float64("spawn-rate", 0, "analyzer launches per second (0 = unlimited)")
	f.IntP("workers", "w", 0, "files processed in parallel (default: CPU count)")
	f.Bool("per-file", false, "scope per-unit candidates to their own source file")
	f.Bool("markdown", false, "also write a Markdown report next to the JSON report")
	f.String("output-dir", "", "directory for generated reports")
	f.String("cache-dir", "", "analyzer output cache directory")
	f.StringSlice("extensions", nil, "source file extensions to discover")
	f.String("metrics", "", "metrics exporter: none, stdout, prometheus")
	f.String("traces", "", "trace exporter: none, stdout")
	policyFlags(f)

	_ = runCmd.MarkFlagRequired("identifiers")
}

func runRun(cmd *cobra.Command, args []string) error {
	project := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runNoCache {
		cfg.Cache.Enabled = false
	}
	if cfg.Concurrency.Workers <= 0 {
		cfg.Concurrency.Workers = 1
	}
	setColor(cfg.Output.Color)

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tel, err := telemetry.Init(context.Background(), cfg.Telemetry, Version)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	info, err := os.Stat(project)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("project directory not found: %s", project)
	}
	root, err := filepath.Abs(project)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}

	candidates, err := extract.LoadCandidates(runIdentifiers)
	if err != nil {
		return fmt.Errorf("load identifiers: %w", err)
	}
	if len(candidates.Skipped) > 0 {
		logger.Warn("skipped candidate units without an identifier list", zap.Strings("units", candidates.Skipped))
	}

	engine, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	files, err := sourceFiles(root, runFilesFrom, cfg.Analyzer.Extensions)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files found in %s (extensions: %s)", project, strings.Join(cfg.Analyzer.Extensions, ", "))
	}

	p, err := pipeline.NewPipeline(cfg, pipeline.Options{
		Root:       root,
		Engine:     engine,
		Candidates: candidates,
		Logger:     logger,
		Cache:      cache.New(cfg.Cache),
	})
	if err != nil {
		return err
	}
	if err := p.Analyzer().Check(); err != nil {
		return err
	}

	projectName := filepath.Base(root)
	printHeader(os.Stderr, "astproof run: "+projectName)
	fmt.Fprintf(os.Stderr, "  Source files: %d\n", len(files))
	fmt.Fprintf(os.Stderr, "  Candidates:   %d\n", candidates.Len())
	verifier := p.Verifier()
	policy := verifier.Policy()
	fmt.Fprintf(os.Stderr, "  Rules:        %d (%s)\n", verifier.Engine().Len(), cfg.Rules.Path)
	fmt.Fprintf(os.Stderr, "  Policy:       strict=%t duplicates=%s min_confidence=%.2f\n", policy.Strict, policy.Duplicates, policy.MinConfidence)
	fmt.Fprintf(os.Stderr, "  Analyzer:     %s\n", cfg.Analyzer.Path)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	if addr := tel.MetricsAddr(); addr != "" {
		fmt.Fprintf(os.Stderr, "  Metrics:      http://%s/metrics\n", addr)
	}
	fmt.Fprintln(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Workers, logger)
	processor.OnProgress(func(done, total int, o *worker.FileOutcome) {
		if !cfg.Output.Verbose {
			return
		}
		rel, _ := filepath.Rel(root, o.Path)
		if o.Error != nil {
			fmt.Fprintf(os.Stderr, "  [%d/%d] %s %s: %v\n", done, total, errorStyle.Sprint("✗"), rel, o.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "  [%d/%d] %s %s (%d exclusions)\n", done, total, okStyle.Sprint("✓"), rel, len(o.Result.Exclusions))
	})

	started := time.Now()
	outcomes := processor.ProcessFiles(ctx, files)
	report := p.BuildRunReport(projectName, started, outcomes, cfg.Concurrency.Workers)

	printRunSummary(os.Stderr, report)

	jsonPath := runOutput
	if jsonPath == "" {
		jsonPath = filepath.Join(cfg.Output.Dir, fmt.Sprintf("verification_%d.json", started.Unix()))
	}
	var mdPath string
	if cfg.Output.Markdown {
		mdPath = strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".md"
	}
	if err := p.WriteRunReport(report, jsonPath, mdPath); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "  Report: %s\n", jsonPath)
	if mdPath != "" {
		fmt.Fprintf(os.Stderr, "  Markdown: %s\n", mdPath)
	}
	fmt.Fprintln(os.Stderr)

	return ctx.Err()
}

// sourceFiles lists the files to process: the paths in listFile when given,
// otherwise every file under root with a configured extension.
func sourceFiles(root, listFile string, extensions []string) ([]string, error) {
	if listFile != "" {
		files, err := worker.ReadFileList(listFile, root)
		if err != nil {
			return nil, fmt.Errorf("read file list: %w", err)
		}
		return files, nil
	}
	return worker.DiscoverFiles(root, extensions)
}
