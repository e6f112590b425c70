package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/astproof/internal/llm"
)

var (
	predictOutput    string
	predictFilesFrom string
	predictWorkers   int
)

// predictCmd represents the predict command
var predictCmd = &cobra.Command{
	Use:   "predict <project-dir>",
	Short: "Ask a language model for exclusion candidates",
	Long: `Predict sends each source file of a project to an OpenAI-compatible model
and writes the per-unit candidate document that "run" consumes.

Requests are rate limited per endpoint host and retried on 429 and 5xx
responses. Files whose prediction fails are reported and left out.

Example:
  astproof predict ./MyApp -o candidates.json
  astproof predict ./MyApp --provider ollama --model qwen2.5-coder -o candidates.json`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"provider":   "llm.provider",
			"model":      "llm.model",
			"base-url":   "llm.base_url",
			"extensions": "analyzer.extensions",
		})
	},
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	f := predictCmd.Flags()
	f.StringVarP(&predictOutput, "output", "o", "", "candidate document path (default: stdout)")
	f.StringVar(&predictFilesFrom, "files-from", "", "read source paths from a file (one per line) instead of discovering them")
	f.IntVar(&predictWorkers, "workers", 2, "concurrent model requests")
	f.String("provider", "", "LLM provider: openai, ollama")
	f.String("model", "", "model name")
	f.String("base-url", "", "custom OpenAI-compatible endpoint")
	f.StringSlice("extensions", nil, "source file extensions to discover")
}

func runPredict(cmd *cobra.Command, args []string) (err error) {
	project := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setColor(cfg.Output.Color)

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM), logger)
	if err != nil {
		return err
	}
	if provider == nil {
		return fmt.Errorf("no LLM provider configured (set llm.provider or --provider)")
	}

	info, err := os.Stat(project)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("project directory not found: %s", project)
	}
	root, err := filepath.Abs(project)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}

	files, err := sourceFiles(root, predictFilesFrom, cfg.Analyzer.Extensions)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files found in %s", project)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !provider.IsAvailable(ctx) {
		logger.Warn("LLM endpoint did not answer the availability check, trying anyway",
			zap.String("provider", provider.Name()))
	}

	printHeader(os.Stderr, "astproof predict: "+filepath.Base(root))
	fmt.Fprintf(os.Stderr, "  Source files: %d\n", len(files))
	fmt.Fprintf(os.Stderr, "  Provider:     %s (%s)\n", provider.Name(), cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n\n", predictWorkers)

	started := time.Now()
	result, err := llm.NewPredictor(provider, predictWorkers, logger).PredictFiles(ctx, root, files)
	if err != nil {
		return err
	}

	out := os.Stdout
	if predictOutput != "" {
		if dir := filepath.Dir(predictOutput); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
		var f *os.File
		f, err = os.Create(predictOutput)
		if err != nil {
			return fmt.Errorf("create candidate document: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close candidate document: %w", closeErr)
			}
		}()
		out = f
	}
	if err := result.WriteCandidates(out); err != nil {
		return fmt.Errorf("write candidates: %w", err)
	}

	total := 0
	for _, ids := range result.Units {
		total += len(ids)
	}
	fmt.Fprintf(os.Stderr, "  Predicted:    %d identifiers in %d files\n", total, len(result.Units))
	fmt.Fprintf(os.Stderr, "  Failed:       %s\n", failedText(len(result.Failed)))
	fmt.Fprintf(os.Stderr, "  Tokens used:  %d\n", result.TokensUsed)
	fmt.Fprintf(os.Stderr, "  Duration:     %.1fs\n", time.Since(started).Seconds())
	if len(result.Failed) > 0 {
		sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].File < result.Failed[j].File })
		for _, fe := range result.Failed {
			fmt.Fprintf(os.Stderr, "    %s %s\n", errorStyle.Sprint("✗"), fe.Error())
		}
	}
	if predictOutput != "" {
		fmt.Fprintf(os.Stderr, "  Candidates:   %s\n", predictOutput)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}
