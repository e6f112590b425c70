package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/pipeline"
	"github.com/ppiankov/astproof/internal/rules"
	"github.com/ppiankov/astproof/internal/verify"
)

var (
	verifyAST         string
	verifyIdentifiers string
	verifyUnit        string
	verifyOutput      string
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify candidates against one analyzer output document",
	Long: `Verify checks candidate identifiers against a single AST document that was
produced by the analyzer ahead of time, and writes the verification report.

With a per-unit candidate document, --unit selects the list for one source
file; otherwise every list is merged.

Example:
  astproof verify --ast ast.json -i candidates.json
  astproof verify --ast ast.json -i per_file.json --unit Sources/App/View.swift -o report.json
  astproof verify --ast ast.json -i candidates.json --strict=false --min-confidence 0.5`,
	Args:    cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd, policyKeys) },
	RunE:    runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	f := verifyCmd.Flags()
	f.StringVar(&verifyAST, "ast", "", "analyzer output document (required)")
	f.StringVarP(&verifyIdentifiers, "identifiers", "i", "", "candidate identifiers JSON (required)")
	f.StringVar(&verifyUnit, "unit", "", "source unit to select from a per-unit candidate document")
	f.StringVarP(&verifyOutput, "output", "o", "", "report path (default: stdout)")
	policyFlags(f)

	_ = verifyCmd.MarkFlagRequired("ast")
	_ = verifyCmd.MarkFlagRequired("identifiers")
}

func runVerify(cmd *cobra.Command, args []string) (err error) {
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

	engine, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	doc, err := extract.LoadDocument(verifyAST)
	if err != nil {
		return fmt.Errorf("load AST: %w", err)
	}
	candidates, err := extract.LoadCandidates(verifyIdentifiers)
	if err != nil {
		return fmt.Errorf("load identifiers: %w", err)
	}

	identifiers := candidates.Merged()
	if verifyUnit != "" {
		identifiers = candidates.ForUnit(verifyUnit)
		if identifiers == nil {
			return fmt.Errorf("no candidates for unit %s", verifyUnit)
		}
	}

	policy, err := pipeline.PolicyFromConfig(cfg.Verify)
	if err != nil {
		return err
	}

	logger.Debug("verifying candidates",
		zap.String("ast", verifyAST),
		zap.Int("symbols", doc.Len()),
		zap.Int("candidates", len(identifiers)),
		zap.Int("rules", engine.Len()),
		zap.Bool("strict", policy.Strict))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier := verify.New(engine, policy)
	results, err := verifier.VerifyParallel(ctx, doc, identifiers, cfg.Concurrency.VerifyWorkers)
	if err != nil {
		return err
	}
	report := verifier.GenerateReport(results)

	if verifyOutput == "" {
		printReportSummary(os.Stderr, report)
		return report.WriteJSON(os.Stdout)
	}

	if dir := filepath.Dir(verifyOutput); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(verifyOutput)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close report: %w", closeErr)
		}
	}()
	if err := report.WriteJSON(f); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	printReportSummary(os.Stderr, report)
	fmt.Fprintf(os.Stderr, "  Report: %s\n\n", verifyOutput)
	return nil
}
