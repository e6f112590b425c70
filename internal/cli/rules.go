package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/rules"
	"github.com/ppiankov/astproof/internal/validate"
)

var (
	rulesCheckAST  string
	rulesCheckJSON bool
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and lint rule documents",
	Long: `Inspect and lint the exclusion rule document selected by --rules
(or rules.path in the config file).`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setColor(cfg.Output.Color)

		engine, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}

		printHeader(os.Stdout, fmt.Sprintf("%d rules (%s)", engine.Len(), cfg.Rules.Path))
		for _, r := range engine.Rules() {
			fmt.Printf("  %-32s %-10s %s\n", headStyle.Sprint(r.ID), r.Kind,
				dimStyle.Sprintf("%d predicates", len(r.Predicates)))
			if r.Description != "" {
				fmt.Printf("      %s\n", r.Description)
			}
		}
		fmt.Println()
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one rule with its predicates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setColor(cfg.Output.Color)

		engine, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		r, ok := engine.RuleByID(args[0])
		if !ok {
			return fmt.Errorf("rule not found: %s", args[0])
		}

		printHeader(os.Stdout, r.ID)
		if r.Description != "" {
			fmt.Printf("  %s\n\n", r.Description)
		}
		target := r.Target
		if target == "" {
			target = "S"
		}
		fmt.Printf("  Finds: %s (%s)\n", target, r.Kind)
		if len(r.Predicates) == 0 {
			fmt.Println("  Where: (none, matches every symbol of this kind)")
		} else {
			fmt.Println("  Where:")
			for _, p := range r.Predicates {
				if p.Valid() {
					fmt.Printf("    %s\n", p.String())
					continue
				}
				fmt.Printf("    %s %s\n", p.String(), errorStyle.Sprintf("(never holds: %v)", p.Err()))
			}
		}
		fmt.Println()
		return nil
	},
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Lint the rule document",
	Long: `Check reports problems that never fail rule loading but make rules silently
inert: malformed predicates, unknown find targets, record keys the analyzer
does not produce, and list fields compared with 'in' or '=='.

Extra record keys are learned from --ast (a sample analyzer document) and
from rules.known_fields in the config file.

Exits non-zero when any error-level finding is reported.`,
	Args: cobra.NoArgs,
	RunE: runRulesCheck,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesCheckCmd)

	rulesCheckCmd.Flags().StringVar(&rulesCheckAST, "ast", "", "sample analyzer document to learn extra record keys from")
	rulesCheckCmd.Flags().BoolVar(&rulesCheckJSON, "json", false, "print findings as JSON")
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setColor(cfg.Output.Color)

	fields := validate.NewFieldClassifier(cfg.Rules.KnownFields)
	if rulesCheckAST != "" {
		doc, err := extract.LoadDocument(rulesCheckAST)
		if err != nil {
			return fmt.Errorf("load AST: %w", err)
		}
		fields.Learn(doc)
	}

	findings, err := validate.ValidateFile(context.Background(), cfg.Rules.Path, fields)
	if err != nil {
		return err
	}
	counts := validate.Count(findings)

	if rulesCheckJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Path     string             `json:"path"`
			Counts   validate.Counts    `json:"counts"`
			Findings []validate.Finding `json:"findings"`
		}{cfg.Rules.Path, counts, findings}); err != nil {
			return err
		}
	} else {
		printHeader(os.Stdout, "Rule check: "+cfg.Rules.Path)
		printFindings(os.Stdout, findings)
		if len(findings) > 0 {
			fmt.Println()
		}
		fmt.Printf("  %s, %s, %s\n\n",
			plural(counts.Errors, "error"), plural(counts.Warnings, "warning"), plural(counts.Infos, "info"))
	}

	if counts.Errors > 0 {
		return fmt.Errorf("%s in %s", plural(counts.Errors, "error"), cfg.Rules.Path)
	}
	return nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, strings.TrimSuffix(noun, "s"))
}
