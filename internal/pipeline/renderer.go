package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/astproof/internal/model"
)

// Renderer writes reports to disk
type Renderer struct{}

// NewRenderer creates a renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON writes v as indented JSON, creating parent directories
func (r *Renderer) RenderJSON(v any, path string) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	})
}

// RenderMarkdown writes a human-readable run summary
func (r *Renderer) RenderMarkdown(report *model.RunReport, path string) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, r.Markdown(report))
		return err
	})
}

// Markdown formats a run report
func (r *Renderer) Markdown(report *model.RunReport) string {
	var b strings.Builder
	s := report.Summary

	fmt.Fprintf(&b, "# Verification report: %s\n\n", report.Project)
	fmt.Fprintf(&b, "Run `%s`, started %s.\n\n", report.RunID, report.StartedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Files | %d (%d ok, %d failed) |\n", report.TotalFiles, report.SuccessFiles, report.FailedFiles)
	fmt.Fprintf(&b, "| Predictions | %d |\n", s.TotalPredictions)
	fmt.Fprintf(&b, "| Found in AST | %d |\n", s.FoundInAST)
	fmt.Fprintf(&b, "| Rule matched | %d |\n", s.RuleMatched)
	fmt.Fprintf(&b, "| Exclusions | %d (%d unique) |\n", s.Exclusions, len(s.UniqueExclusions))
	fmt.Fprintf(&b, "| Hallucination rate | %s |\n", s.HallucinationRate)
	fmt.Fprintf(&b, "| Rule match rate | %s |\n", s.RuleMatchRate)
	fmt.Fprintf(&b, "| Throughput | %.2f files/s, %d workers |\n\n", report.FilesPerSecond, report.Workers)

	if len(report.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, sig := range report.Signals {
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", sig.Severity, sig.Type, sig.Description)
		}
		b.WriteString("\n")
	}

	if len(s.UniqueExclusions) > 0 {
		b.WriteString("## Confirmed exclusions\n\n")
		for _, id := range s.UniqueExclusions {
			fmt.Fprintf(&b, "- `%s`\n", id)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Files\n\n")
	b.WriteString("| File | Status | Predictions | Found | Matched | Exclusions |\n|---|---|---|---|---|---|\n")
	for _, res := range report.Results {
		status := "ok"
		if !res.Success {
			status = "failed: " + escapeCell(res.Error)
		} else if res.Cached {
			status = "ok (cached)"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %d |\n",
			escapeCell(res.File), status, res.TotalPredictions, res.FoundInAST, res.RuleMatched, len(res.Exclusions))
	}

	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func sortResults(results []model.FileResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].File < results[j].File
	})
}
