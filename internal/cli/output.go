package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ppiankov/astproof/internal/model"
	"github.com/ppiankov/astproof/internal/validate"
)

var (
	headStyle  = color.New(color.FgCyan, color.Bold)
	okStyle    = color.New(color.FgGreen, color.Bold)
	warnStyle  = color.New(color.FgYellow, color.Bold)
	errorStyle = color.New(color.FgRed, color.Bold)
	dimStyle   = color.New(color.Faint)
)

const rule = "═══════════════════════════════════════════════════════════"

func setColor(enabled bool) {
	if !enabled {
		color.NoColor = true
	}
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %s\n", headStyle.Sprint(title))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}

// printRunSummary writes the run totals the way the batch driver reports them
func printRunSummary(w io.Writer, report *model.RunReport) {
	s := report.Summary

	printHeader(w, "Verification complete")
	fmt.Fprintf(w, "  Files:              %d (%s, %s)\n", report.TotalFiles,
		okStyle.Sprintf("%d ok", report.SuccessFiles), failedText(report.FailedFiles))
	fmt.Fprintf(w, "  Predictions:        %d\n", s.TotalPredictions)
	fmt.Fprintf(w, "  Found in AST:       %d\n", s.FoundInAST)
	fmt.Fprintf(w, "  Rule matched:       %d\n", s.RuleMatched)
	fmt.Fprintf(w, "  Exclusions:         %s (%d unique)\n", okStyle.Sprint(s.Exclusions), len(s.UniqueExclusions))
	fmt.Fprintf(w, "  Hallucination rate: %s\n", rateText(s.HallucinationRate))
	fmt.Fprintf(w, "  Rule match rate:    %s\n", s.RuleMatchRate)
	fmt.Fprintf(w, "  Throughput:         %.2f files/s (%d workers, %.1fs)\n",
		report.FilesPerSecond, report.Workers, report.ProcessingSeconds)
	fmt.Fprintln(w)

	printSignals(w, report.Signals)
}

// printReportSummary writes the totals of a single verification report
func printReportSummary(w io.Writer, report *model.Report) {
	s := report.Summary
	printHeader(w, "Verification report")
	fmt.Fprintf(w, "  Predictions:        %d\n", s.Total)
	fmt.Fprintf(w, "  Found in AST:       %d\n", s.FoundInAST)
	fmt.Fprintf(w, "  Rule matched:       %d\n", s.RuleMatched)
	fmt.Fprintf(w, "  Final exclusions:   %s\n", okStyle.Sprint(s.FinalExclusions))
	fmt.Fprintf(w, "  Hallucination rate: %s\n", rateText(s.HallucinationRate))
	fmt.Fprintf(w, "  Rule match rate:    %s\n", s.RuleMatchRate)
	fmt.Fprintln(w)
}

func printSignals(w io.Writer, signals []model.Signal) {
	for _, sig := range signals {
		fmt.Fprintf(w, "  %s %s\n", severityText(sig.Severity), sig.Description)
	}
	if len(signals) > 0 {
		fmt.Fprintln(w)
	}
}

func printFindings(w io.Writer, findings []validate.Finding) {
	for _, f := range findings {
		var label string
		switch f.Severity {
		case validate.SeverityError:
			label = errorStyle.Sprint("error:  ")
		case validate.SeverityWarning:
			label = warnStyle.Sprint("warning:")
		default:
			label = dimStyle.Sprint("info:   ")
		}
		id := f.RuleID
		if id == "" {
			id = fmt.Sprintf("#%d", f.Index)
		}
		fmt.Fprintf(w, "%s %s %s\n", label, headStyle.Sprint(id), dimStyle.Sprintf("[%s]", f.Code))
		if f.Predicate != "" {
			fmt.Fprintf(w, "          %s\n", f.Predicate)
		}
		fmt.Fprintf(w, "          %s\n", f.Message)
	}
}

func failedText(n int) string {
	if n == 0 {
		return "0 failed"
	}
	return errorStyle.Sprintf("%d failed", n)
}

func rateText(r model.Rate) string {
	switch {
	case !r.Defined:
		return r.String()
	case r.Value >= 0.5:
		return errorStyle.Sprint(r.String())
	case r.Value >= 0.2:
		return warnStyle.Sprint(r.String())
	default:
		return okStyle.Sprint(r.String())
	}
}

func severityText(s model.SignalSeverity) string {
	label := "[" + strings.ToUpper(string(s)) + "]"
	switch s {
	case model.SeverityCritical:
		return errorStyle.Sprint(label)
	case model.SeverityWarning:
		return warnStyle.Sprint(label)
	default:
		return dimStyle.Sprint(label)
	}
}
