// Package validate lints rule documents. Malformed predicates and unknown
// kind tags never fail rule loading (they simply never match), so this is
// the only place they surface.
package validate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ppiankov/astproof/internal/condition"
	"github.com/ppiankov/astproof/internal/rules"
)

// Severity of a lint finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding codes
const (
	CodeMissingID          = "missing-id"
	CodeDuplicateID        = "duplicate-id"
	CodeMalformedPredicate = "malformed-predicate"
	CodeUnrecognizedKind   = "unrecognized-kind"
	CodeNoPredicates       = "no-predicates"
	CodeUnknownField       = "unknown-field"
	CodeListMembership     = "list-membership"
	CodeListEquality       = "list-equality"
	CodeTargetMismatch     = "target-mismatch"
)

// Finding is one lint result
type Finding struct {
	RuleID    string   `json:"rule_id"`
	Index     int      `json:"index"` // 1-based position in the document
	Predicate string   `json:"predicate,omitempty"`
	Severity  Severity `json:"severity"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
}

func (f Finding) String() string {
	id := f.RuleID
	if id == "" {
		id = fmt.Sprintf("#%d", f.Index)
	}
	if f.Predicate != "" {
		return fmt.Sprintf("%s %s [%s] %q: %s", f.Severity, id, f.Code, f.Predicate, f.Message)
	}
	return fmt.Sprintf("%s %s [%s]: %s", f.Severity, id, f.Code, f.Message)
}

// Validator lints rules concurrently
type Validator struct {
	fields     *FieldClassifier
	maxWorkers int
}

// NewValidator creates a new validator. A nil classifier knows only the
// canonical record keys.
func NewValidator(fields *FieldClassifier, maxWorkers int) *Validator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	if fields == nil {
		fields = NewFieldClassifier(nil)
	}
	return &Validator{
		fields:     fields,
		maxWorkers: maxWorkers,
	}
}

// Validate lints the rules in declaration order. Findings are grouped by rule.
func (v *Validator) Validate(ctx context.Context, rs []rules.Rule) ([]Finding, error) {
	if len(rs) == 0 {
		return []Finding{}, nil
	}

	perRule := make([][]Finding, len(rs))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.maxWorkers)

	for i := range rs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			perRule[idx] = v.validateRule(rs[idx], idx+1)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	identity := identityFindings(rs)
	findings := []Finding{}
	for i := range rs {
		findings = append(findings, identity[i]...)
		findings = append(findings, perRule[i]...)
	}
	return findings, nil
}

// identityFindings reports missing and duplicate ids, keyed by rule position
func identityFindings(rs []rules.Rule) map[int][]Finding {
	out := make(map[int][]Finding)
	first := make(map[string]int, len(rs))

	for i, r := range rs {
		if r.ID == "" {
			out[i] = append(out[i], Finding{
				Index:    i + 1,
				Severity: SeverityError,
				Code:     CodeMissingID,
				Message:  "rule has no id",
			})
			continue
		}
		if prev, dup := first[r.ID]; dup {
			out[i] = append(out[i], Finding{
				RuleID:   r.ID,
				Index:    i + 1,
				Severity: SeverityError,
				Code:     CodeDuplicateID,
				Message:  fmt.Sprintf("id already used by rule #%d", prev+1),
			})
			continue
		}
		first[r.ID] = i
	}
	return out
}

func (v *Validator) validateRule(r rules.Rule, index int) []Finding {
	var findings []Finding
	add := func(pred string, sev Severity, code, msg string) {
		findings = append(findings, Finding{
			RuleID:    r.ID,
			Index:     index,
			Predicate: pred,
			Severity:  sev,
			Code:      code,
			Message:   msg,
		})
	}

	if r.Kind == rules.KindUnrecognized {
		add("", SeverityError, CodeUnrecognizedKind,
			fmt.Sprintf("find target %q is not one of S, M, P, C, E; the rule never matches", r.Target))
	}
	if len(r.Predicates) == 0 {
		scope := "every symbol"
		if r.Kind != rules.KindAny {
			scope = fmt.Sprintf("every %s symbol", r.Kind)
		}
		add("", SeverityInfo, CodeNoPredicates, "rule matches "+scope)
	}

	for _, p := range r.Predicates {
		src := p.String()
		if !p.Valid() {
			add(src, SeverityError, CodeMalformedPredicate, p.Err().Error())
			continue
		}

		key := p.Field()
		if v.fields.Classify(key) == FieldUnknown {
			add(src, SeverityWarning, CodeUnknownField,
				fmt.Sprintf("record key %q is not produced by the analyzer; the predicate never holds", key))
		}

		if IsList(key) {
			switch p.Op() {
			case condition.OpIn:
				add(src, SeverityWarning, CodeListMembership,
					fmt.Sprintf("%q holds a list; 'in' compares whole values and never holds, use contains_any", key))
			case condition.OpEq:
				add(src, SeverityWarning, CodeListEquality,
					fmt.Sprintf("%q holds a list; '==' never holds", key))
			case condition.OpNe:
				add(src, SeverityWarning, CodeListEquality,
					fmt.Sprintf("%q holds a list; '!=' always holds", key))
			}
		}

		if tag := variableOf(src); tag != "" && r.Target != "" && tag != r.Target {
			add(src, SeverityInfo, CodeTargetMismatch,
				fmt.Sprintf("predicate refers to %s but the rule finds %s", tag, r.Target))
		}
	}
	return findings
}

// variableOf returns the variable tag of a predicate's field path ("M" in
// "M.attributes contains_any [...]"), or "" when the path has no tag.
func variableOf(src string) string {
	end := strings.IndexFunc(src, func(r rune) bool {
		return !(r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	if end < 0 {
		end = len(src)
	}
	tag, _, found := strings.Cut(src[:end], ".")
	if !found {
		return ""
	}
	return tag
}

// Counts tallies findings by severity
type Counts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// Count tallies findings by severity
func Count(findings []Finding) Counts {
	var c Counts
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			c.Errors++
		case SeverityWarning:
			c.Warnings++
		default:
			c.Infos++
		}
	}
	return c
}

// HasErrors reports whether any finding is an error
func HasErrors(findings []Finding) bool {
	return Count(findings).Errors > 0
}

// ValidateFile is a convenience for linting a rule document on disk
func ValidateFile(ctx context.Context, path string, fields *FieldClassifier) ([]Finding, error) {
	rs, err := rules.LoadRules(path)
	if err != nil {
		return nil, err
	}
	return NewValidator(fields, 0).Validate(ctx, rs)
}
