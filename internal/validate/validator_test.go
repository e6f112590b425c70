package validate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/rules"
)

const lintRules = `
rules:
  - id: OBJC_METHOD
    pattern:
      - find:
          target: M
      - where:
          - M.attributes contains_any ['@objc']
  - id: BROKEN
    pattern:
      - find:
          target: M
      - where:
          - M.attributes contains_any
          - M.name == 'ok'
  - id: WEIRD_KIND
    pattern:
      - find:
          target: X
      - where:
          - X.name == 'foo'
  - id: OBJC_METHOD
    pattern:
      - find:
          target: S
  - pattern:
      - where:
          - S.isIBAction == true
  - id: LIST_QUIRKS
    pattern:
      - find:
          target: M
      - where:
          - M.modifiers in ['override']
          - M.attributes == '@objc'
          - S.name != 'x'
`

func mustRules(t *testing.T, doc string) []rules.Rule {
	t.Helper()
	rs, err := rules.ParseRules([]byte(doc))
	if err != nil {
		t.Fatalf("Failed to parse rules: %v", err)
	}
	return rs
}

func codesFor(findings []Finding, index int) []string {
	var codes []string
	for _, f := range findings {
		if f.Index == index {
			codes = append(codes, f.Code)
		}
	}
	return codes
}

func TestValidator_Validate(t *testing.T) {
	findings, err := NewValidator(nil, 4).Validate(context.Background(), mustRules(t, lintRules))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	tests := []struct {
		index int
		want  []string
	}{
		{1, nil},
		{2, []string{CodeMalformedPredicate}},
		{3, []string{CodeUnrecognizedKind}},
		{4, []string{CodeDuplicateID, CodeNoPredicates}},
		{5, []string{CodeMissingID, CodeUnknownField}},
		{6, []string{CodeListMembership, CodeListEquality, CodeTargetMismatch}},
	}

	for _, tt := range tests {
		got := codesFor(findings, tt.index)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Rule #%d: expected %v, got %v", tt.index, tt.want, got)
		}
	}
}

func TestValidator_GroupedInDocumentOrder(t *testing.T) {
	findings, err := NewValidator(nil, 2).Validate(context.Background(), mustRules(t, lintRules))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(findings); i++ {
		if findings[i].Index < findings[i-1].Index {
			t.Fatalf("Findings out of order at %d: %d after %d", i, findings[i].Index, findings[i-1].Index)
		}
	}
}

func TestValidator_Severities(t *testing.T) {
	findings, _ := NewValidator(nil, 0).Validate(context.Background(), mustRules(t, lintRules))

	counts := Count(findings)
	if counts.Errors != 4 {
		t.Errorf("Expected 4 errors, got %d", counts.Errors)
	}
	if counts.Warnings != 3 {
		t.Errorf("Expected 3 warnings, got %d", counts.Warnings)
	}
	if counts.Infos != 2 {
		t.Errorf("Expected 2 infos, got %d", counts.Infos)
	}
	if !HasErrors(findings) {
		t.Error("Expected HasErrors to be true")
	}
}

func TestValidator_CleanRules(t *testing.T) {
	doc := `
- id: OBJC
  pattern:
    - find:
        target: M
    - where:
        - M.attributes contains_any ['@objc']
        - M.parent.name == 'AppDelegate'
`
	findings, err := NewValidator(nil, 0).Validate(context.Background(), mustRules(t, doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 0 {
		t.Errorf("Expected no findings, got %v", findings)
	}
	if HasErrors(findings) {
		t.Error("Expected HasErrors to be false")
	}
}

func TestValidator_KnownFields(t *testing.T) {
	doc := `
- id: IBACTION
  pattern:
    - find:
        target: M
    - where:
        - M.isIBAction == true
        - M.objc_selector == 'tap:'
`
	rs := mustRules(t, doc)

	findings, _ := NewValidator(nil, 0).Validate(context.Background(), rs)
	if n := len(codesFor(findings, 1)); n != 2 {
		t.Fatalf("Expected 2 unknown-field findings, got %d", n)
	}

	fields := NewFieldClassifier([]string{"isIBAction", "^objc_.*$"})
	findings, _ = NewValidator(fields, 0).Validate(context.Background(), rs)
	if len(findings) != 0 {
		t.Errorf("Expected configured fields to be accepted, got %v", findings)
	}
}

func TestValidator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewValidator(nil, 1).Validate(ctx, mustRules(t, lintRules)); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestValidator_Empty(t *testing.T) {
	findings, err := NewValidator(nil, 0).Validate(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if findings == nil || len(findings) != 0 {
		t.Errorf("Expected empty non-nil findings, got %v", findings)
	}
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(lintRules), 0644); err != nil {
		t.Fatal(err)
	}

	findings, err := ValidateFile(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("ValidateFile failed: %v", err)
	}
	if !HasErrors(findings) {
		t.Error("Expected errors for the lint fixture")
	}

	if _, err := ValidateFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFinding_String(t *testing.T) {
	f := Finding{Index: 3, Severity: SeverityError, Code: CodeMissingID, Message: "rule has no id"}
	if got := f.String(); got != "error #3 [missing-id]: rule has no id" {
		t.Errorf("Unexpected string: %s", got)
	}

	f = Finding{RuleID: "A", Index: 1, Predicate: "M.x == 1", Severity: SeverityWarning, Code: CodeUnknownField, Message: "m"}
	if got := f.String(); got != `warning A [unknown-field] "M.x == 1": m` {
		t.Errorf("Unexpected string: %s", got)
	}
}

func TestFieldClassifier(t *testing.T) {
	c := NewFieldClassifier([]string{"line", "^is[A-Z].*", "bad(regex"})

	tests := []struct {
		key  string
		want FieldTier
	}{
		{"symbol_name", FieldCanonical},
		{"inherits", FieldCanonical},
		{"parent_type", FieldCanonical},
		{"line", FieldKnown},
		{"isIBAction", FieldKnown},
		{"bad(regex", FieldKnown},
		{"island", FieldUnknown},
		{"column", FieldUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := c.Classify(tt.key); got != tt.want {
				t.Errorf("Expected %v for %s, got %v", tt.want, tt.key, got)
			}
		})
	}
}

func TestFieldClassifier_Learn(t *testing.T) {
	doc, err := extract.DecodeDocument([]byte(`{"symbols": [{"symbol_name": "a", "line": 3, "is_override": true}]}`))
	if err != nil {
		t.Fatal(err)
	}

	c := NewFieldClassifier(nil)
	if c.Classify("line") != FieldUnknown {
		t.Error("Expected line to be unknown before learning")
	}
	c.Learn(doc)
	if c.Classify("line") != FieldKnown || c.Classify("is_override") != FieldKnown {
		t.Error("Expected document keys to be known after learning")
	}
}

func TestVariableOf(t *testing.T) {
	tests := map[string]string{
		"M.attributes contains_any ['@objc']": "M",
		"S.kind==method":                      "S",
		"name == 'x'":                         "",
		"":                                    "",
	}
	for src, want := range tests {
		if got := variableOf(src); got != want {
			t.Errorf("variableOf(%q) = %q, want %q", src, got, want)
		}
	}
}
