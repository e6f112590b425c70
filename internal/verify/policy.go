package verify

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides which binding wins when a symbol name appears more
// than once in an AST document. Under KeepAll the report summary and the
// exclusion list still count each identifier once; only the details carry one
// entry per binding.
type DuplicatePolicy string

const (
	KeepLast  DuplicatePolicy = "keep-last"  // later entries overwrite earlier ones
	KeepFirst DuplicatePolicy = "keep-first" // the first entry is kept
	KeepAll   DuplicatePolicy = "keep-all"   // every binding is verified separately
)

// ParseDuplicatePolicy accepts keep-last, keep-first or keep-all. Empty means keep-last.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return KeepLast, nil
	case KeepLast, KeepFirst, KeepAll:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (want keep-last, keep-first or keep-all)", s)
	}
}

// Policy is the decision policy of a Verifier
type Policy struct {
	// MinConfidence is the threshold FinalExclusions applies
	MinConfidence float64

	// Strict requires a rule match on top of AST existence. When false, a
	// symbol found in the AST without a matching rule is still reported for
	// exclusion, at AdvisoryConfidence.
	Strict bool

	Duplicates DuplicatePolicy
}

// AdvisoryConfidence is the confidence of a non-strict verdict backed by AST existence alone
const AdvisoryConfidence = 0.5

// DefaultPolicy is strict, requires full confidence and keeps the last duplicate
func DefaultPolicy() Policy {
	return Policy{
		MinConfidence: 1.0,
		Strict:        true,
		Duplicates:    KeepLast,
	}
}

// Validate checks the policy values
func (p Policy) Validate() error {
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [0, 1], got %v", p.MinConfidence)
	}
	if _, err := ParseDuplicatePolicy(string(p.Duplicates)); err != nil {
		return err
	}
	return nil
}
