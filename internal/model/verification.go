package model

// RuleMatch is the outcome of evaluating one rule against one symbol
type RuleMatch struct {
	RuleID              string   `json:"rule_id"`
	Description         string   `json:"description,omitempty"`
	Matched             bool     `json:"matched"`
	Confidence          float64  `json:"confidence"`                     // 1.0 or 0.0, matching is never fuzzy
	SatisfiedPredicates []string `json:"satisfied_predicates,omitempty"` // predicates that held before the first failure
}

// VerificationResult is the verdict for one candidate identifier
type VerificationResult struct {
	Identifier    string      `json:"identifier"`
	FoundInAST    bool        `json:"found_in_ast"`
	Symbol        *Symbol     `json:"symbol,omitempty"` // nil when the identifier is absent from the AST
	RuleMatches   []RuleMatch `json:"rule_matches"`
	FinalDecision bool        `json:"final_decision"` // true: confirmed for exclusion
	Confidence    float64     `json:"confidence"`
	Reasoning     string      `json:"reasoning"`
}

// RuleMatched reports whether at least one rule backed the candidate
func (r VerificationResult) RuleMatched() bool {
	return len(r.RuleMatches) > 0
}

// MatchedRuleIDs returns the ids of the matching rules in evaluation order
func (r VerificationResult) MatchedRuleIDs() []string {
	ids := make([]string, 0, len(r.RuleMatches))
	for _, m := range r.RuleMatches {
		ids = append(ids, m.RuleID)
	}
	return ids
}
