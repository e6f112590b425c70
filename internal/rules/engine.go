// Package rules loads declarative exclusion rules and matches them against
// symbol records.
package rules

import (
	"fmt"

	"github.com/ppiankov/astproof/internal/model"
)

// Engine holds an immutable, ordered rule set.
//
// Safe for concurrent use after construction.
type Engine struct {
	rules []Rule
	byID  map[string]int
}

// NewEngine builds an engine from already compiled rules. Rule ids must be
// present and unique.
func NewEngine(rules []Rule) (*Engine, error) {
	e := &Engine{
		rules: make([]Rule, len(rules)),
		byID:  make(map[string]int, len(rules)),
	}
	copy(e.rules, rules)

	for i, r := range e.rules {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: rule #%d has no id", ErrConfigLoad, i+1)
		}
		if prev, dup := e.byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %q (rules #%d and #%d)", ErrConfigLoad, r.ID, prev+1, i+1)
		}
		e.byID[r.ID] = i
	}
	return e, nil
}

// MatchSymbol evaluates every rule in declaration order and returns only the
// matches.
func (e *Engine) MatchSymbol(sym *model.Symbol) []model.RuleMatch {
	var matches []model.RuleMatch
	for i := range e.rules {
		if m := Evaluate(&e.rules[i], sym); m.Matched {
			matches = append(matches, m)
		}
	}
	return matches
}

// Evaluate matches a single rule against a symbol. The kind filter is applied
// first; predicates are then checked in order and the first failure ends the
// evaluation, keeping the predicates satisfied so far for diagnostics.
func Evaluate(rule *Rule, sym *model.Symbol) model.RuleMatch {
	result := model.RuleMatch{
		RuleID:      rule.ID,
		Description: rule.Description,
	}

	kind := ""
	if sym != nil {
		kind = sym.Kind
	}
	if !rule.Kind.Accepts(kind) {
		return result
	}

	satisfied := make([]string, 0, len(rule.Predicates))
	for _, p := range rule.Predicates {
		if !p.Evaluate(sym) {
			result.SatisfiedPredicates = satisfied
			return result
		}
		satisfied = append(satisfied, p.String())
	}

	result.Matched = true
	result.Confidence = 1.0
	result.SatisfiedPredicates = satisfied
	return result
}

// Rules returns the loaded rules in declaration order
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// RuleByID looks up a rule by its id
func (e *Engine) RuleByID(id string) (Rule, bool) {
	i, ok := e.byID[id]
	if !ok {
		return Rule{}, false
	}
	return e.rules[i], true
}

// Len returns the number of loaded rules
func (e *Engine) Len() int {
	return len(e.rules)
}
