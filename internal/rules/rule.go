package rules

import (
	"github.com/ppiankov/astproof/internal/condition"
)

// Kind is the symbol-category filter of a rule
type Kind int

const (
	KindAny          Kind = iota // S, or no find step
	KindMethod                   // M: method, initializer, deinitializer
	KindProperty                 // P: property, variable
	KindType                     // C: class, struct
	KindEnum                     // E: enum
	KindUnrecognized             // any other tag, never matches
)

// ParseKind resolves a find-step target tag. An empty tag means any symbol.
func ParseKind(tag string) Kind {
	switch tag {
	case "", "S":
		return KindAny
	case "M":
		return KindMethod
	case "P":
		return KindProperty
	case "C":
		return KindType
	case "E":
		return KindEnum
	default:
		return KindUnrecognized
	}
}

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindMethod:
		return "method-like"
	case KindProperty:
		return "property-like"
	case KindType:
		return "type"
	case KindEnum:
		return "enum"
	default:
		return "unrecognized"
	}
}

// Accepts reports whether a symbol of the given kind passes the filter
func (k Kind) Accepts(symbolKind string) bool {
	switch k {
	case KindAny:
		return true
	case KindMethod:
		return symbolKind == "method" || symbolKind == "initializer" || symbolKind == "deinitializer"
	case KindProperty:
		return symbolKind == "property" || symbolKind == "variable"
	case KindType:
		return symbolKind == "class" || symbolKind == "struct"
	case KindEnum:
		return symbolKind == "enum"
	default:
		return false
	}
}

// Rule is one loaded exclusion rule. Predicates are compiled at load time and
// combined with AND semantics in declaration order.
type Rule struct {
	ID          string
	Description string
	Target      string // find-step tag as written
	Kind        Kind
	Predicates  []condition.Predicate
}

// NewRule compiles the predicate strings of a rule
func NewRule(id, description, target string, predicates []string) Rule {
	compiled := make([]condition.Predicate, 0, len(predicates))
	for _, p := range predicates {
		compiled = append(compiled, condition.Compile(p))
	}
	return Rule{
		ID:          id,
		Description: description,
		Target:      target,
		Kind:        ParseKind(target),
		Predicates:  compiled,
	}
}

// Conditions returns the predicates as written
func (r Rule) Conditions() []string {
	out := make([]string, 0, len(r.Predicates))
	for _, p := range r.Predicates {
		out = append(out, p.String())
	}
	return out
}

// InvalidPredicates returns the compile errors of predicates that can never match
func (r Rule) InvalidPredicates() []error {
	var errs []error
	for _, p := range r.Predicates {
		if err := p.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
