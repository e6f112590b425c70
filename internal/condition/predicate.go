// Package condition evaluates rule predicates against symbol records.
//
// A predicate has the shape
//
//	<Tag>.<field> <op> <operand>
//
// where op is one of contains_any, in, == or !=. Predicates are tokenized and
// parsed once by Compile; evaluation never fails. Anything that does not parse
// compiles to a predicate that is always false.
package condition

import (
	"fmt"
	"strings"

	"github.com/ppiankov/astproof/internal/model"
)

// Operator is one of the four supported comparisons
type Operator int

const (
	OpInvalid Operator = iota
	OpContainsAny
	OpIn
	OpEq
	OpNe
)

func (o Operator) String() string {
	switch o {
	case OpContainsAny:
		return "contains_any"
	case OpIn:
		return "in"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	default:
		return "invalid"
	}
}

// fieldMapping maps predicate field names to analyzer record keys.
// Names not listed here are looked up literally.
var fieldMapping = map[string]string{
	"name":                 model.KeyName,
	"kind":                 model.KeyKind,
	"typeInheritanceChain": model.KeyInherits,
	"attributes":           model.KeyAttributes,
	"modifiers":            model.KeyModifiers,
	"conforms":             model.KeyConforms,
	"accessLevel":          model.KeyAccessLevel,
}

// Literal is one right-hand operand value
type Literal struct {
	Text   string
	Quoted bool
}

// ParseError describes why a predicate could not be compiled
type ParseError struct {
	Predicate string
	Pos       int
	Msg       string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("predicate %q: %s at offset %d", e.Predicate, e.Msg, e.Pos)
}

// Predicate is a compiled condition. The zero value is invalid and never matches.
type Predicate struct {
	source   string
	field    string // resolved record key
	op       Operator
	literals []Literal
	err      *ParseError
}

// Compile tokenizes and parses a predicate
func Compile(source string) Predicate {
	p := &parser{source: strings.TrimSpace(source)}
	p.tokens = NewLexer(p.source).Tokenize()
	return p.parse()
}

// Evaluate compiles and evaluates a predicate in one step
func Evaluate(predicate string, sym *model.Symbol) bool {
	return Compile(predicate).Evaluate(sym)
}

// ResolveField maps a field path such as "M.typeInheritanceChain" to a record key
func ResolveField(path string) string {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return path
	}
	if len(parts) >= 3 && parts[1] == "parent" && parts[2] == "name" {
		return model.KeyParentType
	}
	if key, ok := fieldMapping[parts[1]]; ok {
		return key
	}
	return parts[1]
}

// Valid reports whether the predicate compiled
func (p Predicate) Valid() bool { return p.err == nil && p.op != OpInvalid }

// Err returns the compile error, if any
func (p Predicate) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

// String returns the predicate as written
func (p Predicate) String() string { return p.source }

// Field returns the resolved record key
func (p Predicate) Field() string { return p.field }

// Op returns the comparison operator
func (p Predicate) Op() Operator { return p.op }

// Literals returns the right-hand operand values
func (p Predicate) Literals() []Literal { return p.literals }

// Evaluate reports whether the symbol satisfies the predicate
func (p Predicate) Evaluate(sym *model.Symbol) bool {
	if !p.Valid() || sym == nil {
		return false
	}
	value, ok := sym.Lookup(p.field)
	if !ok {
		return false
	}

	switch p.op {
	case OpContainsAny:
		switch v := value.(type) {
		case []string:
			for _, item := range v {
				if p.hasLiteral(item) {
					return true
				}
			}
			return false
		case string:
			return p.hasLiteral(v)
		default:
			return false
		}
	case OpIn:
		// Whole-value membership: a list-valued field is never a member
		// of a set of textual literals.
		v, isString := value.(string)
		return isString && p.hasLiteral(v)
	case OpEq:
		return scalarEqual(value, p.literals[0])
	case OpNe:
		return !scalarEqual(value, p.literals[0])
	}
	return false
}

func (p Predicate) hasLiteral(s string) bool {
	for _, lit := range p.literals {
		if lit.Text == s {
			return true
		}
	}
	return false
}

// scalarEqual compares a record value with a literal. Textual true/false are
// coerced to booleans first; values of different types are never equal.
func scalarEqual(value any, lit Literal) bool {
	switch strings.ToLower(lit.Text) {
	case "true", "false":
		b, ok := value.(bool)
		return ok && b == strings.EqualFold(lit.Text, "true")
	}
	s, ok := value.(string)
	return ok && s == lit.Text
}
