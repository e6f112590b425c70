package validate

import (
	"regexp"
	"strings"

	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/model"
)

// FieldTier classifies a record key referenced by a predicate
type FieldTier int

const (
	FieldUnknown   FieldTier = iota // not produced by the analyzer as far as we know
	FieldKnown                      // configured or observed extra key
	FieldCanonical                  // always resolves on every symbol
)

func (t FieldTier) String() string {
	switch t {
	case FieldCanonical:
		return "canonical"
	case FieldKnown:
		return "known"
	default:
		return "unknown"
	}
}

var canonicalKeys = map[string]bool{
	model.KeyName:        true,
	model.KeyKind:        true,
	model.KeyAttributes:  true,
	model.KeyInherits:    true,
	model.KeyModifiers:   true,
	model.KeyConforms:    true,
	model.KeyAccessLevel: true,
	model.KeyParentType:  true,
}

// listKeys are the canonical keys holding lists
var listKeys = map[string]bool{
	model.KeyAttributes: true,
	model.KeyInherits:   true,
	model.KeyModifiers:  true,
	model.KeyConforms:   true,
}

// FieldClassifier sorts record keys into tiers
type FieldClassifier struct {
	known    map[string]bool
	patterns []*regexp.Regexp
}

// NewFieldClassifier builds a classifier from configured extra keys. An entry
// containing regexp metacharacters is compiled as an anchored pattern; an
// entry that does not compile is treated as a literal name.
func NewFieldClassifier(knownFields []string) *FieldClassifier {
	c := &FieldClassifier{known: make(map[string]bool)}
	for _, f := range knownFields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if strings.ContainsAny(f, `^$*+?[]()|\`) {
			if re, err := regexp.Compile("^(?:" + strings.Trim(f, "^$") + ")$"); err == nil {
				c.patterns = append(c.patterns, re)
				continue
			}
		}
		c.known[f] = true
	}
	return c
}

// Learn marks every extra key present in a sample AST document as known
func (c *FieldClassifier) Learn(doc *extract.Document) {
	for _, sym := range doc.Entries() {
		for _, k := range sym.ExtraKeys() {
			c.known[k] = true
		}
	}
}

// Classify returns the tier of a resolved record key
func (c *FieldClassifier) Classify(key string) FieldTier {
	if canonicalKeys[key] {
		return FieldCanonical
	}
	if c.known[key] {
		return FieldKnown
	}
	for _, re := range c.patterns {
		if re.MatchString(key) {
			return FieldKnown
		}
	}
	return FieldUnknown
}

// IsList reports whether a canonical key holds a list
func IsList(key string) bool {
	return listKeys[key]
}
