package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfigLoad marks a rule document that is missing, unreadable or invalid
var ErrConfigLoad = errors.New("rule configuration load failed")

// ruleDoc is the on-disk form of one entry of the rules list:
//
//	rules:
//	  - id: OBJC_ATTRIBUTE
//	    description: ...
//	    pattern:
//	      - find:
//	          target: S
//	      - where:
//	          - S.attributes contains_any ['@objc']
type ruleDoc struct {
	ID          string    `yaml:"id"`
	Description string    `yaml:"description"`
	Pattern     []stepDoc `yaml:"pattern"`
}

type stepDoc struct {
	Find *struct {
		Target string `yaml:"target"`
	} `yaml:"find"`
	Where []string `yaml:"where"`
}

// Load reads and compiles a rule document
func Load(path string) (*Engine, error) {
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(rules)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return engine, nil
}

// LoadRules reads a rule document without building an engine, so ids are
// not yet checked for uniqueness.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read rules file: %w", ErrConfigLoad, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Parse compiles a rule document held in memory. The document is either a
// mapping with a top-level "rules" list or the list itself.
func Parse(data []byte) (*Engine, error) {
	rules, err := ParseRules(data)
	if err != nil {
		return nil, err
	}
	return NewEngine(rules)
}

// ParseRules decodes and compiles the rules of a document in declaration order
func ParseRules(data []byte) ([]Rule, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %w", ErrConfigLoad, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrConfigLoad)
	}

	var docs []ruleDoc
	switch node := root.Content[0]; node.Kind {
	case yaml.MappingNode:
		var pack struct {
			Rules []ruleDoc `yaml:"rules"`
		}
		if err := node.Decode(&pack); err != nil {
			return nil, fmt.Errorf("%w: decode rules: %w", ErrConfigLoad, err)
		}
		docs = pack.Rules
	case yaml.SequenceNode:
		if err := node.Decode(&docs); err != nil {
			return nil, fmt.Errorf("%w: decode rules: %w", ErrConfigLoad, err)
		}
	default:
		return nil, fmt.Errorf("%w: expected a rule list or a mapping with \"rules\"", ErrConfigLoad)
	}

	rules := make([]Rule, 0, len(docs))
	for _, d := range docs {
		rules = append(rules, d.compile())
	}
	return rules, nil
}

func (d ruleDoc) compile() Rule {
	var (
		target     string
		seenFind   bool
		predicates []string
	)
	for _, step := range d.Pattern {
		if step.Find != nil && !seenFind {
			target = step.Find.Target
			seenFind = true
		}
		predicates = append(predicates, step.Where...)
	}
	return NewRule(d.ID, d.Description, target, predicates)
}
