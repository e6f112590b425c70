package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/astproof/internal/model"
)

// ErrNoDocument is returned when analyzer output carries no JSON object
var ErrNoDocument = errors.New("no JSON object in analyzer output")

// LegacyGroupings are the per-category lists of the legacy AST layout, in merge order
var LegacyGroupings = []string{"classes", "structs", "methods", "properties", "variables"}

// decisionCategories are flattened in this order when the analyzer reports "decisions"
var decisionCategories = []string{
	"classes", "structs", "enums", "protocols",
	"methods", "properties", "variables", "enumCases",
	"initializers", "deinitializers", "subscripts", "extensions",
}

// Document is one AST document: a flat symbol list, legacy groupings, or both
type Document struct {
	Symbols   []model.Symbol
	Groupings map[string][]model.Symbol // keyed by LegacyGroupings names
}

// NewDocument wraps a flat symbol list
func NewDocument(symbols []model.Symbol) *Document {
	return &Document{Symbols: symbols}
}

// Entries returns every symbol in merge order: the flat list first, then each
// legacy grouping in LegacyGroupings order.
func (d *Document) Entries() []model.Symbol {
	if d == nil {
		return nil
	}
	out := make([]model.Symbol, 0, d.Len())
	out = append(out, d.Symbols...)
	for _, key := range LegacyGroupings {
		out = append(out, d.Groupings[key]...)
	}
	return out
}

// Len returns the number of symbol entries, duplicates included
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	n := len(d.Symbols)
	for _, key := range LegacyGroupings {
		n += len(d.Groupings[key])
	}
	return n
}

// MarshalJSON writes the document in its flat or legacy layout
func (d *Document) MarshalJSON() ([]byte, error) {
	raw := make(map[string][]model.Symbol, len(d.Groupings)+1)
	if d.Symbols != nil || len(d.Groupings) == 0 {
		raw["symbols"] = nonNilSymbols(d.Symbols)
	}
	for key, list := range d.Groupings {
		raw[key] = nonNilSymbols(list)
	}
	return json.Marshal(raw)
}

// DecodeDocument parses analyzer output. Anything before the first '{' is
// treated as log noise and skipped. A "decisions" object is flattened into
// the symbol list.
func DecodeDocument(data []byte) (*Document, error) {
	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return nil, ErrNoDocument
	}

	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data[start:]))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode AST document: %w", err)
	}

	if decisions, ok := raw["decisions"]; ok {
		return decodeDecisions(decisions)
	}

	doc := &Document{}
	if list, ok := raw["symbols"]; ok {
		symbols, err := decodeSymbols("symbols", list)
		if err != nil {
			return nil, err
		}
		doc.Symbols = symbols
	}
	for _, key := range LegacyGroupings {
		list, ok := raw[key]
		if !ok {
			continue
		}
		symbols, err := decodeSymbols(key, list)
		if err != nil {
			return nil, err
		}
		if doc.Groupings == nil {
			doc.Groupings = make(map[string][]model.Symbol)
		}
		doc.Groupings[key] = symbols
	}
	return doc, nil
}

// LoadDocument reads and decodes an AST document from disk
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read AST document: %w", err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func decodeDecisions(data json.RawMessage) (*Document, error) {
	var categories map[string]json.RawMessage
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}

	doc := &Document{Symbols: []model.Symbol{}}
	for _, category := range decisionCategories {
		list, ok := categories[category]
		if !ok {
			continue
		}
		symbols, err := decodeSymbols(category, list)
		if err != nil {
			// non-list categories are ignored
			continue
		}
		doc.Symbols = append(doc.Symbols, symbols...)
	}
	return doc, nil
}

func decodeSymbols(key string, data json.RawMessage) ([]model.Symbol, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	var symbols []model.Symbol
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return symbols, nil
}

func nonNilSymbols(s []model.Symbol) []model.Symbol {
	if s == nil {
		return []model.Symbol{}
	}
	return s
}
