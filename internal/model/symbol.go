package model

import (
	"encoding/json"
	"sort"
)

// Canonical record keys produced by the AST analyzer
const (
	KeyName        = "symbol_name"
	KeyKind        = "symbol_kind"
	KeyAttributes  = "attributes"
	KeyInherits    = "inherits"
	KeyModifiers   = "modifiers"
	KeyConforms    = "conforms"
	KeyAccessLevel = "access_level"
	KeyParentType  = "parent_type"
)

// Symbol is one declared program entity as reported by the external analyzer.
// Absent fields stay at their zero value; lookups never fail on a missing key.
type Symbol struct {
	Name        string   // symbol_name
	Kind        string   // symbol_kind (method, property, class, ...)
	Attributes  []string // e.g. "@objc", "override"
	Inherits    []string // inheritance chain, nearest first
	Modifiers   []string
	Conforms    []string
	AccessLevel string
	ParentType  string

	// Extra holds every other key of the record, decoded as-is
	Extra map[string]any
}

// Lookup returns the value stored under a record key.
// Canonical keys always resolve (to their zero value if absent); other keys
// resolve only when present in Extra.
func (s *Symbol) Lookup(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	switch key {
	case KeyName:
		return s.Name, true
	case KeyKind:
		return s.Kind, true
	case KeyAttributes:
		return nonNil(s.Attributes), true
	case KeyInherits:
		return nonNil(s.Inherits), true
	case KeyModifiers:
		return nonNil(s.Modifiers), true
	case KeyConforms:
		return nonNil(s.Conforms), true
	case KeyAccessLevel:
		return s.AccessLevel, true
	case KeyParentType:
		return s.ParentType, true
	}
	v, ok := s.Extra[key]
	if !ok || v == nil {
		return nil, false
	}
	if list, isList := v.([]any); isList {
		return stringsOf(list), true
	}
	return v, true
}

// UnmarshalJSON decodes a symbol record, tolerating missing and mistyped fields
func (s *Symbol) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SymbolFromMap(raw)
	return nil
}

// MarshalJSON encodes the symbol back into the analyzer's record shape
func (s Symbol) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+8)
	for k, v := range s.Extra {
		out[k] = v
	}
	out[KeyName] = s.Name
	out[KeyKind] = s.Kind
	out[KeyAttributes] = nonNil(s.Attributes)
	out[KeyInherits] = nonNil(s.Inherits)
	out[KeyModifiers] = nonNil(s.Modifiers)
	out[KeyConforms] = nonNil(s.Conforms)
	if s.AccessLevel != "" {
		out[KeyAccessLevel] = s.AccessLevel
	}
	if s.ParentType != "" {
		out[KeyParentType] = s.ParentType
	}
	return json.Marshal(out)
}

// SymbolFromMap builds a Symbol from a generic decoded record
func SymbolFromMap(raw map[string]any) Symbol {
	sym := Symbol{}
	for k, v := range raw {
		switch k {
		case KeyName:
			sym.Name, _ = v.(string)
		case KeyKind:
			sym.Kind, _ = v.(string)
		case KeyAccessLevel:
			sym.AccessLevel, _ = v.(string)
		case KeyParentType:
			sym.ParentType, _ = v.(string)
		case KeyAttributes:
			sym.Attributes = listOf(v)
		case KeyInherits:
			sym.Inherits = listOf(v)
		case KeyModifiers:
			sym.Modifiers = listOf(v)
		case KeyConforms:
			sym.Conforms = listOf(v)
		default:
			if sym.Extra == nil {
				sym.Extra = make(map[string]any)
			}
			sym.Extra[k] = v
		}
	}
	return sym
}

// ExtraKeys returns the non-canonical keys in sorted order
func (s *Symbol) ExtraKeys() []string {
	keys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func listOf(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	return stringsOf(list)
}

// stringsOf keeps the string elements; other element types can never equal a
// textual literal, so dropping them does not change any comparison.
func stringsOf(list []any) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
