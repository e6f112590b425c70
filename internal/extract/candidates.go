package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNoCandidates is returned when a candidate document holds no identifier lists
var ErrNoCandidates = errors.New("candidate document has no identifiers")

// Candidates are the identifiers a model predicted as safe to remove.
// A document carries either one global list or one list per source unit.
type Candidates struct {
	Global  []string            // {"identifiers": [...]}
	PerUnit map[string][]string // {"<unit>": [...], ...}
	Skipped []string            // per-unit keys whose value was not a string list
}

// ParseCandidates decodes a candidate document
func ParseCandidates(data []byte) (*Candidates, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}

	if list, ok := raw["identifiers"]; ok {
		var ids []string
		if err := json.Unmarshal(list, &ids); err == nil && ids != nil {
			return &Candidates{Global: ids}, nil
		}
	}

	c := &Candidates{PerUnit: make(map[string][]string, len(raw))}
	for unit, list := range raw {
		var ids []string
		if err := json.Unmarshal(list, &ids); err != nil {
			c.Skipped = append(c.Skipped, unit)
			continue
		}
		c.PerUnit[unit] = ids
	}
	sort.Strings(c.Skipped)

	if len(c.PerUnit) == 0 && len(raw) > 0 {
		return nil, ErrNoCandidates
	}
	return c, nil
}

// LoadCandidates reads a candidate document from disk
func LoadCandidates(path string) (*Candidates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	c, err := ParseCandidates(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// IsPerUnit reports whether the document lists identifiers per source unit
func (c *Candidates) IsPerUnit() bool {
	return c.Global == nil
}

// Units returns the per-unit keys in sorted order
func (c *Candidates) Units() []string {
	units := make([]string, 0, len(c.PerUnit))
	for unit := range c.PerUnit {
		units = append(units, unit)
	}
	sort.Strings(units)
	return units
}

// Merged returns the global list as-is, or the per-unit lists merged into one
// de-duplicated list, first seen wins, walking units in sorted order.
func (c *Candidates) Merged() []string {
	if c.Global != nil {
		return c.Global
	}
	seen := make(map[string]bool)
	var merged []string
	for _, unit := range c.Units() {
		for _, id := range c.PerUnit[unit] {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
	}
	return merged
}

// ForUnit returns the identifiers scoped to one source file. The per-unit key
// may be the file's path relative to the project root or its base name. A
// global document applies to every file.
func (c *Candidates) ForUnit(relPath string) []string {
	if c.Global != nil {
		return c.Global
	}
	if ids, ok := c.PerUnit[relPath]; ok {
		return ids
	}
	if ids, ok := c.PerUnit[filepath.ToSlash(relPath)]; ok {
		return ids
	}
	return c.PerUnit[filepath.Base(relPath)]
}

// Len returns the number of identifiers Merged would return
func (c *Candidates) Len() int {
	return len(c.Merged())
}
