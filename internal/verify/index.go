package verify

import (
	"sort"

	"github.com/ppiankov/astproof/internal/extract"
	"github.com/ppiankov/astproof/internal/model"
)

// Index is a name-keyed symbol table built from one AST document.
// It is read-only once built.
type Index struct {
	bindings   map[string][]*model.Symbol
	duplicates int
}

// BuildSymbolIndex merges the flat symbol list and the legacy groupings of a
// document into one table. Entries without a name are skipped.
func BuildSymbolIndex(doc *extract.Document, policy DuplicatePolicy) *Index {
	entries := doc.Entries()
	idx := &Index{bindings: make(map[string][]*model.Symbol, len(entries))}

	for i := range entries {
		sym := &entries[i]
		if sym.Name == "" {
			continue
		}
		existing, dup := idx.bindings[sym.Name]
		if dup {
			idx.duplicates++
		}
		switch {
		case !dup:
			idx.bindings[sym.Name] = []*model.Symbol{sym}
		case policy == KeepAll:
			idx.bindings[sym.Name] = append(existing, sym)
		case policy == KeepFirst:
			// keep the existing binding
		default:
			idx.bindings[sym.Name] = []*model.Symbol{sym}
		}
	}
	return idx
}

// Lookup returns the primary binding of a name
func (idx *Index) Lookup(name string) (*model.Symbol, bool) {
	b := idx.bindings[name]
	if len(b) == 0 {
		return nil, false
	}
	return b[0], true
}

// Bindings returns every retained binding of a name
func (idx *Index) Bindings(name string) []*model.Symbol {
	return idx.bindings[name]
}

// Len returns the number of distinct names
func (idx *Index) Len() int {
	return len(idx.bindings)
}

// Duplicates returns how many entries reused a name already in the index
func (idx *Index) Duplicates() int {
	return idx.duplicates
}

// Names returns the indexed names in sorted order
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.bindings))
	for name := range idx.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
