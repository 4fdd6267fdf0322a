package asm

import "sort"

// Symbol is a defined label.
type Symbol struct {
	Name    string
	Address uint16
	Pos     Position // where the winning definition appeared
}

// SymbolTable is a snapshot of a session's labels and reference sites.
type SymbolTable struct {
	Labels     []Symbol    // sorted by address, then name
	References []Reference // in source order
}

// Symbols returns a snapshot of the labels and references assembled so far.
func (a *Assembler) Symbols() *SymbolTable {
	st := &SymbolTable{
		Labels:     make([]Symbol, 0, len(a.labels)),
		References: a.References(),
	}
	for name, addr := range a.labels {
		st.Labels = append(st.Labels, Symbol{Name: name, Address: addr, Pos: a.labelPos[name]})
	}
	sort.Slice(st.Labels, func(i, j int) bool {
		if st.Labels[i].Address != st.Labels[j].Address {
			return st.Labels[i].Address < st.Labels[j].Address
		}
		return st.Labels[i].Name < st.Labels[j].Name
	})
	return st
}

// Lookup returns the label called name.
func (st *SymbolTable) Lookup(name string) (Symbol, bool) {
	for _, s := range st.Labels {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// LabelsAt returns the names of all labels at addr.
func (st *SymbolTable) LabelsAt(addr uint16) []string {
	var names []string
	for _, s := range st.Labels {
		if s.Address == addr {
			names = append(names, s.Name)
		}
	}
	return names
}

// ReferencesTo returns every reference site that names label.
func (st *SymbolTable) ReferencesTo(label string) []Reference {
	var refs []Reference
	for _, r := range st.References {
		if r.Label == label {
			refs = append(refs, r)
		}
	}
	return refs
}
