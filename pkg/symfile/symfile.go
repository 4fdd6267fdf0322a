// Package symfile stores an assembly session's labels and reference sites
// next to the memory image, so listings and debuggers can show names.
package symfile

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/fx16/pkg/asm"
)

// FormatVersion is written into every symbol file.
const FormatVersion = 1

// File is the on-disk form of an asm.SymbolTable.
type File struct {
	Version    int         `cbor:"1,keyasint"`
	Labels     []Label     `cbor:"2,keyasint"`
	References []Reference `cbor:"3,keyasint,omitempty"`
}

// Label is a defined label.
type Label struct {
	Name    string `cbor:"1,keyasint"`
	Address uint16 `cbor:"2,keyasint"`
	File    string `cbor:"3,keyasint,omitempty"`
	Line    int    `cbor:"4,keyasint,omitempty"`
}

// Reference is a patched label use.
type Reference struct {
	Label  string `cbor:"1,keyasint"`
	Offset uint16 `cbor:"2,keyasint"`
	File   string `cbor:"3,keyasint,omitempty"`
	Line   int    `cbor:"4,keyasint,omitempty"`
}

// cborEncMode uses canonical encoding so identical tables produce
// identical files.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("symfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// FromTable converts a symbol table to its file form.
func FromTable(st *asm.SymbolTable) *File {
	f := &File{
		Version: FormatVersion,
		Labels:  make([]Label, len(st.Labels)),
	}
	for i, s := range st.Labels {
		f.Labels[i] = Label{Name: s.Name, Address: s.Address, File: s.Pos.File, Line: s.Pos.Line}
	}
	for _, r := range st.References {
		f.References = append(f.References, Reference{Label: r.Label, Offset: r.Offset, File: r.Pos.File, Line: r.Pos.Line})
	}
	return f
}

// Table converts the file form back to a symbol table.
func (f *File) Table() *asm.SymbolTable {
	st := &asm.SymbolTable{
		Labels: make([]asm.Symbol, len(f.Labels)),
	}
	for i, l := range f.Labels {
		st.Labels[i] = asm.Symbol{Name: l.Name, Address: l.Address, Pos: asm.Position{File: l.File, Line: l.Line}}
	}
	for _, r := range f.References {
		st.References = append(st.References, asm.Reference{Label: r.Label, Offset: r.Offset, Pos: asm.Position{File: r.File, Line: r.Line}})
	}
	return st
}

// Marshal serializes a symbol table to CBOR bytes.
func Marshal(st *asm.SymbolTable) ([]byte, error) {
	return cborEncMode.Marshal(FromTable(st))
}

// Unmarshal deserializes a symbol table from CBOR bytes.
func Unmarshal(data []byte) (*asm.SymbolTable, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("symfile: unmarshal: %w", err)
	}
	if f.Version > FormatVersion {
		return nil, fmt.Errorf("symfile: version %d is newer than supported version %d", f.Version, FormatVersion)
	}
	return f.Table(), nil
}

// WriteFile writes st to path.
func WriteFile(path string, st *asm.SymbolTable) error {
	data, err := Marshal(st)
	if err != nil {
		return fmt.Errorf("symfile: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads a symbol table written by WriteFile.
func ReadFile(path string) (*asm.SymbolTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Unmarshal(data)
}
