package compile

import (
	"github.com/deagahelio/vm/internal/ast"
	"github.com/deagahelio/vm/internal/types"
)

// Function is one top-level `fn` declaration, per §3's function record.
// Argument passing convention: rightmost argument pushed first, caller
// pops after return.
type Function struct {
	Name    string
	Return  types.Name
	Args    []types.Name
	Node    *ast.Node
	Private bool // suppressed from export when compiled as an import target
}

// StructField is one member of a struct declaration. Offset is implied by
// declaration order; there is no padding.
type StructField struct {
	Name   string
	Type   types.Name
	Offset int
}

// Struct is one top-level `struct` declaration, per §3's struct record.
type Struct struct {
	Name   string
	Fields []StructField
	Size   int
}

func (s *Struct) Field(name string) (StructField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return StructField{}, false
}
