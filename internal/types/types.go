// Package types implements the closed set of KL type names, their sizes and
// store-width directives, and the merge-types algebra (§4.4).
package types

import "fmt"

// Mode selects the type-merge policy, set from the KL compiler's
// --type-checking flag.
type Mode int

const (
	Loose Mode = iota
	Strict
	Off
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "loose", "":
		return Loose, nil
	case "strict":
		return Strict, nil
	case "off":
		return Off, nil
	default:
		return Loose, fmt.Errorf("invalid type-checking mode: %s", s)
	}
}

// Name is one of the closed set {uint8,uint16,uint32,int8,int16,int32,void}
// plus the synthetic inference name "int" used for untyped integer
// literals.
type Name string

const (
	Uint8  Name = "uint8"
	Uint16 Name = "uint16"
	Uint32 Name = "uint32"
	Int8   Name = "int8"
	Int16  Name = "int16"
	Int32  Name = "int32"
	Void   Name = "void"
	// Int is the synthetic type assigned to bare integer literals before
	// they take on a concrete width via merge.
	Int Name = "int"
)

var unsigned = []Name{Uint8, Uint16, Uint32}
var signed = []Name{Int8, Int16, Int32}

var sizes = map[Name]int{
	Uint8: 1, Int8: 1,
	Uint16: 2, Int16: 2,
	Uint32: 4, Int32: 4,
	Void: 0,
}

// directives maps a concrete type name to the assembler store/load-width
// directive ('b', 'w', or 'd') and the data directive mnemonic used for
// `static`/`array` declarations.
var directives = map[Name]struct {
	Width byte
	Dir   string
}{
	Uint8:  {'b', "byte"},
	Int8:   {'b', "byte"},
	Uint16: {'w', "word"},
	Int16:  {'w', "word"},
	Uint32: {'d', "dword"},
	Int32:  {'d', "dword"},
}

// Known reports whether name is one of the closed declared types (does not
// include the synthetic "int" literal type).
func Known(name string) bool {
	switch Name(name) {
	case Uint8, Uint16, Uint32, Int8, Int16, Int32, Void:
		return true
	default:
		return false
	}
}

// Size returns sizeof(t) in bytes; 0 for void, -1 if t isn't a concrete
// declared type (e.g. the synthetic "int").
func Size(t Name) int {
	if s, ok := sizes[t]; ok {
		return s
	}
	return -1
}

// Width returns the store/load-width suffix ('b'|'w'|'d') for a concrete
// integer type. Panics if called on a non-integer type; callers only ever
// invoke this after Merge/declaration validation has already rejected
// void and "int".
func Width(t Name) byte {
	d, ok := directives[t]
	if !ok {
		panic(fmt.Sprintf("types: no store width for %q", t))
	}
	return d.Width
}

// Directive returns the `.byte`/`.word`/`.dword` mnemonic for t.
func Directive(t Name) string {
	d, ok := directives[t]
	if !ok {
		panic(fmt.Sprintf("types: no data directive for %q", t))
	}
	return d.Dir
}

func isUnsigned(t Name) bool { return indexOf(unsigned, t) >= 0 }
func isSigned(t Name) bool   { return indexOf(signed, t) >= 0 }

func indexOf(list []Name, t Name) int {
	for i, v := range list {
		if v == t {
			return i
		}
	}
	return -1
}

// MergeError is returned by Merge when two types cannot be reconciled under
// the active mode.
type MergeError struct {
	L, R Name
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("cannot merge types %q and %q", e.L, e.R)
}

// Merge implements the type-merge algebra of §4.4: given left/right operand
// types under mode m, decide the result type of a binary operator or store.
//
//  1. m == Off: undefined result; by decision (see DESIGN.md "type-checking
//     off"), callers fall back to the left operand's type rather than
//     refusing to compile, mirroring the original's "merge_types returns
//     None, callers keep going" behavior.
//  2. l == r: that type.
//  3. exactly one side is the untyped literal type Int: the other's
//     concrete type.
//  4. m == Loose and both sides are unsigned (or both signed): the wider
//     of the two.
//  5. otherwise: a MergeError.
func Merge(m Mode, l, r Name) (Name, error) {
	if m == Off {
		return l, nil
	}
	if l == r {
		return l, nil
	}
	if l == Int && r != Int {
		return r, nil
	}
	if r == Int && l != Int {
		return l, nil
	}
	if m == Loose {
		if isUnsigned(l) && isUnsigned(r) {
			return widest(unsigned, l, r), nil
		}
		if isSigned(l) && isSigned(r) {
			return widest(signed, l, r), nil
		}
	}
	return "", &MergeError{l, r}
}

func widest(order []Name, l, r Name) Name {
	if indexOf(order, l) >= indexOf(order, r) {
		return l
	}
	return r
}
