package asm

import (
	"encoding/binary"
	"fmt"
)

// Unit is one file's symbol tables after assembly, per §3's per-file
// defs/uses/exports/imports shape. Offsets are absolute, already accounting
// for the assembler's current relocation base.
type Unit struct {
	Defs    map[string]int
	Uses    map[int]string // patch offset -> symbol name
	Exports map[string]bool
	Imports map[string]bool
}

func newUnit() *Unit {
	return &Unit{
		Defs:    map[string]int{},
		Uses:    map[int]string{},
		Exports: map[string]bool{},
		Imports: map[string]bool{},
	}
}

// Assembler owns the single growing byte buffer every assembled file is
// appended to, plus the running relocation base (§4.7). One Assembler spans
// the whole CLI invocation; each input file produces its own *Unit.
type Assembler struct {
	buf  []byte
	base int // absolute address of buf[0]
}

func NewAssembler() *Assembler { return &Assembler{} }

// Relocate implements `@RELOC:<origin>`: the next emitted byte must appear
// at absolute address origin, and subsequent appends stay contiguous.
func (a *Assembler) Relocate(origin int) {
	a.base = origin - len(a.buf)
}

func (a *Assembler) Bytes() []byte { return a.buf }

// Base is the absolute address corresponding to buf[0] under the current
// relocation, i.e. pos_offset in §4.7's terms.
func (a *Assembler) Base() int { return a.base }

func (a *Assembler) here() int { return a.base + len(a.buf) }

// AssembleFile encodes one file's directive stream, appending to the
// shared buffer and returning its symbol tables.
func (a *Assembler) AssembleFile(lines []Line) (*Unit, error) {
	u := newUnit()
	defines := map[string]int32{}

	for _, line := range lines {
		switch l := line.(type) {
		case LabelDecl:
			if _, dup := u.Defs[l.Name]; dup {
				return nil, fmt.Errorf("duplicate symbol %q", l.Name)
			}
			u.Defs[l.Name] = a.here()

		case Pragma:
			switch l.Kind {
			case PragmaExport:
				u.Exports[l.Name] = true
			case PragmaImport:
				u.Imports[l.Name] = true
			case PragmaDefine:
				defines[l.Name] = l.Value
			}

		case DataDirective:
			if err := a.encodeData(l, defines); err != nil {
				return nil, err
			}

		case Instr:
			if err := a.encodeInstr(l, u, defines); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("unrecognized directive %T", line)
		}
	}
	return u, nil
}

// encodeData only accepts literal values (§4.6: "emit struct.pack of the
// value repeated n times") — a symbol reference here would need a
// width-specific relocation the linker's 4-byte patcher doesn't support, so
// `.define`d constants are the only indirection allowed.
func (a *Assembler) encodeData(d DataDirective, defines map[string]int32) error {
	v := d.Value.Value
	if d.Value.Kind == OperandSymbol {
		defined, ok := defines[d.Value.Symbol]
		if !ok {
			return fmt.Errorf("data directive value %q must be a literal or .define'd constant", d.Value.Symbol)
		}
		v = defined
	} else if d.Value.Kind != OperandImmediate {
		return fmt.Errorf("data directive value must be a literal")
	}

	width := widthBytes(d.Width)
	for i := 0; i < d.Count; i++ {
		a.appendWidth(uint32(v), width)
	}
	return nil
}

func widthBytes(w byte) int {
	switch w {
	case 'b':
		return 1
	case 'w':
		return 2
	default:
		return 4
	}
}

func (a *Assembler) appendWidth(v uint32, width int) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	a.buf = append(a.buf, tmp[:width]...)
}

func (a *Assembler) append32(v uint32) { a.appendWidth(v, 4) }

// resolveImmediate turns an operand into a literal 32-bit value. A symbol
// operand resolves through defines first (an assembler-level constant);
// otherwise it records a linker use at useOffset and returns the
// 0xFFFFFFFF placeholder §4.6 specifies.
func resolveImmediate(op Operand, defines map[string]int32, u *Unit, useOffset int) (int32, error) {
	switch op.Kind {
	case OperandImmediate:
		return op.Value, nil
	case OperandSymbol:
		if v, ok := defines[op.Symbol]; ok {
			return v, nil
		}
		u.Uses[useOffset] = op.Symbol
		return -1, nil
	default:
		return 0, fmt.Errorf("operand is not an immediate or symbol")
	}
}

// encodeInstr determines the operand shape from the parsed operands (kinds
// and source order), looks up the matching opcode entry, and packs the
// bytes per §4.6's table.
func (a *Assembler) encodeInstr(in Instr, u *Unit, defines map[string]int32) error {
	shape, err := shapeOf(in)
	if err != nil {
		return fmt.Errorf("%s: %w", in.Mnemonic, err)
	}
	entry, ok := lookup(in.Mnemonic, shape)
	if !ok {
		return fmt.Errorf("unknown mnemonic %q for operand shape", in.Mnemonic)
	}

	switch shape {
	case ShapeNone:
		a.buf = append(a.buf, entry.bytes...)

	case ShapeR:
		bytes := append([]byte(nil), entry.bytes...)
		bytes[len(bytes)-1] |= byte(in.Operands[0].Reg & 0x0F)
		a.buf = append(a.buf, bytes...)

	case ShapeRR:
		a.buf = append(a.buf, entry.bytes...)
		a.buf = append(a.buf, byte(in.Operands[0].Reg<<4)|byte(in.Operands[1].Reg&0x0F))

	case ShapeRI, ShapeIR:
		var reg, imm Operand
		if shape == ShapeRI {
			reg, imm = in.Operands[0], in.Operands[1]
		} else {
			imm, reg = in.Operands[0], in.Operands[1]
		}
		bytes := append([]byte(nil), entry.bytes...)
		bytes[len(bytes)-1] |= byte(reg.Reg & 0x0F)
		a.buf = append(a.buf, bytes...)
		v, err := resolveImmediate(imm, defines, u, a.here())
		if err != nil {
			return err
		}
		a.append32(uint32(v))

	case ShapeI:
		a.buf = append(a.buf, entry.bytes...)
		v, err := resolveImmediate(in.Operands[0], defines, u, a.here())
		if err != nil {
			return err
		}
		a.append32(uint32(v))

	case ShapeII:
		a.buf = append(a.buf, entry.bytes...)
		for _, op := range in.Operands {
			v, err := resolveImmediate(op, defines, u, a.here())
			if err != nil {
				return err
			}
			a.append32(uint32(v))
		}

	default:
		return fmt.Errorf("unsupported operand shape")
	}
	return nil
}

// shapeOf infers the §4.6 shape tag from an instruction's operand kinds and
// source order.
func shapeOf(in Instr) (Shape, error) {
	switch len(in.Operands) {
	case 0:
		return ShapeNone, nil
	case 1:
		if in.Operands[0].Kind == OperandRegister {
			return ShapeR, nil
		}
		return ShapeI, nil
	case 2:
		a, b := in.Operands[0], in.Operands[1]
		switch {
		case a.Kind == OperandRegister && b.Kind == OperandRegister:
			return ShapeRR, nil
		case a.Kind == OperandRegister:
			return ShapeRI, nil
		case b.Kind == OperandRegister:
			return ShapeIR, nil
		default:
			return ShapeII, nil
		}
	default:
		return 0, fmt.Errorf("wrong number of operands")
	}
}
