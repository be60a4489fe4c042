// Package asm implements the assembler: a goparsec grammar over assembly
// text, a table-driven opcode encoder, and the per-file symbol tables the
// linker consolidates (§4.5, §4.6).
package asm

// Shape is the operand-shape tag from §4.6's encoding table.
type Shape int

const (
	ShapeNone Shape = iota // ∅
	ShapeR                 // r
	ShapeRR                // rr
	ShapeRI                // ri: mnemonic reg imm
	ShapeIR                // ir: mnemonic imm reg
	ShapeI                 // i
	ShapeII                // ii
)

// opcodeEntry is one encoding alternative for a mnemonic: its opcode bytes
// (1 or 2) and the operand shape that selects it.
type opcodeEntry struct {
	bytes []byte
	shape Shape
}

// opcodes is the fixed, table-driven mnemonic → encoding map baked into the
// encoder, per §4.6/§6.4. The register-operand groups (0x20xx) encode the
// register into the low nibble of the final opcode byte; Scenario 1's
// worked example (`push $12` → `0x20 0x1C`) fixes push's bytes at
// `{0x20, 0x10}`, and the rest of the 0x20xx group follows the same
// pattern with distinct high nibbles.
var opcodes = map[string][]opcodeEntry{
	"nop": {{[]byte{0x00}, ShapeNone}},

	"add": {{[]byte{0x01}, ShapeRR}, {[]byte{0x10, 0x00}, ShapeIR}},
	"sub": {{[]byte{0x02}, ShapeRR}, {[]byte{0x10, 0x01}, ShapeIR}},
	"mul": {{[]byte{0x03}, ShapeRR}, {[]byte{0x10, 0x02}, ShapeIR}},
	"div": {{[]byte{0x04}, ShapeRR}, {[]byte{0x10, 0x03}, ShapeIR}},
	"and": {{[]byte{0x05}, ShapeRR}, {[]byte{0x10, 0x04}, ShapeIR}},
	"or":  {{[]byte{0x06}, ShapeRR}, {[]byte{0x10, 0x05}, ShapeIR}},
	"xor": {{[]byte{0x07}, ShapeRR}, {[]byte{0x10, 0x06}, ShapeIR}},
	"shl": {{[]byte{0x08}, ShapeRR}, {[]byte{0x10, 0x07}, ShapeIR}},
	"shr": {{[]byte{0x09}, ShapeRR}, {[]byte{0x10, 0x08}, ShapeIR}},

	"ldb": {{[]byte{0x0A}, ShapeRR}},
	"ldw": {{[]byte{0x0B}, ShapeRR}},
	"ldd": {{[]byte{0x0C}, ShapeRR}},
	"stb": {{[]byte{0x0D}, ShapeRR}},
	"stw": {{[]byte{0x0E}, ShapeRR}},
	"std": {{[]byte{0x0F}, ShapeRR}},

	"push": {{[]byte{0x20, 0x10}, ShapeR}, {[]byte{0x21}, ShapeI}},
	"pop":  {{[]byte{0x20, 0x20}, ShapeR}},
	"j":    {{[]byte{0x20, 0x30}, ShapeR}},
	"jt":   {{[]byte{0x20, 0x40}, ShapeR}},
	"jf":   {{[]byte{0x20, 0x50}, ShapeR}},
	"call": {{[]byte{0x20, 0x60}, ShapeR}},

	"pushi": {{[]byte{0x21}, ShapeI}},
	"ji":    {{[]byte{0x22}, ShapeI}},
	"jti":   {{[]byte{0x23}, ShapeI}},
	"jfi":   {{[]byte{0x24}, ShapeI}},
	"calli": {{[]byte{0x25}, ShapeI}},

	"cgtq": {{[]byte{0x2A}, ShapeRR}},
	"cltq": {{[]byte{0x2B}, ShapeRR}},
	"ceq":  {{[]byte{0x2C}, ShapeRR}},
	"cnq":  {{[]byte{0x2D}, ShapeRR}},
	"cgt":  {{[]byte{0x2E}, ShapeRR}},
	"clt":  {{[]byte{0x2F}, ShapeRR}},

	"mov": {{[]byte{0x31}, ShapeRR}, {[]byte{0x30, 0x00}, ShapeIR}},
	"bal": {{[]byte{0x30, 0x07}, ShapeI}},

	"cgtqi": {{[]byte{0x30, 0x01}, ShapeIR}},
	"cltqi": {{[]byte{0x30, 0x02}, ShapeIR}},
	"ceqi":  {{[]byte{0x30, 0x03}, ShapeIR}},
	"cnqi":  {{[]byte{0x30, 0x04}, ShapeIR}},
	"cgti":  {{[]byte{0x30, 0x05}, ShapeIR}},
	"clti":  {{[]byte{0x30, 0x06}, ShapeIR}},

	"stbii": {{[]byte{0x32}, ShapeII}},
	"stwii": {{[]byte{0x33}, ShapeII}},
	"stdii": {{[]byte{0x34}, ShapeII}},

	"ret": {{[]byte{0x35}, ShapeNone}},

	"syscall": {{[]byte{0x40}, ShapeNone}},
	"iret":    {{[]byte{0x41}, ShapeNone}},
	"cli":     {{[]byte{0x42}, ShapeNone}},
	"sti":     {{[]byte{0x43}, ShapeNone}},
}

// lookup finds the encoding alternative for mnemonic matching shape, if any.
func lookup(mnemonic string, shape Shape) (opcodeEntry, bool) {
	for _, e := range opcodes[mnemonic] {
		if e.shape == shape {
			return e, true
		}
	}
	return opcodeEntry{}, false
}
