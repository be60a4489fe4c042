// Package link implements the two-phase symbol resolution and relocation
// described in §4.7: a per-file link pass run right after each file is
// assembled, followed by a final link pass once every input has been
// assembled. Grounded on gmofishsauce-wut4/lang/yld/linker.go's phase
// structure (resolveSymbols → layout → relocate), adapted to a single flat
// byte buffer instead of wut4's split code/data segments, since this ISA
// has no section table (§6.3).
package link

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/deagahelio/vm/internal/asm"
	"github.com/deagahelio/vm/internal/klog"
)

// Linker owns the shared assembler buffer and the global symbol tables
// unioned across every file that has been linked so far.
type Linker struct {
	Asm *asm.Assembler
	Log *slog.Logger

	globalDefs map[string]int
	globalUses map[int]string // buffer index -> symbol, still unresolved
	exportedBy map[string]string
	unresolved []string
}

func New() *Linker {
	return &Linker{
		Asm:        asm.NewAssembler(),
		Log:        klog.Default(),
		globalDefs: map[string]int{},
		globalUses: map[int]string{},
		exportedBy: map[string]string{},
	}
}

// LinkFile runs the per-file link pass (§4.7 step 1) immediately after unit
// was produced by assembling one file: local uses are patched against the
// file's own defs, imports are deferred to the global uses table, anything
// neither defined nor imported is an error, and the file's exports are
// published to the global defs table.
func (l *Linker) LinkFile(path string, unit *asm.Unit) error {
	buf := l.Asm.Bytes()
	base := l.Asm.Base() // pos_offset active while this file was assembled

	for offset, symbol := range unit.Uses {
		index := offset - base
		if target, ok := unit.Defs[symbol]; ok {
			patch(buf, index, target)
			continue
		}
		if unit.Imports[symbol] {
			// Converted to a buffer index now, while base still matches the
			// offset it was recorded under — a later @RELOC must not change
			// how this deferred use is located.
			l.globalUses[index] = symbol
			continue
		}
		return fmt.Errorf("%s: unresolved symbol %q", path, symbol)
	}

	for name := range unit.Exports {
		target, ok := unit.Defs[name]
		if !ok {
			return fmt.Errorf("%s: exported symbol %q has no definition in this file", path, name)
		}
		if owner, dup := l.exportedBy[name]; dup {
			return fmt.Errorf("symbol %q exported by both %s and %s", name, owner, path)
		}
		l.exportedBy[name] = path
		l.globalDefs[name] = target
	}

	l.Log.Debug("linked file", "path", path, "defs", len(unit.Defs), "uses", len(unit.Uses))
	return nil
}

// FinalLink runs §4.7 step 2: re-patch every use deferred from per-file
// linking against the now-complete global defs table. Per §4.7/§7,
// remaining unresolved uses are reported but do not halt emission — the
// caller decides whether an invalid image is still worth writing.
func (l *Linker) FinalLink() error {
	buf := l.Asm.Bytes()
	l.unresolved = nil

	for index, symbol := range l.globalUses {
		target, ok := l.globalDefs[symbol]
		if !ok {
			l.unresolved = append(l.unresolved, symbol)
			continue
		}
		patch(buf, index, target)
	}

	if len(l.unresolved) > 0 {
		return fmt.Errorf("unresolved symbols after final link: %v", l.unresolved)
	}
	return nil
}

// patch writes the little-endian 32-bit absolute address target at buffer
// index i (§4.7: "patch the 4 bytes at use_offset − pos_offset").
func patch(buf []byte, i, target int) {
	if i < 0 || i+4 > len(buf) {
		return
	}
	binary.LittleEndian.PutUint32(buf[i:i+4], uint32(int32(target)))
}

// Image returns the final flat byte stream, ready to be written verbatim
// per §6.3.
func (l *Linker) Image() []byte { return l.Asm.Bytes() }
