package link

import (
	"strings"
	"testing"

	"github.com/deagahelio/vm/internal/asm"
)

func assembleAndLink(t *testing.T, l *Linker, path, src string) {
	t.Helper()
	p := asm.NewParser(strings.NewReader(src))
	lines, err := p.Parse()
	if err != nil {
		t.Fatalf("%s: Parse: %v", path, err)
	}
	unit, err := l.Asm.AssembleFile(lines)
	if err != nil {
		t.Fatalf("%s: AssembleFile: %v", path, err)
	}
	if err := l.LinkFile(path, unit); err != nil {
		t.Fatalf("%s: LinkFile: %v", path, err)
	}
}

// Scenario 3 — cross-file linking.
func TestCrossFileLinking(t *testing.T) {
	l := New()
	assembleAndLink(t, l, "A.kl.out", "#f:\n.export #f\nret\n")
	assembleAndLink(t, l, "B.kl.out", "#g:\n.import #f\ncalli #f\nret\n")

	if err := l.FinalLink(); err != nil {
		t.Fatalf("FinalLink: %v", err)
	}

	fAddr, ok := l.globalDefs["f"]
	if !ok {
		t.Fatal("expected f in global defs")
	}

	image := l.Image()
	// calli #f is g's first instruction: g's label and the .import pragma
	// contribute no bytes, so calli starts at offset len("#f body") == 1 (ret).
	callOffset := 1 + 1 // f's "ret" (1 byte) + calli's own opcode byte
	got := int32(image[callOffset]) | int32(image[callOffset+1])<<8 |
		int32(image[callOffset+2])<<16 | int32(image[callOffset+3])<<24
	if int(got) != fAddr {
		t.Errorf("calli #f immediate = %d, want %d", got, fAddr)
	}
}

func TestFinalLinkUnresolvedReported(t *testing.T) {
	l := New()
	assembleAndLink(t, l, "B.kl.out", ".import #missing\ncalli #missing\n")
	if err := l.FinalLink(); err == nil {
		t.Fatal("expected unresolved symbol error")
	}
}

func TestDuplicateExportAcrossFiles(t *testing.T) {
	l := New()
	assembleAndLink(t, l, "A.kl.out", "#f:\n.export #f\nret\n")

	p := asm.NewParser(strings.NewReader("#f:\n.export #f\nret\n"))
	lines, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	unit, err := l.Asm.AssembleFile(lines)
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if err := l.LinkFile("C.kl.out", unit); err == nil {
		t.Fatal("expected duplicate export error")
	}
}

// Scenario 4 — relocation.
func TestRelocatedExport(t *testing.T) {
	l := New()
	l.Asm.Relocate(0x200)
	assembleAndLink(t, l, "mod.asm", "#L:\n.export #L\n")

	if got := l.globalDefs["L"]; got != 0x200 {
		t.Errorf("expected L to resolve to 0x200, got 0x%x", got)
	}
}
