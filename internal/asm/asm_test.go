package asm

import (
	"strings"
	"testing"
)

func parseOK(t *testing.T, src string) []Line {
	t.Helper()
	p := NewParser(strings.NewReader(src))
	lines, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse(%q) = %v", src, err)
	}
	return lines
}

// Scenario 1 — arithmetic lowering's worked example: push $12 encodes to
// 0x20 0x1C.
func TestEncodePushRegister(t *testing.T) {
	lines := parseOK(t, "push $12\n")
	a := NewAssembler()
	if _, err := a.AssembleFile(lines); err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	want := []byte{0x20, 0x1C}
	if string(a.Bytes()) != string(want) {
		t.Errorf("push $12 = % X, want % X", a.Bytes(), want)
	}
}

// Scenario 2 — global little-endian data.
func TestEncodeDwordLittleEndian(t *testing.T) {
	lines := parseOK(t, "#x:\n.dword 287454020\n")
	a := NewAssembler()
	u, err := a.AssembleFile(lines)
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if u.Defs["x"] != 0 {
		t.Errorf("expected x at offset 0, got %d", u.Defs["x"])
	}
	want := []byte{0x44, 0x33, 0x22, 0x11}
	if string(a.Bytes()) != string(want) {
		t.Errorf("dword bytes = % X, want % X", a.Bytes(), want)
	}
}

func TestEncodeRRArithmetic(t *testing.T) {
	lines := parseOK(t, "add $2 $1\n")
	a := NewAssembler()
	if _, err := a.AssembleFile(lines); err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	want := []byte{0x01, 0x21}
	if string(a.Bytes()) != string(want) {
		t.Errorf("add $2 $1 = % X, want % X", a.Bytes(), want)
	}
}

func TestEncodeImmediateMove(t *testing.T) {
	lines := parseOK(t, "mov 3 $1\n")
	a := NewAssembler()
	if _, err := a.AssembleFile(lines); err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	want := []byte{0x30, 0x01, 0x03, 0x00, 0x00, 0x00}
	if string(a.Bytes()) != string(want) {
		t.Errorf("mov 3 $1 = % X, want % X", a.Bytes(), want)
	}
}

func TestEncodeUnresolvedSymbolRecordsUse(t *testing.T) {
	lines := parseOK(t, "calli #f\n")
	a := NewAssembler()
	u, err := a.AssembleFile(lines)
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if sym, ok := u.Uses[1]; !ok || sym != "f" {
		t.Errorf("expected use of %q at offset 1, got %v", "f", u.Uses)
	}
	want := []byte{0x25, 0xFF, 0xFF, 0xFF, 0xFF}
	if string(a.Bytes()) != string(want) {
		t.Errorf("calli #f = % X, want % X", a.Bytes(), want)
	}
}

func TestExportImportPragmas(t *testing.T) {
	lines := parseOK(t, "#f:\n.export #f\n.import #g\nret\n")
	a := NewAssembler()
	u, err := a.AssembleFile(lines)
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if !u.Exports["f"] {
		t.Errorf("expected f exported")
	}
	if !u.Imports["g"] {
		t.Errorf("expected g imported")
	}
}

func TestDefineSubstitutesLiteral(t *testing.T) {
	lines := parseOK(t, ".define #K 42\nmov #K $1\n")
	a := NewAssembler()
	u, err := a.AssembleFile(lines)
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if len(u.Uses) != 0 {
		t.Errorf("expected no linker use for defined symbol, got %v", u.Uses)
	}
	want := []byte{0x30, 0x01, 0x2A, 0x00, 0x00, 0x00}
	if string(a.Bytes()) != string(want) {
		t.Errorf("mov #K $1 = % X, want % X", a.Bytes(), want)
	}
}

// Scenario 4 — relocation.
func TestRelocateBase(t *testing.T) {
	a := NewAssembler()
	a.Relocate(0x200)
	lines := parseOK(t, "#L:\n")
	u, err := a.AssembleFile(lines)
	if err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	if u.Defs["L"] != 0x200 {
		t.Errorf("expected L at 0x200, got 0x%x", u.Defs["L"])
	}
}

func TestDuplicateSymbolError(t *testing.T) {
	lines := parseOK(t, "#a:\n#a:\n")
	a := NewAssembler()
	if _, err := a.AssembleFile(lines); err == nil {
		t.Fatal("expected duplicate symbol error")
	}
}

func TestDataDirectiveDefinedConstant(t *testing.T) {
	lines := parseOK(t, ".define #K 7\n.byte #K\n")
	a := NewAssembler()
	if _, err := a.AssembleFile(lines); err != nil {
		t.Fatalf("AssembleFile: %v", err)
	}
	want := []byte{0x07}
	if string(a.Bytes()) != string(want) {
		t.Errorf(".byte #K = % X, want % X", a.Bytes(), want)
	}
}

func TestDataDirectiveRejectsUndefinedSymbol(t *testing.T) {
	lines := parseOK(t, ".word #missing\n")
	a := NewAssembler()
	if _, err := a.AssembleFile(lines); err == nil {
		t.Fatal("expected error for undefined symbol in data directive")
	}
}

func TestUnknownMnemonic(t *testing.T) {
	lines := []Line{Instr{Mnemonic: "frobnicate"}}
	a := NewAssembler()
	if _, err := a.AssembleFile(lines); err == nil {
		t.Fatal("expected unknown mnemonic error")
	}
}
