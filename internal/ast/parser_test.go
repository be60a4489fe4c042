package ast

import "testing"

func TestParseBasicForms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"int literal", "42", "(42)"},
		{"hex literal", "0x2A", "(42)"},
		{"word", "foo", "(foo)"},
		{"address-of word", "&foo", "(&foo)"},
		{"nested list", "(+ 1 2)", "((+ 1 2))"},
		{"comment stripped", "1 ; trailing comment\n2", "(1 2)"},
		{"char literal", "'A", "(65)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.src, err)
			}
			if got := root.String(); got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.src, got, tt.want)
			}
		})
	}
}

func TestParseString(t *testing.T) {
	root, err := Parse(`"hi"`)
	if err != nil {
		t.Fatal(err)
	}
	if root.Len() != 1 {
		t.Fatalf("expected 1 top-level node, got %d", root.Len())
	}
	str := root.At(0)
	if str.Kind != List {
		t.Fatalf("string literal must lower to a list, got %s", str.Kind)
	}
	b, ok := str.Bytes()
	if !ok {
		t.Fatal("expected byte list")
	}
	if string(b[:len(b)-1]) != "hi" || b[len(b)-1] != 0 {
		t.Fatalf("got %v, want null-terminated \"hi\"", b)
	}
}

func TestParseUnterminatedList(t *testing.T) {
	if _, err := Parse("(+ 1 2"); err == nil {
		t.Fatal("expected error for unterminated list")
	}
}

func TestNodeID(t *testing.T) {
	root, err := Parse("(while (< i n) (set-var i (+ i 1)))")
	if err != nil {
		t.Fatal(err)
	}
	w := root.At(0)
	if w.ID() == "" {
		t.Fatal("expected non-empty node ID")
	}
}
