package compile

import (
	"strings"
	"testing"

	"github.com/deagahelio/vm/internal/diag"
	"github.com/deagahelio/vm/internal/types"
)

func compileOK(t *testing.T, src string) string {
	t.Helper()
	c := New("test.kl", WithReporter(diag.NewReporter(&strings.Builder{})))
	if err := c.Compile(src); err != nil {
		t.Fatalf("Compile(%q) = %v", src, err)
	}
	return c.Code()
}

func TestCompileArithmetic(t *testing.T) {
	code := compileOK(t, `(fn uint32 main () (return (+ 2 3)))`)

	want := []string{
		"push $12",
		"mov $15 $12",
		"mov 3 $1",
		"push $1",
		"mov 2 $1",
		"pop $2",
		"add $2 $1",
		"mov $12 $15",
		"pop $12",
		"ret",
	}
	for _, line := range want {
		if !strings.Contains(code, line) {
			t.Errorf("expected generated code to contain %q, got:\n%s", line, code)
		}
	}
}

func TestCompileGlobalData(t *testing.T) {
	code := compileOK(t, `(static uint32 x 0x11223344)`)

	if !strings.Contains(code, "#x:") {
		t.Errorf("expected label #x:, got:\n%s", code)
	}
	if !strings.Contains(code, ".dword 287454020") {
		t.Errorf("expected .dword 287454020, got:\n%s", code)
	}
}

func TestCompileUndefinedFunction(t *testing.T) {
	c := New("test.kl")
	err := c.Compile(`(fn uint32 main () (return (q)))`)
	if err == nil {
		t.Fatal("expected compile error for undefined function")
	}
	if !strings.Contains(err.Error(), "undefined function") {
		t.Errorf("expected 'undefined function', got %v", err)
	}
}

func TestCompileWhileLoop(t *testing.T) {
	code := compileOK(t, `(fn uint32 main ((uint32 n))
		(local uint32 i 0)
		(while (< i n) (set-var i (+ i 1)))
		(return i))`)

	if !strings.Contains(code, "jfi #__while_") {
		t.Errorf("expected jfi to while-end label, got:\n%s", code)
	}
	if !strings.Contains(code, "ji #__while_") {
		t.Errorf("expected ji back to while-start label, got:\n%s", code)
	}
}

func TestCompileStructFields(t *testing.T) {
	code := compileOK(t, `
		(struct point (uint32 x) (uint32 y))
		(fn uint32 main ((uint32 p))
			(return (get point y p)))`)

	if !strings.Contains(code, "add 4 $2") {
		t.Errorf("expected field offset add, got:\n%s", code)
	}
}

func TestCompileDuplicateFunction(t *testing.T) {
	c := New("test.kl")
	err := c.Compile(`(fn uint32 f () (return 1)) (fn uint32 f () (return 2))`)
	if err == nil || !strings.Contains(err.Error(), "cannot declare function twice") {
		t.Fatalf("expected duplicate function error, got %v", err)
	}
}

func TestCompileTypeMergeFailure(t *testing.T) {
	c := New("test.kl", WithMode(types.Strict))
	err := c.Compile(`(fn uint32 main () (return (+ (cast uint8 1) (cast int8 2))))`)
	if err == nil || !strings.Contains(err.Error(), "cannot merge types") {
		t.Fatalf("expected merge error, got %v", err)
	}
}
