// Package diag renders compiler/assembler errors and warnings in the
// "ERROR: <message> (<path>:<line>:<col>)" + source-line + caret format
// required by spec §6.1/§7.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/deagahelio/vm/internal/ast"
)

// Diagnostic is one reported error or warning, carrying the source
// coordinate that produced it.
type Diagnostic struct {
	Path    string
	Pos     ast.Pos
	Message string
	Warning bool
}

func (d Diagnostic) Error() string {
	kind := "ERROR"
	if d.Warning {
		kind = "WARNING"
	}
	return fmt.Sprintf("%s: %s (%s:%s)", kind, d.Message, d.Path, d.Pos)
}

// Reporter accumulates diagnostics for one compilation/assembly run and
// prints them with the source line and a caret, colorizing the caret line
// when the destination is an interactive terminal. Mirrors the
// IsTerminal-gated behavior smoynes-elsie's tty package uses to decide
// whether to drive a raw terminal session.
type Reporter struct {
	out       io.Writer
	color     bool
	source    map[string][]string // path -> lines, registered by SetSource
	errors    []Diagnostic
	warnings  []Diagnostic
}

// NewReporter creates a Reporter writing to out. If out is *os.File and
// refers to a terminal, caret lines are colorized.
func NewReporter(out io.Writer) *Reporter {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Reporter{out: out, color: color, source: map[string][]string{}}
}

// SetSource registers the source text for path so later diagnostics can
// quote the offending line. Safe to call once per compiled file.
func (r *Reporter) SetSource(path, text string) {
	r.source[path] = strings.Split(text, "\n")
}

// Error records a fatal diagnostic. HasErrors reports whether any were
// recorded.
func (r *Reporter) Error(path string, pos ast.Pos, format string, args ...any) {
	r.errors = append(r.errors, Diagnostic{Path: path, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Warn records a non-fatal diagnostic (e.g. type ambiguity in loose mode).
func (r *Reporter) Warn(path string, pos ast.Pos, format string, args ...any) {
	r.warnings = append(r.warnings, Diagnostic{Path: path, Pos: pos, Message: fmt.Sprintf(format, args...), Warning: true})
}

func (r *Reporter) HasErrors() bool { return len(r.errors) > 0 }

// Flush prints every recorded warning, then every recorded error (each
// group in the order recorded), and clears the buffers.
func (r *Reporter) Flush() {
	for _, d := range r.warnings {
		r.print(d)
	}
	for _, d := range r.errors {
		r.print(d)
	}
	r.warnings = nil
	r.errors = nil
}

func (r *Reporter) print(d Diagnostic) {
	fmt.Fprintln(r.out, d.Error())

	lines := r.source[d.Path]
	if d.Pos.Line < 1 || d.Pos.Line > len(lines) {
		return
	}
	line := lines[d.Pos.Line-1]
	fmt.Fprintln(r.out, line)

	caret := strings.Repeat(" ", max(d.Pos.Col-1, 0)) + "^"
	if r.color {
		fmt.Fprintf(r.out, "\033[31m%s\033[0m\n", caret)
	} else {
		fmt.Fprintln(r.out, caret)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
