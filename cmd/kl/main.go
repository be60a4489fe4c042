// Command kl is the KL compiler CLI: one or more source paths in, one
// `<file>.out` assembly file per input, per §6.1.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/teris-io/cli"

	"github.com/deagahelio/vm/internal/compile"
	"github.com/deagahelio/vm/internal/diag"
	"github.com/deagahelio/vm/internal/klog"
	"github.com/deagahelio/vm/internal/types"
)

var description = strings.ReplaceAll(`
kl compiles Lisp-syntax KL source files into textual assembly, one
<file>.out per input. Type checking defaults to loose merging of integer
widths; strict rejects any implicit widening, off skips the check entirely.
`, "\n", " ")

var KL = cli.New(description).
	WithArg(cli.NewArg("inputs", "KL source files to compile").AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("comment", "Annotate generated assembly with source line comments").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("no-comment", "Suppress source line comments (default)").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("type-checking", "Type-merge mode: strict, loose (default), or off").WithType(cli.TypeString)).
	WithOption(cli.NewOption("v", "Raise log verbosity to info").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("debug", "Raise log verbosity to debug").WithType(cli.TypeBool)).
	WithAction(handler)

func handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "ERROR: no input files given")
		return 1
	}

	if _, ok := options["debug"]; ok {
		klog.Level.Set(slog.LevelDebug)
	} else if _, ok := options["v"]; ok {
		klog.Level.Set(slog.LevelInfo)
	}

	mode := types.Loose
	if v, ok := options["type-checking"]; ok {
		m, err := types.ParseMode(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
			return 1
		}
		mode = m
	}

	_, commented := options["comment"]
	_, uncommented := options["no-comment"]
	comment := commented && !uncommented

	for _, path := range args {
		if err := compileFile(path, mode, comment); err != nil {
			return 1
		}
	}
	return 0
}

func compileFile(path string, mode types.Mode, comment bool) error {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot read %s: %s\n", path, err)
		return err
	}

	reporter := diag.NewReporter(os.Stderr)
	c := compile.New(path, compile.WithMode(mode), compile.WithComment(comment), compile.WithReporter(reporter))
	err = c.Compile(string(src))
	reporter.Flush()
	if err != nil {
		return err
	}

	out := path + ".out"
	if err := os.WriteFile(out, []byte(c.Code()), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot write %s: %s\n", out, err)
		return err
	}
	return nil
}

func main() { os.Exit(KL.Run(os.Args, os.Stdout)) }
