// Command yasm is the assembler+linker CLI: it assembles one or more
// textual assembly files, interleaved with `@RELOC:<origin>` tokens, and
// writes the linked flat binary image (§6.2, §6.3).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/teris-io/cli"

	"github.com/deagahelio/vm/internal/asm"
	"github.com/deagahelio/vm/internal/klog"
	"github.com/deagahelio/vm/internal/link"
)

var description = strings.ReplaceAll(`
yasm assembles one or more assembly files into a single flat binary image.
Inputs are processed in order; a token of the form @RELOC:<hex_origin> sets
the absolute load address assumed for the bytes that follow.
`, "\n", " ")

var YASM = cli.New(description).
	WithArg(cli.NewArg("inputs", "Assembly files and @RELOC:<origin> tokens, in order").WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "Output path for the linked binary image").WithChar('o').WithType(cli.TypeString)).
	WithOption(cli.NewOption("v", "Raise log verbosity to info").WithType(cli.TypeBool)).
	WithOption(cli.NewOption("debug", "Raise log verbosity to debug").WithType(cli.TypeBool)).
	WithAction(handler)

func handler(args []string, options map[string]string) int {
	output, ok := options["output"]
	if !ok {
		fmt.Fprintln(os.Stderr, "ERROR: -o/--output is required")
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "ERROR: no input files given")
		return 1
	}

	if _, ok := options["debug"]; ok {
		klog.Level.Set(slog.LevelDebug)
	} else if _, ok := options["v"]; ok {
		klog.Level.Set(slog.LevelInfo)
	}

	l := link.New()
	invalid := false

	for _, token := range args {
		if origin, ok := strings.CutPrefix(token, "@RELOC:"); ok {
			v, err := strconv.ParseInt(origin, 0, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: malformed relocation token %q: %s\n", token, err)
				return 1
			}
			l.Asm.Relocate(int(v))
			continue
		}

		if err := assembleAndLink(l, token); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
			invalid = true
		}
	}

	if err := l.FinalLink(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		invalid = true
	}

	if err := os.WriteFile(output, l.Image(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot write %s: %s\n", output, err)
		return 1
	}
	if invalid {
		return 1
	}
	return 0
}

func assembleAndLink(l *link.Linker, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	p := asm.NewParser(f)
	lines, err := p.Parse()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	unit, err := l.Asm.AssembleFile(lines)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return l.LinkFile(path, unit)
}

func main() { os.Exit(YASM.Run(os.Args, os.Stdout)) }
