// fx16asm assembles FX16 sources into 64 KiB memory images
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/fx16/manifest"
	"github.com/chazu/fx16/pkg/asm"
	"github.com/chazu/fx16/server"

	_ "github.com/tliron/commonlog/simple"
)

const (
	defaultOutput = "memory.bin"
	defaultSource = "demo.asm"
)

var log = commonlog.GetLogger("fx16.cli")

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string   { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

func main() {
	var includeDirs stringList
	var verbose verbosity

	output := flag.String("o", defaultOutput, "Memory image to write")
	symPath := flag.String("sym", "", "Symbol file to write (or read with -d)")
	flag.Var(&includeDirs, "I", "Add a directory to the include search path (repeatable)")
	maxDepth := flag.Int("max-include-depth", asm.DefaultMaxIncludeDepth, "Maximum include nesting")
	flag.Var(&verbose, "v", "Verbose output (repeat for debug traces)")
	disasm := flag.Bool("d", false, "Disassemble a memory image instead of assembling")
	from := flag.String("from", "0", "First address to disassemble")
	to := flag.String("to", "0x10000", "End address (exclusive) to disassemble")
	build := flag.Bool("build", false, "Build the targets of the nearest fx16.toml")
	target := flag.String("target", "", "Build only this fx16.toml target")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fx16asm [options] [file.asm...]\n\n")
		fmt.Fprintf(os.Stderr, "Assembles FX16 sources into a 65536-byte memory image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  fx16asm boot.asm main.asm             # Write memory.bin\n")
		fmt.Fprintf(os.Stderr, "  fx16asm -o rom.bin -sym rom.sym -I lib main.asm\n")
		fmt.Fprintf(os.Stderr, "  fx16asm -d -sym rom.sym -to 0x200 rom.bin\n")
		fmt.Fprintf(os.Stderr, "  fx16asm -build -target rom             # Build one fx16.toml target\n")
		fmt.Fprintf(os.Stderr, "  fx16asm -lsp                           # Language server for editors\n")
	}
	flag.Parse()

	commonlog.Configure(int(verbose), nil)

	opts := []asm.Option{
		asm.WithIncludeDirs(includeDirs...),
		asm.WithMaxIncludeDepth(*maxDepth),
	}
	paths := flag.Args()

	var err error
	switch {
	case *lspMode:
		err = runLSP(opts)

	case *disasm:
		if len(paths) != 1 {
			flag.Usage()
			os.Exit(2)
		}
		err = disassembleFile(os.Stdout, paths[0], *symPath, *from, *to)

	case *build || *target != "":
		err = buildFromDir(".", *target)

	case len(paths) > 0:
		err = assembleFiles(paths, *output, *symPath, opts)

	default:
		// With no sources, prefer a project manifest, then demo.asm
		m, ferr := manifest.FindAndLoad(".")
		switch {
		case ferr != nil:
			err = ferr
		case m != nil:
			err = buildManifest(context.Background(), m, "")
		case exists(defaultSource):
			err = assembleFiles([]string{defaultSource}, *output, *symPath, opts)
		default:
			flag.Usage()
			os.Exit(2)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runLSP serves editors on stdio, using the nearest manifest's include
// settings when there is one.
func runLSP(opts []asm.Option) error {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return err
	}
	if m != nil {
		opts = append(opts, m.AssemblerOptions()...)
	}
	return server.NewLSP(opts...).Run()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
