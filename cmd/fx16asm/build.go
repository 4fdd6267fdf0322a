package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/fx16/manifest"
	"github.com/chazu/fx16/pkg/asm"
	"github.com/chazu/fx16/pkg/symfile"
)

// assembleFiles assembles paths, in order, into one image.
func assembleFiles(paths []string, output, symPath string, opts []asm.Option) error {
	a := asm.New(opts...)
	for _, path := range paths {
		if err := a.Assemble(path); err != nil {
			return err
		}
	}
	return finish(a, output, symPath)
}

// finish resolves references and writes the image and optional symbol file.
func finish(a *asm.Assembler, output, symPath string) error {
	if err := a.Finalize(output); err != nil {
		return err
	}
	if symPath == "" {
		return nil
	}
	st := a.Symbols()
	if err := symfile.WriteFile(symPath, st); err != nil {
		return err
	}
	log.Infof("wrote %s: %d labels, %d references", symPath, len(st.Labels), len(st.References))
	return nil
}

// buildFromDir builds the manifest found by walking up from dir.
func buildFromDir(dir, only string) error {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no %s found in %s or any parent directory", manifest.FileName, dir)
	}
	return buildManifest(context.Background(), m, only)
}

// buildManifest builds every target of m, or only the named one, in
// parallel. The first failure cancels targets that have not finished.
func buildManifest(ctx context.Context, m *manifest.Manifest, only string) error {
	targets := m.Targets
	if only != "" {
		t, ok := m.Target(only)
		if !ok {
			return fmt.Errorf("no target %q in %s", only, filepath.Join(m.Dir, manifest.FileName))
		}
		targets = []manifest.Target{*t}
	}
	if len(targets) == 0 {
		return fmt.Errorf("%s defines no targets", filepath.Join(m.Dir, manifest.FileName))
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range targets {
		t := &targets[i]
		g.Go(func() error {
			if err := buildTarget(ctx, m, t); err != nil {
				return fmt.Errorf("target %s: %w", t.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func buildTarget(ctx context.Context, m *manifest.Manifest, t *manifest.Target) error {
	a := asm.New(m.AssemblerOptions()...)
	for _, src := range m.SourcePaths(t) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.Assemble(src); err != nil {
			return err
		}
	}

	output := m.OutputPath(t)
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return err
	}
	return finish(a, output, m.SymbolsPath(t))
}

// disassembleFile writes a listing of the image at path to w. from and to
// use the assembler's integer syntax.
func disassembleFile(w io.Writer, path, symPath, from, to string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	img, err := asm.LoadImage(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var syms *asm.SymbolTable
	if symPath != "" {
		if syms, err = symfile.ReadFile(symPath); err != nil {
			return err
		}
	}

	lo, err := parseAddr(from)
	if err != nil {
		return err
	}
	hi, err := parseAddr(to)
	if err != nil {
		return err
	}
	if lo > hi {
		return fmt.Errorf("empty range 0x%04X-0x%04X", lo, hi)
	}

	_, err = io.WriteString(w, asm.Disassemble(img, lo, hi, syms))
	return err
}

func parseAddr(s string) (int, error) {
	v, ok := asm.ParseInt(s)
	if !ok || v < 0 || v > asm.ImageSize {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return int(v), nil
}
