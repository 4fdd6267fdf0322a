package asm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
)

// DefaultMaxIncludeDepth bounds #include nesting unless overridden.
const DefaultMaxIncludeDepth = 64

// maxLineLen is the longest source line the scanner accepts.
const maxLineLen = 1 << 20

// Reference is a two-byte placeholder at Offset waiting for the address of
// Label.
type Reference struct {
	Label  string
	Offset uint16
	Pos    Position
}

// Options configures an Assembler.
type Options struct {
	// IncludeDirs are searched for #include paths that are not found as
	// written or next to the including file.
	IncludeDirs []string

	// MaxIncludeDepth limits #include nesting. Zero means
	// DefaultMaxIncludeDepth.
	MaxIncludeDepth int

	Logger commonlog.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithIncludeDirs appends include search directories.
func WithIncludeDirs(dirs ...string) Option {
	return func(o *Options) {
		o.IncludeDirs = append(o.IncludeDirs, dirs...)
	}
}

// WithMaxIncludeDepth sets the include nesting limit.
func WithMaxIncludeDepth(n int) Option {
	return func(o *Options) {
		o.MaxIncludeDepth = n
	}
}

// WithLogger replaces the default "fx16.asm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(o *Options) {
		o.Logger = log
	}
}

// Assembler is one assembly session. It owns the memory image, the label
// table and the pending references from the first Assemble call until
// Finalize. An Assembler must not be used from more than one goroutine.
type Assembler struct {
	opts Options
	log  commonlog.Logger

	img      *Image
	labels   map[string]uint16
	labelPos map[string]Position
	refs     []Reference

	depth     int
	finalized bool
	err       error // first fatal error; the session is unusable after it
}

// New creates an empty session.
func New(opts ...Option) *Assembler {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxIncludeDepth <= 0 {
		o.MaxIncludeDepth = DefaultMaxIncludeDepth
	}
	if o.Logger == nil {
		o.Logger = commonlog.GetLogger("fx16.asm")
	}
	return &Assembler{
		opts:     o,
		log:      o.Logger,
		img:      NewImage(),
		labels:   make(map[string]uint16),
		labelPos: make(map[string]Position),
	}
}

// Image returns the session's memory image.
func (a *Assembler) Image() *Image {
	return a.img
}

// Labels returns a copy of the label table.
func (a *Assembler) Labels() map[string]uint16 {
	out := make(map[string]uint16, len(a.labels))
	for k, v := range a.labels {
		out[k] = v
	}
	return out
}

// References returns a copy of the pending reference list, in source order.
func (a *Assembler) References() []Reference {
	return append([]Reference(nil), a.refs...)
}

// Assemble parses the file at path, and everything it includes, into the
// session. It may be called several times before Finalize; later files
// continue at the program counter where the previous one stopped.
//
// Any error is fatal: later calls, including Finalize, return
// ErrSessionFailed wrapping it.
func (a *Assembler) Assemble(path string) error {
	if err := a.usable(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return a.fail(fmt.Errorf("cannot open %s: %w", path, err))
	}
	defer f.Close()
	return a.fail(a.assembleSource(path, f))
}

// AssembleReader is Assemble for source that is already in memory. name is
// used in error positions and as the base for relative includes.
func (a *Assembler) AssembleReader(name string, r io.Reader) error {
	if err := a.usable(); err != nil {
		return err
	}
	return a.fail(a.assembleSource(name, r))
}

// usable reports why the session cannot take more work, if it cannot.
func (a *Assembler) usable() error {
	if a.finalized {
		return ErrFinalized
	}
	if a.err != nil {
		return fmt.Errorf("%w: %w", ErrSessionFailed, a.err)
	}
	return nil
}

// fail records err as the session's first fatal error and returns it.
func (a *Assembler) fail(err error) error {
	if err != nil && a.err == nil {
		a.err = err
	}
	return err
}

func (a *Assembler) assembleSource(name string, r io.Reader) error {
	a.log.Debugf("assembling %s at 0x%04X", name, a.img.PC())

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineLen)
	pos := Position{File: name}
	for sc.Scan() {
		pos.Line++
		if err := a.parseLine(pos, sc.Text()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("cannot read %s: %w", name, err)
	}
	return nil
}

// parseLine handles one line of source. Token forms are checked in a fixed
// order; the first match wins.
func (a *Assembler) parseLine(pos Position, line string) error {
	for _, tok := range strings.Fields(line) {
		switch {
		case tok[0] == ';':
			return nil

		case tok[len(tok)-1] == ':':
			a.defineLabel(pos, tok[:len(tok)-1])

		case tok[0] == '@':
			a.img.EmitWord(uint16(OpLit))
			a.reference(pos, tok[1:])

		case tok[0] == '.':
			v, err := directiveOperand(pos, tok)
			if err != nil {
				return err
			}
			a.img.EmitByte(byte(v))

		case tok[0] == ',':
			v, err := directiveOperand(pos, tok)
			if err != nil {
				return err
			}
			a.img.EmitWord(uint16(v))

		case tok[0] == '>':
			v, err := directiveOperand(pos, tok)
			if err != nil {
				return err
			}
			a.img.SetPC(uint16(v))

		case tok[0] == '#':
			if err := a.include(pos, tok[1:]); err != nil {
				return err
			}

		default:
			if err := a.instruction(pos, tok); err != nil {
				return err
			}
		}
	}
	return nil
}

// directiveOperand parses the literal following a one-character directive.
func directiveOperand(pos Position, tok string) (int64, error) {
	v, ok := ParseInt(tok[1:])
	if !ok {
		return 0, &SourceError{Pos: pos, Err: fmt.Errorf("%w %q", ErrMalformedLiteral, tok)}
	}
	return v, nil
}

// instruction encodes a bare token: a mnemonic, a literal push, or a push
// of a label's address.
func (a *Assembler) instruction(pos Position, tok string) error {
	if op, ok := Lookup(tok); ok {
		a.img.EmitWord(uint16(op))
		return nil
	}
	if v, ok := ParseInt(tok); ok {
		a.img.EmitWord(uint16(OpLit))
		a.img.EmitWord(uint16(v))
		return nil
	}
	if looksNumeric(tok) {
		return &SourceError{Pos: pos, Err: fmt.Errorf("%w %q", ErrMalformedLiteral, tok)}
	}
	a.img.EmitWord(uint16(OpLit))
	a.reference(pos, tok)
	return nil
}

func (a *Assembler) defineLabel(pos Position, name string) {
	pc := a.img.PC()
	if prev, ok := a.labels[name]; ok {
		a.log.Debugf("%s: label %q redefined at 0x%04X (was 0x%04X)", pos, name, pc, prev)
	}
	a.labels[name] = pc
	a.labelPos[name] = pos
}

// reference emits a zero placeholder word and queues it for patching.
func (a *Assembler) reference(pos Position, label string) {
	at := a.img.EmitWord(0x0000)
	a.refs = append(a.refs, Reference{Label: label, Offset: at, Pos: pos})
}

// include assembles another file in place, sharing all session state.
func (a *Assembler) include(pos Position, path string) error {
	if a.depth >= a.opts.MaxIncludeDepth {
		return &SourceError{Pos: pos, Err: fmt.Errorf("%w: %s (limit %d)", ErrIncludeDepth, path, a.opts.MaxIncludeDepth)}
	}

	resolved := a.findInclude(path, filepath.Dir(pos.File))
	f, err := os.Open(resolved)
	if err != nil {
		return &SourceError{Pos: pos, Err: fmt.Errorf("cannot open include %s: %w", path, err)}
	}
	defer f.Close()

	a.depth++
	defer func() { a.depth-- }()
	return a.assembleSource(resolved, f)
}

// findInclude returns the first existing candidate for path: as written,
// next to the including file, then in each include directory. If none
// exists, path is returned unchanged so the open error names it.
func (a *Assembler) findInclude(path, fromDir string) string {
	if filepath.IsAbs(path) || exists(path) {
		return path
	}
	var candidates []string
	if fromDir != "" && fromDir != "." {
		candidates = append(candidates, filepath.Join(fromDir, path))
	}
	for _, dir := range a.opts.IncludeDirs {
		candidates = append(candidates, filepath.Join(dir, path))
	}
	for _, c := range candidates {
		if exists(c) {
			return c
		}
	}
	return path
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Resolve patches every pending reference with its label's address. It
// stops at the first reference whose label was never defined.
func (a *Assembler) Resolve() error {
	for _, ref := range a.refs {
		addr, ok := a.labels[ref.Label]
		if !ok {
			return &SourceError{Pos: ref.Pos, Err: fmt.Errorf("%w: '%s'", ErrUndefinedLabel, ref.Label)}
		}
		a.img.SetWord(ref.Offset, addr)
	}
	a.log.Debugf("patched %d references against %d labels", len(a.refs), len(a.labels))
	return nil
}

// Finalize resolves all references and writes the complete image to
// outputPath. Nothing is written when resolution fails or an earlier
// Assemble call failed. Finalize may only be called once per session.
//
// The image is written to a temporary file in the same directory and
// renamed over outputPath. The directory must therefore allow creating
// files, the result always has mode 0644, and a symlink at outputPath is
// replaced rather than written through.
func (a *Assembler) Finalize(outputPath string) error {
	if err := a.usable(); err != nil {
		a.finalized = true
		return err
	}
	a.finalized = true

	if err := a.Resolve(); err != nil {
		return a.fail(err)
	}
	if err := writeImageFile(outputPath, a.img); err != nil {
		return err
	}
	a.log.Infof("wrote %s (%d bytes, %d labels)", outputPath, ImageSize, len(a.labels))
	return nil
}

// FinalizeTo is Finalize for an arbitrary writer.
func (a *Assembler) FinalizeTo(w io.Writer) error {
	if err := a.usable(); err != nil {
		a.finalized = true
		return err
	}
	a.finalized = true

	if err := a.Resolve(); err != nil {
		return a.fail(err)
	}
	_, err := a.img.WriteTo(w)
	return err
}

// writeImageFile writes img next to path and renames it into place, so a
// failed write never leaves a truncated image behind.
func writeImageFile(path string, img *Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".fx16-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := img.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
