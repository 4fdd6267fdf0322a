// Package manifest handles fx16.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/fx16/pkg/asm"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "fx16.toml"

var log = commonlog.GetLogger("fx16.manifest")

// Manifest represents an fx16.toml project configuration.
type Manifest struct {
	Project   Project   `toml:"project"`
	Assembler Assembler `toml:"assembler"`
	Targets   []Target  `toml:"target"`

	// Dir is the directory containing the fx16.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Assembler holds settings shared by every target.
type Assembler struct {
	IncludeDirs     []string `toml:"include-dirs"`
	MaxIncludeDepth int      `toml:"max-include-depth"`
}

// Target is one memory image built from a list of sources.
type Target struct {
	Name    string   `toml:"name"`
	Sources []string `toml:"sources"`
	Output  string   `toml:"output"`
	Symbols string   `toml:"symbols"`
}

// Load parses an fx16.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %q", path, key.String())
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	for i := range m.Targets {
		if m.Targets[i].Output == "" && m.Targets[i].Name != "" {
			m.Targets[i].Output = m.Targets[i].Name + ".bin"
		}
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find an fx16.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks that every target is buildable.
func (m *Manifest) Validate() error {
	if m.Assembler.MaxIncludeDepth < 0 {
		return errors.New("max-include-depth must not be negative")
	}
	seen := make(map[string]bool, len(m.Targets))
	for i, t := range m.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d has no name", i+1)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target %q", t.Name)
		}
		seen[t.Name] = true
		if len(t.Sources) == 0 {
			return fmt.Errorf("target %q has no sources", t.Name)
		}
	}
	return nil
}

// Target returns the target called name.
func (m *Manifest) Target(name string) (*Target, bool) {
	for i := range m.Targets {
		if m.Targets[i].Name == name {
			return &m.Targets[i], true
		}
	}
	return nil, false
}

// IncludeDirPaths returns absolute paths for the configured include directories.
func (m *Manifest) IncludeDirPaths() []string {
	var paths []string
	for _, d := range m.Assembler.IncludeDirs {
		paths = append(paths, m.path(d))
	}
	return paths
}

// AssemblerOptions returns the session options the manifest configures.
func (m *Manifest) AssemblerOptions() []asm.Option {
	opts := []asm.Option{asm.WithIncludeDirs(m.IncludeDirPaths()...)}
	if m.Assembler.MaxIncludeDepth > 0 {
		opts = append(opts, asm.WithMaxIncludeDepth(m.Assembler.MaxIncludeDepth))
	}
	return opts
}

// SourcePaths returns absolute paths for a target's sources, in build order.
func (m *Manifest) SourcePaths(t *Target) []string {
	paths := make([]string, len(t.Sources))
	for i, s := range t.Sources {
		paths[i] = m.path(s)
	}
	return paths
}

// OutputPath returns the absolute path of a target's memory image.
func (m *Manifest) OutputPath(t *Target) string {
	return m.path(t.Output)
}

// SymbolsPath returns the absolute path of a target's symbol file, or ""
// when the target does not write one.
func (m *Manifest) SymbolsPath(t *Target) string {
	if t.Symbols == "" {
		return ""
	}
	return m.path(t.Symbols)
}

func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
