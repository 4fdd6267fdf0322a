package asm

import (
	"errors"
	"fmt"
)

var (
	// ErrUndefinedLabel is returned by Resolve and Finalize when a reference
	// names a label that was never defined.
	ErrUndefinedLabel = errors.New("undefined reference")

	// ErrMalformedLiteral is returned when a directive operand or a numeric
	// token is not a valid integer literal.
	ErrMalformedLiteral = errors.New("malformed integer literal")

	// ErrIncludeDepth is returned when #include nesting exceeds the
	// configured maximum, which is how include cycles surface.
	ErrIncludeDepth = errors.New("include nesting too deep")

	// ErrFinalized is returned when a session is used after Finalize.
	ErrFinalized = errors.New("assembler already finalized")

	// ErrSessionFailed is returned by every call on a session after a fatal
	// assembly error. It wraps that first error.
	ErrSessionFailed = errors.New("assembly session failed")

	// ErrImageSize is returned by LoadImage for inputs that are not exactly
	// ImageSize bytes.
	ErrImageSize = errors.New("memory image has wrong size")
)

// Position identifies a line of assembly source.
type Position struct {
	File string
	Line int // 1-based
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// SourceError attaches a source position to an assembly error.
type SourceError struct {
	Pos Position
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Pos, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
