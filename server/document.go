package server

import (
	"errors"
	"net/url"
	"strings"
	"unicode"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/fx16/pkg/asm"
)

// token is one whitespace-separated word of a source line.
type token struct {
	text string
	line int // zero-based
	col  int // zero-based byte offset
}

// document is an open editor buffer and the result of assembling it.
type document struct {
	uri     protocol.DocumentUri
	path    string
	text    string
	tokens  []token
	symbols *asm.SymbolTable
	err     error // first assembly or resolution error, if any
}

// analyze assembles text in a fresh session. Includes are resolved relative
// to the document's file when the URI names one.
func analyze(uri protocol.DocumentUri, text string, opts []asm.Option) *document {
	doc := &document{
		uri:    uri,
		path:   uriPath(uri),
		text:   text,
		tokens: scanTokens(text),
	}

	a := asm.New(opts...)
	doc.err = a.AssembleReader(doc.path, strings.NewReader(text))
	if doc.err == nil {
		doc.err = a.Resolve()
	}
	doc.symbols = a.Symbols()
	return doc
}

// diagnostics converts the assembly error into an LSP diagnostic. Errors
// raised inside an included file are reported on the first line.
func (d *document) diagnostics() []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	if d.err == nil {
		return diagnostics
	}

	line, msg := 0, d.err.Error()
	var se *asm.SourceError
	if errors.As(d.err, &se) && se.Pos.File == d.path && se.Pos.Line > 0 {
		line = se.Pos.Line - 1
		msg = se.Err.Error()
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	diagnostics = append(diagnostics, protocol.Diagnostic{
		Range:    d.lineRange(line),
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	})
	return diagnostics
}

// definitions returns the token spans where label is defined. The last one
// is the definition the assembler keeps.
func (d *document) definitions(label string) []protocol.Range {
	var ranges []protocol.Range
	for _, tok := range d.tokens {
		if tok.text == label+":" {
			ranges = append(ranges, span(tok.line, tok.col, len(label)))
		}
	}
	return ranges
}

// references returns the token spans that use label as an operand.
func (d *document) references(label string) []protocol.Range {
	var ranges []protocol.Range
	for _, tok := range d.tokens {
		switch tok.text {
		case "@" + label:
			ranges = append(ranges, span(tok.line, tok.col+1, len(label)))
		case label:
			ranges = append(ranges, span(tok.line, tok.col, len(label)))
		}
	}
	return ranges
}

func (d *document) lineRange(line int) protocol.Range {
	lines := strings.Split(d.text, "\n")
	width := 0
	if line < len(lines) {
		width = len(strings.TrimRight(lines[line], "\r"))
	}
	return span(line, 0, width)
}

// scanTokens splits text into tokens on the same Unicode whitespace as
// strings.Fields in the assembler, dropping everything after a comment token.
func scanTokens(text string) []token {
	var tokens []token
	for lineNo, line := range strings.Split(text, "\n") {
		start := -1
		for col, r := range line + " " {
			if !unicode.IsSpace(r) {
				if start < 0 {
					start = col
				}
				continue
			}
			if start < 0 {
				continue
			}
			word := line[start:col]
			if strings.HasPrefix(word, ";") {
				break
			}
			tokens = append(tokens, token{text: word, line: lineNo, col: start})
			start = -1
		}
	}
	return tokens
}

func span(line, col, width int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col + width)},
	}
}

// uriPath returns the file system path of a file:// URI, or the URI itself
// for any other scheme.
func uriPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	return u.Path
}
