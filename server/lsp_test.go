package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/fx16/pkg/asm"
)

const sampleURI = protocol.DocumentUri("file:///work/prog.asm")

// sample assembles to: start=0x0000, loop=0x000A.
const sample = "; demo\n" +
	"start: 10 @loop jmp\n" +
	"loop: dup @loop jnz\n" +
	"ret\n"

func sampleDoc(t *testing.T) *document {
	t.Helper()
	doc := analyze(sampleURI, sample, nil)
	if doc.err != nil {
		t.Fatalf("sample did not assemble: %v", doc.err)
	}
	return doc
}

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix_SimpleWord(t *testing.T) {
	text := "  ad"
	pos := protocol.Position{Line: 0, Character: 4}
	prefix := extractPrefix(text, pos)
	if prefix != "ad" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "ad")
	}
}

func TestExtractPrefix_LabelReference(t *testing.T) {
	text := "start: @lo"
	pos := protocol.Position{Line: 0, Character: 10}
	prefix := extractPrefix(text, pos)
	if prefix != "@lo" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "@lo")
	}
}

func TestExtractPrefix_BareAt(t *testing.T) {
	text := "jmp @"
	pos := protocol.Position{Line: 0, Character: 5}
	prefix := extractPrefix(text, pos)
	if prefix != "@" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "@")
	}
}

func TestExtractPrefix_MultiLine(t *testing.T) {
	text := "first line\nsecond line\nsw"
	pos := protocol.Position{Line: 2, Character: 2}
	prefix := extractPrefix(text, pos)
	if prefix != "sw" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "sw")
	}
}

func TestExtractPrefix_EmptyLine(t *testing.T) {
	text := ""
	pos := protocol.Position{Line: 0, Character: 0}
	prefix := extractPrefix(text, pos)
	if prefix != "" {
		t.Errorf("extractPrefix = %q, want empty string", prefix)
	}
}

func TestExtractPrefix_LineBeyondDocument(t *testing.T) {
	text := "single line"
	pos := protocol.Position{Line: 5, Character: 0}
	prefix := extractPrefix(text, pos)
	if prefix != "" {
		t.Errorf("extractPrefix beyond doc = %q, want empty string", prefix)
	}
}

// ---------------------------------------------------------------------------
// extractWord
// ---------------------------------------------------------------------------

func TestExtractWord(t *testing.T) {
	cases := []struct {
		text string
		line uint32
		col  uint32
		want string
	}{
		{"jmp @loop", 0, 6, "loop"},
		{"jmp @loop", 0, 1, "jmp"},
		{"loop: dup", 0, 2, "loop"},
		{"ldw $10", 0, 5, "$10"},
		{"main.inner_1 ret", 0, 3, "main.inner_1"},
		{"first\nsecond", 1, 3, "second"},
		{"a ; b", 0, 2, ""},
		{"", 0, 0, ""},
		{"single line", 5, 0, ""},
	}

	for _, c := range cases {
		pos := protocol.Position{Line: c.line, Character: c.col}
		if got := extractWord(c.text, pos); got != c.want {
			t.Errorf("extractWord(%q, %d:%d) = %q, want %q", c.text, c.line, c.col, got, c.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Document analysis
// ---------------------------------------------------------------------------

func TestScanTokens(t *testing.T) {
	tokens := scanTokens("a: .1\t,2 ; rest ignored\n  #inc.asm\n")
	want := []token{
		{"a:", 0, 0},
		{".1", 0, 3},
		{",2", 0, 6},
		{"#inc.asm", 1, 2},
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %+v, want %+v", i, tokens[i], want[i])
		}
	}
}

func TestScanTokensUnicodeSpace(t *testing.T) {
	line := "a:\u00a0@a\u2003jmp"
	tokens := scanTokens(line)
	want := []token{
		{"a:", 0, 0},
		{"@a", 0, 4},
		{"jmp", 0, 9},
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %+v, want %+v", i, tokens[i], want[i])
		}
	}
	if fields := strings.Fields(line); len(fields) != len(tokens) {
		t.Errorf("assembler sees %d tokens, server sees %d", len(fields), len(tokens))
	}
}

func TestLSP_ReferencesAfterUnicodeSpace(t *testing.T) {
	doc := analyze(sampleURI, "loop:\u00a0@loop jmp\n", nil)
	if doc.err != nil {
		t.Fatalf("analyze: %v", doc.err)
	}
	if defs := doc.definitions("loop"); len(defs) != 1 || defs[0] != span(0, 0, 4) {
		t.Errorf("definitions = %+v", defs)
	}
	if refs := doc.references("loop"); len(refs) != 1 || refs[0] != span(0, 8, 4) {
		t.Errorf("references = %+v", refs)
	}
}

func TestURIPath(t *testing.T) {
	if got := uriPath("file:///home/me/my%20prog.asm"); got != "/home/me/my prog.asm" {
		t.Errorf("uriPath = %q", got)
	}
	if got := uriPath("untitled:Untitled-1"); got != "untitled:Untitled-1" {
		t.Errorf("uriPath = %q", got)
	}
}

func TestLSP_DiagnosticsClean(t *testing.T) {
	diags := sampleDoc(t).diagnostics()
	if diags == nil || len(diags) != 0 {
		t.Errorf("expected empty diagnostics, got %v", diags)
	}
}

func TestLSP_DiagnosticsMalformedLiteral(t *testing.T) {
	doc := analyze(sampleURI, "start: ret\n  .zz\n", nil)
	if !errors.Is(doc.err, asm.ErrMalformedLiteral) {
		t.Fatalf("err = %v, want ErrMalformedLiteral", doc.err)
	}

	diags := doc.diagnostics()
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0]
	if d.Range.Start.Line != 1 || d.Range.End.Character != 5 {
		t.Errorf("range = %+v, want line 1, width 5", d.Range)
	}
	if strings.Contains(d.Message, "prog.asm") || !strings.Contains(d.Message, ".zz") {
		t.Errorf("message = %q", d.Message)
	}
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
		t.Error("diagnostic should be an error")
	}
}

func TestLSP_DiagnosticsUndefinedLabel(t *testing.T) {
	doc := analyze(sampleURI, "nop\n@missing\n", nil)
	diags := doc.diagnostics()
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Range.Start.Line != 1 {
		t.Errorf("line = %d, want 1", diags[0].Range.Start.Line)
	}
	if !strings.Contains(diags[0].Message, "missing") {
		t.Errorf("message = %q", diags[0].Message)
	}
}

func TestLSP_IncludeRelativeToDocument(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.asm"), []byte("helper: ret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	uri := protocol.DocumentUri("file://" + filepath.Join(dir, "main.asm"))

	doc := analyze(uri, "#lib.asm\n@helper\n", nil)
	if doc.err != nil {
		t.Fatalf("analyze: %v", doc.err)
	}
	if _, ok := doc.symbols.Lookup("helper"); !ok {
		t.Error("included label not visible")
	}
	if syms := documentSymbols(doc); len(syms) != 0 {
		t.Errorf("labels from included files should not be outlined: %v", syms)
	}
}

// ---------------------------------------------------------------------------
// Language features
// ---------------------------------------------------------------------------

func completionLabels(items []protocol.CompletionItem) []string {
	var labels []string
	for _, item := range items {
		labels = append(labels, item.Label)
	}
	return labels
}

func TestLSP_Complete(t *testing.T) {
	doc := sampleDoc(t)

	cases := []struct {
		prefix string
		want   []string
	}{
		{"j", []string{"jmp", "jnz", "jz"}},
		{"l", []string{"ldb", "ldw", "le", "lt", "loop"}},
		{"@l", []string{"loop"}},
		{"@", []string{"start", "loop"}},
		{"qq", nil},
	}

	for _, c := range cases {
		got := completionLabels(complete(doc, c.prefix))
		if strings.Join(got, ",") != strings.Join(c.want, ",") {
			t.Errorf("complete(%q) = %v, want %v", c.prefix, got, c.want)
		}
	}
}

func TestLSP_Hover(t *testing.T) {
	doc := sampleDoc(t)

	cases := []struct {
		word string
		want []string
	}{
		{"dup", []string{"**dup** `0x03`", "Pops 1, pushes 2"}},
		{"JMP", []string{"**jmp** `0x0D`"}},
		{"loop", []string{"**loop** = `0x000A`", "2 references"}},
		{"start", []string{"**start** = `0x0000`"}},
		{"10", []string{"`10` = `0x000A`"}},
		{"$ff", []string{"`255` = `0x00FF`"}},
	}

	for _, c := range cases {
		h := hover(doc, c.word)
		if h == nil {
			t.Errorf("hover(%q) = nil", c.word)
			continue
		}
		content := h.Contents.(protocol.MarkupContent)
		for _, want := range c.want {
			if !strings.Contains(content.Value, want) {
				t.Errorf("hover(%q) = %q, missing %q", c.word, content.Value, want)
			}
		}
	}
}

func TestLSP_Hover_UnknownWord(t *testing.T) {
	if h := hover(sampleDoc(t), "nowhere"); h != nil {
		t.Errorf("hover on unknown word = %v, want nil", h)
	}
}

func TestLSP_Definition(t *testing.T) {
	locs := definition(sampleDoc(t), "loop")
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1", len(locs))
	}
	want := span(2, 0, 4)
	if locs[0].URI != sampleURI || locs[0].Range != want {
		t.Errorf("definition = %+v, want %+v", locs[0], want)
	}
}

func TestLSP_Definition_LastWins(t *testing.T) {
	doc := analyze(sampleURI, "x: nop\nx: ret\n", nil)
	locs := definition(doc, "x")
	if len(locs) != 1 || locs[0].Range.Start.Line != 1 {
		t.Errorf("definition = %+v, want line 1", locs)
	}
}

func TestLSP_Definition_UnknownWord(t *testing.T) {
	if locs := definition(sampleDoc(t), "nowhere"); locs != nil {
		t.Errorf("definition = %v, want nil", locs)
	}
}

func TestLSP_References(t *testing.T) {
	doc := sampleDoc(t)

	locs := references(doc, "loop", false)
	if len(locs) != 2 {
		t.Fatalf("got %d references, want 2", len(locs))
	}
	if locs[0].Range != span(1, 11, 4) || locs[1].Range != span(2, 11, 4) {
		t.Errorf("references = %+v", locs)
	}

	locs = references(doc, "loop", true)
	if len(locs) != 3 {
		t.Fatalf("got %d references with declaration, want 3", len(locs))
	}
	if locs[1].Range != span(2, 0, 4) {
		t.Errorf("declaration not in line order: %+v", locs)
	}
}

func TestLSP_References_NotALabel(t *testing.T) {
	doc := sampleDoc(t)
	if locs := references(doc, "dup", true); locs != nil {
		t.Errorf("references(dup) = %v, want nil", locs)
	}
	if locs := references(doc, "nowhere", true); locs != nil {
		t.Errorf("references(nowhere) = %v, want nil", locs)
	}
}

func TestLSP_DocumentSymbols(t *testing.T) {
	syms := documentSymbols(sampleDoc(t))
	if len(syms) != 2 {
		t.Fatalf("got %d symbols, want 2", len(syms))
	}
	if syms[0].Name != "start" || syms[1].Name != "loop" {
		t.Errorf("symbols = %s, %s", syms[0].Name, syms[1].Name)
	}
	if *syms[1].Detail != "0x000A" {
		t.Errorf("loop detail = %q", *syms[1].Detail)
	}
}

func TestLSP_DocumentStore(t *testing.T) {
	s := NewLSP()

	s.update(sampleURI, sample)
	doc, ok := s.document(sampleURI)
	if !ok {
		t.Fatal("document not stored")
	}
	if _, ok := doc.symbols.Lookup("loop"); !ok {
		t.Error("stored document missing label")
	}

	s.update(sampleURI, "other: ret\n")
	doc, _ = s.document(sampleURI)
	if _, ok := doc.symbols.Lookup("loop"); ok {
		t.Error("update should replace the previous analysis")
	}

	if _, ok := s.document("file:///work/none.asm"); ok {
		t.Error("unexpected document")
	}
}
