package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/fx16/pkg/asm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "fx16-lsp"

var log = commonlog.GetLogger("fx16.server")

// LspServer provides editor features for FX16 assembly sources. Every open
// document is assembled in its own session whenever it changes.
type LspServer struct {
	opts []asm.Option

	mu   sync.Mutex
	docs map[string]*document // URI → latest analysis

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. opts configure the assembly sessions
// used for diagnostics, typically include directories from fx16.toml.
func NewLSP(opts ...asm.Option) *LspServer {
	s := &LspServer{
		opts:    append([]asm.Option{asm.WithLogger(log)}, opts...),
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentReferences:     s.textDocumentReferences,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "FX16 LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"@"},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true
	capabilities.DocumentSymbolProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := s.update(params.TextDocument.URI, params.TextDocument.Text)
	s.publishDiagnostics(ctx, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.update(params.TextDocument.URI, whole.Text)
			s.publishDiagnostics(ctx, doc)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update re-assembles a document and stores the result.
func (s *LspServer) update(uri protocol.DocumentUri, text string) *document {
	doc := analyze(uri, text, s.opts)
	if doc.err != nil {
		log.Debugf("%s: %v", uri, doc.err)
	}

	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()
	return doc
}

func (s *LspServer) document(uri protocol.DocumentUri) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	return doc, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(doc, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(doc, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}

	result := definition(doc, word)
	if result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return references(doc, word, params.Context.IncludeDeclaration), nil
}

func (s *LspServer) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return documentSymbols(doc), nil
}

// --- Analysis-backed logic ---

func complete(doc *document, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	label := strings.TrimPrefix(prefix, "@")
	lowerPrefix := strings.ToLower(label)

	// Mnemonics are meaningless after '@'
	if label == prefix {
		for _, name := range asm.Mnemonics() {
			if strings.HasPrefix(name, lowerPrefix) {
				op, _ := asm.Lookup(name)
				kind := protocol.CompletionItemKindKeyword
				detail := fmt.Sprintf("opcode 0x%02X", byte(op))
				nameCopy := name
				items = append(items, protocol.CompletionItem{
					Label:      name,
					Kind:       &kind,
					Detail:     &detail,
					InsertText: &nameCopy,
				})
			}
		}
	}

	// Labels, matched case-sensitively as the assembler does
	for _, sym := range doc.symbols.Labels {
		if strings.HasPrefix(sym.Name, label) {
			kind := protocol.CompletionItemKindConstant
			detail := fmt.Sprintf("label 0x%04X", sym.Address)
			nameCopy := sym.Name
			items = append(items, protocol.CompletionItem{
				Label:      sym.Name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func hover(doc *document, word string) *protocol.Hover {
	var b strings.Builder

	if op, ok := asm.Lookup(word); ok {
		info := asm.GetOpcodeInfo(op)
		fmt.Fprintf(&b, "**%s** `0x%02X`\n\n", info.Name, byte(op))
		fmt.Fprintf(&b, "%s\n\n", info.Doc)
		fmt.Fprintf(&b, "Pops %d, pushes %d", info.StackPop, info.StackPush)
	} else if sym, ok := doc.symbols.Lookup(word); ok {
		fmt.Fprintf(&b, "**%s** = `0x%04X`", sym.Name, sym.Address)
		if refs := doc.symbols.ReferencesTo(sym.Name); len(refs) > 0 {
			fmt.Fprintf(&b, "\n\n%d references", len(refs))
		}
	} else if v, ok := asm.ParseInt(word); ok {
		fmt.Fprintf(&b, "`%d` = `0x%04X`", v, uint16(v))
	} else {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func definition(doc *document, word string) []protocol.Location {
	defs := doc.definitions(word)
	if len(defs) == 0 {
		return nil
	}
	// Last definition wins
	return []protocol.Location{{URI: doc.uri, Range: defs[len(defs)-1]}}
}

func references(doc *document, word string, includeDeclaration bool) []protocol.Location {
	if _, ok := asm.Lookup(word); ok {
		return nil
	}
	if _, ok := doc.symbols.Lookup(word); !ok {
		return nil
	}

	var ranges []protocol.Range
	if includeDeclaration {
		ranges = append(ranges, doc.definitions(word)...)
	}
	ranges = append(ranges, doc.references(word)...)
	sort.SliceStable(ranges, func(i, j int) bool {
		if ranges[i].Start.Line != ranges[j].Start.Line {
			return ranges[i].Start.Line < ranges[j].Start.Line
		}
		return ranges[i].Start.Character < ranges[j].Start.Character
	})

	locations := make([]protocol.Location, len(ranges))
	for i, r := range ranges {
		locations[i] = protocol.Location{URI: doc.uri, Range: r}
	}
	return locations
}

func documentSymbols(doc *document) []protocol.DocumentSymbol {
	var symbols []protocol.DocumentSymbol
	for _, sym := range doc.symbols.Labels {
		defs := doc.definitions(sym.Name)
		if len(defs) == 0 {
			continue // defined in an included file
		}
		detail := fmt.Sprintf("0x%04X", sym.Address)
		symbols = append(symbols, protocol.DocumentSymbol{
			Name:           sym.Name,
			Detail:         &detail,
			Kind:           protocol.SymbolKindConstant,
			Range:          defs[len(defs)-1],
			SelectionRange: defs[len(defs)-1],
		})
	}
	return symbols
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, doc *document) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         doc.uri,
		Diagnostics: doc.diagnostics(),
	})
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
// A leading '@' is kept so label references can be told apart.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}
	if start > 0 && line[start-1] == '@' {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 && isWordChar(rune(line[start-1])) {
		start--
	}

	// Find end
	end := col
	for end < len(line) && isWordChar(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func isWordChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.' || ch == '$'
}

func boolPtr(b bool) *bool {
	return &b
}
