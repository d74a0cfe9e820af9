// Package server exposes the compiler and VM to editors over the Language
// Server Protocol.
package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/loxbc/cache"
	"github.com/chazu/loxbc/compiler"
	"github.com/chazu/loxbc/pkg/bytecode"
	"github.com/chazu/loxbc/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "loxbc-lsp"

// LspServer compiles open documents, publishes their errors as diagnostics
// and shows the evaluated result on hover.
type LspServer struct {
	worker *VMWorker
	cache  *cache.Store // optional

	lineComments bool
	log          commonlog.Logger

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// Option configures an LspServer.
type Option func(*LspServer)

// WithCache compiles documents through store. The store's own lexer mode
// applies to cached compiles.
func WithCache(store *cache.Store) Option {
	return func(s *LspServer) {
		s.cache = store
	}
}

// WithLineComments enables // comments in documents.
func WithLineComments(enabled bool) Option {
	return func(s *LspServer) {
		s.lineComments = enabled
	}
}

// NewLSP creates a new LSP server with its own VM worker.
func NewLSP(opts ...Option) *LspServer {
	s := &LspServer{
		worker:  NewVMWorker(vm.New()),
		log:     commonlog.GetLogger("loxbc.lsp"),
		docs:    make(map[string]string),
		version: "0.1.0",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
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
	s.log.Info("loxbc LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

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
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.setDocument(uri, text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDocument(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
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

func (s *LspServer) setDocument(uri protocol.DocumentUri, text string) {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return s.hover(text, params.Position), nil
}

// literalKeywords are the keywords that form complete expressions.
var literalKeywords = []string{"false", "nil", "true"}

func complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	for _, kw := range literalKeywords {
		if strings.HasPrefix(kw, prefix) && kw != prefix {
			kind := protocol.CompletionItemKindKeyword
			detail := "literal"
			label := kw
			items = append(items, protocol.CompletionItem{
				Label:      label,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &label,
			})
		}
	}
	return items
}

// hover describes the token under the cursor and the value of the whole
// document.
func (s *LspServer) hover(text string, pos protocol.Position) *protocol.Hover {
	tok, ok := tokenAt(text, offsetAt(text, pos), s.lineComments)
	if !ok {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "`%s` %s\n\n", tok.Lexeme, tok.Kind)

	chunk, err := s.compile(text)
	if err != nil {
		fmt.Fprintf(&b, "**error:** %s", err)
	} else {
		value, err := s.worker.Execute(chunk)
		if err != nil {
			fmt.Fprintf(&b, "**error:** %s", err)
		} else {
			fmt.Fprintf(&b, "= **%s** (%s)\n\n", value, value.Kind())
			fmt.Fprintf(&b, "```\n%s```", chunk.Disassemble())
		}
	}

	start := positionAt(text, tok.Offset)
	end := positionAt(text, tok.End())
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
		Range: &protocol.Range{Start: start, End: end},
	}
}

func (s *LspServer) compile(text string) (*bytecode.Chunk, error) {
	if s.cache != nil {
		chunk, _, err := s.cache.Compile(text)
		return chunk, err
	}
	var opts []compiler.Option
	if s.lineComments {
		opts = append(opts, compiler.WithLexerOptions(compiler.WithLineComments()))
	}
	return compiler.Compile(text, opts...)
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := s.diagnostics(text)
	s.log.Debugf("%s: %d diagnostics", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnostics compiles and runs text, reporting the first error. Lex and
// compile errors are errors; runtime errors are warnings.
func (s *LspServer) diagnostics(text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}

	severity := protocol.DiagnosticSeverityError
	chunk, err := s.compile(text)
	if err == nil {
		_, err = s.worker.Execute(chunk)
		severity = protocol.DiagnosticSeverityWarning
		if errors.Is(err, ErrWorkerStopped) {
			return diagnostics
		}
	}
	if err == nil {
		return diagnostics
	}

	source := lspName
	return append(diagnostics, protocol.Diagnostic{
		Range:    errorRange(text, err),
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	})
}

// errorRange places err in text. Lines in errors are 1-based; LSP lines are
// 0-based. Lex errors know their offset; other errors span their line.
func errorRange(text string, err error) protocol.Range {
	var lexErr *compiler.LexError
	if errors.As(err, &lexErr) {
		start := positionAt(text, lexErr.Offset)
		end := start
		end.Character++
		return protocol.Range{Start: start, End: end}
	}

	line := 0
	if n, ok := errorLine(err); ok && n > 0 {
		line = n - 1
	}
	lines := strings.Split(text, "\n")
	width := 0
	if line < len(lines) {
		width = len(lines[line])
	}
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(width)},
	}
}

func errorLine(err error) (int, bool) {
	var rtErr *vm.RuntimeError
	if errors.As(err, &rtErr) {
		return rtErr.Line, rtErr.Line > 0
	}
	return compiler.ErrorLine(err)
}

// --- Text position helpers ---

// positionAt converts a byte offset in text to an LSP position.
func positionAt(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	line := strings.Count(text[:offset], "\n")
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(offset - lineStart),
	}
}

// offsetAt converts an LSP position to a byte offset in text, clamping to
// the end of the line or document.
func offsetAt(text string, pos protocol.Position) int {
	offset := 0
	for i := 0; i < int(pos.Line); i++ {
		next := strings.IndexByte(text[offset:], '\n')
		if next < 0 {
			return len(text)
		}
		offset += next + 1
	}
	lineEnd := strings.IndexByte(text[offset:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text) - offset
	}
	col := int(pos.Character)
	if col > lineEnd {
		col = lineEnd
	}
	return offset + col
}

// tokenAt returns the token covering offset, or the token ending at it.
// Scanning stops at the first lex error.
func tokenAt(text string, offset int, lineComments bool) (compiler.Token, bool) {
	var opts []compiler.LexerOption
	if lineComments {
		opts = append(opts, compiler.WithLineComments())
	}
	for tok, err := range compiler.NewLexer(text, opts...).All() {
		if err != nil || tok.Offset > offset {
			break
		}
		if offset <= tok.End() {
			return tok, true
		}
	}
	return compiler.Token{}, false
}

// extractPrefix returns the word fragment before the cursor for completion.
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
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	return line[start:col]
}

func boolPtr(b bool) *bool {
	return &b
}
