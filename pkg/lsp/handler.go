// Package lsp exposes the analysis session over the Language Server
// Protocol. The handler owns one session per initialized workspace, feeds
// editor buffers into it, and pushes diagnostics back to the client as
// checks commit.
package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creachadair/jrpc2"

	"github.com/lunatype/luna/pkg/session"
	"github.com/lunatype/luna/pkg/syntax"
)

// Handler dispatches LSP methods onto a session. It implements
// jrpc2.Assigner.
type Handler struct {
	logger *slog.Logger

	mu    sync.Mutex
	sess  *session.Session
	srv   *jrpc2.Server
	files map[DocumentURI]*File
}

// File is an open editor buffer.
type File struct {
	LanguageID string
	Text       string
	Version    int
}

// NewHandler creates the JSON-RPC handler for the language server. The
// session is created on initialize, once the client names a workspace root.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		logger: logger,
		files:  make(map[DocumentURI]*File),
	}
}

// SetServer hands the handler its server so it can push notifications.
func (h *Handler) SetServer(srv *jrpc2.Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.srv = srv
}

// Assign routes an LSP method to its handler. Unknown methods get the
// standard method-not-found reply.
func (h *Handler) Assign(ctx context.Context, method string) jrpc2.Handler {
	switch method {
	case "initialize":
		return h.handleInitialize
	case "initialized":
		return noop
	case "shutdown":
		return h.handleShutdown
	case "exit":
		return noop
	case "textDocument/didOpen":
		return h.handleTextDocumentDidOpen
	case "textDocument/didChange":
		return h.handleTextDocumentDidChange
	case "textDocument/didClose":
		return h.handleTextDocumentDidClose
	case "textDocument/hover":
		return h.handleTextDocumentHover
	case "textDocument/completion":
		return h.handleTextDocumentCompletion
	}
	return nil
}

func noop(ctx context.Context, req *jrpc2.Request) (any, error) {
	return nil, nil
}

// session returns the current session, or an error before initialize.
func (h *Handler) session() (*session.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidRequest, "server not initialized")
	}
	return h.sess, nil
}

// openFile looks up an open buffer by URI.
func (h *Handler) openFile(uri DocumentURI) (*File, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[uri]
	return f, ok
}

// publishFor pushes the committed diagnostics for path to the client. It is
// the session's commit hook, so every re-check the session performs, dependent
// cascades included, ends in a publish.
func (h *Handler) publishFor(path string, snap *session.Snapshot) {
	uri := toURI(path)

	h.mu.Lock()
	srv := h.srv
	version := 0
	if f, ok := h.files[uri]; ok {
		version = f.Version
	}
	h.mu.Unlock()
	if srv == nil {
		return
	}

	env, ok := snap.Env(path)
	if !ok {
		return
	}
	params := &PublishDiagnosticsParams{
		URI:         uri,
		Version:     version,
		Diagnostics: toDiagnostics(uri, env.Report.Diagnostics()),
	}
	if err := srv.Notify(context.Background(), "textDocument/publishDiagnostics", params); err != nil {
		h.logger.Error("failed to publish diagnostics", "uri", uri, "error", err)
	}
}

func fromURI(uri DocumentURI) (string, error) {
	u, err := url.ParseRequestURI(string(uri))
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("only file URIs are supported, got %v", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

func toURI(path string) DocumentURI {
	return DocumentURI((&url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}).String())
}

// sourcePos maps a wire position into text, producing the 1-based position
// with byte offset the session queries expect. Characters past the end of
// the line clamp to the line end.
func sourcePos(text string, pos Position) syntax.Position {
	offset := 0
	for line := 0; line < pos.Line; line++ {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			break
		}
		offset += nl + 1
	}
	rest := text[offset:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	col := pos.Character
	if col > len(rest) {
		col = len(rest)
	}
	return syntax.Position{Line: pos.Line + 1, Column: col + 1, Offset: offset + col}
}

// toRange maps a source span back onto the wire.
func toRange(span syntax.Span) Range {
	if !span.IsValid() {
		return Range{}
	}
	return Range{
		Start: Position{Line: span.Start.Line - 1, Character: span.Start.Column - 1},
		End:   Position{Line: span.End.Line - 1, Character: span.End.Column - 1},
	}
}
