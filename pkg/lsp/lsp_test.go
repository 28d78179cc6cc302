package lsp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs the handler over an in-memory channel pair and collects
// the diagnostics the server pushes.
func startServer(t *testing.T) (*jrpc2.Client, <-chan PublishDiagnosticsParams) {
	t.Helper()

	diags := make(chan PublishDiagnosticsParams, 16)
	h := NewHandler(nil)
	loc := server.NewLocal(h, &server.LocalOptions{
		Server: &jrpc2.ServerOptions{AllowPush: true},
		Client: &jrpc2.ClientOptions{
			OnNotify: func(req *jrpc2.Request) {
				if req.Method() != "textDocument/publishDiagnostics" {
					return
				}
				var params PublishDiagnosticsParams
				if err := req.UnmarshalParams(&params); err == nil {
					diags <- params
				}
			},
		},
	})
	h.SetServer(loc.Server)
	t.Cleanup(func() { loc.Close() })
	return loc.Client, diags
}

func testRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	// stops config discovery from walking above the fixture
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

func initialize(t *testing.T, client *jrpc2.Client, root string) InitializeResult {
	t.Helper()
	var result InitializeResult
	resp, err := client.Call(context.Background(), "initialize", InitializeParams{RootURI: toURI(root)})
	require.NoError(t, err)
	require.NoError(t, resp.UnmarshalResult(&result))
	return result
}

// waitDiags blocks until the server publishes diagnostics for uri.
func waitDiags(t *testing.T, diags <-chan PublishDiagnosticsParams, uri DocumentURI) PublishDiagnosticsParams {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case params := <-diags:
			if params.URI == uri {
				return params
			}
		case <-deadline:
			t.Fatalf("no diagnostics published for %s", uri)
		}
	}
}

func TestInitializeCapabilities(t *testing.T) {
	client, _ := startServer(t)
	root := testRoot(t, nil)

	result := initialize(t, client, root)
	assert.Equal(t, TDSKFull, result.Capabilities.TextDocumentSync)
	assert.True(t, result.Capabilities.HoverProvider)
	require.NotNil(t, result.Capabilities.CompletionProvider)
	assert.Contains(t, result.Capabilities.CompletionProvider.TriggerCharacters, ".")
}

func TestRequestBeforeInitialize(t *testing.T) {
	client, _ := startServer(t)

	_, err := client.Call(context.Background(), "textDocument/hover", HoverParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: "file:///nowhere.lua"},
		},
	})
	require.Error(t, err)
}

func TestDidOpenPublishesDiagnostics(t *testing.T) {
	client, diags := startServer(t)
	root := testRoot(t, nil)
	initialize(t, client, root)

	uri := toURI(filepath.Join(root, "main.lua"))
	require.NoError(t, client.Notify(context.Background(), "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "lua", Version: 1, Text: `local x = 1`},
	}))

	params := waitDiags(t, diags, uri)
	assert.Empty(t, params.Diagnostics)
	assert.Equal(t, 1, params.Version)
}

func TestDidChangeReportsConflict(t *testing.T) {
	client, diags := startServer(t)
	root := testRoot(t, nil)
	initialize(t, client, root)

	uri := toURI(filepath.Join(root, "main.lua"))
	require.NoError(t, client.Notify(context.Background(), "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "lua", Version: 1, Text: `local n = 1 + 2`},
	}))
	params := waitDiags(t, diags, uri)
	require.Empty(t, params.Diagnostics)

	require.NoError(t, client.Notify(context.Background(), "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{TextDocumentIdentifier: TextDocumentIdentifier{URI: uri}, Version: 2},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: `local n = "s" + 2`}},
	}))

	for {
		params = waitDiags(t, diags, uri)
		if params.Version == 2 {
			break
		}
	}
	require.Len(t, params.Diagnostics, 1)
	assert.Equal(t, SeverityError, params.Diagnostics[0].Severity)
	assert.Equal(t, "luna", params.Diagnostics[0].Source)
	assert.NotEmpty(t, params.Diagnostics[0].RelatedInformation)
}

func TestHover(t *testing.T) {
	client, diags := startServer(t)
	root := testRoot(t, nil)
	initialize(t, client, root)

	uri := toURI(filepath.Join(root, "main.lua"))
	require.NoError(t, client.Notify(context.Background(), "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "lua", Version: 1, Text: `local greeting = "hello"`},
	}))
	waitDiags(t, diags, uri)

	var hover Hover
	resp, err := client.Call(context.Background(), "textDocument/hover", HoverParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     Position{Line: 0, Character: 18},
		},
	})
	require.NoError(t, err)
	require.NoError(t, resp.UnmarshalResult(&hover))
	assert.Equal(t, "markdown", hover.Contents.Kind)
	assert.Contains(t, hover.Contents.Value, `"hello"`)
	require.NotNil(t, hover.Range)
	assert.Equal(t, 0, hover.Range.Start.Line)
}

func TestCompletion(t *testing.T) {
	client, diags := startServer(t)
	root := testRoot(t, nil)
	initialize(t, client, root)

	uri := toURI(filepath.Join(root, "main.lua"))
	src := "local point = {x = 1, y = 2}\nlocal q = point.x\n"
	require.NoError(t, client.Notify(context.Background(), "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "lua", Version: 1, Text: src},
	}))
	waitDiags(t, diags, uri)

	var items []CompletionItem
	resp, err := client.Call(context.Background(), "textDocument/completion", CompletionParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     Position{Line: 1, Character: 16},
		},
	})
	require.NoError(t, err)
	require.NoError(t, resp.UnmarshalResult(&items))
	require.Len(t, items, 2)
	assert.Equal(t, "x", items[0].Label)
	assert.Equal(t, "y", items[1].Label)
}

func TestDidCloseRevertsToDisk(t *testing.T) {
	client, diags := startServer(t)
	root := testRoot(t, map[string]string{"main.lua": `local n = 1`})
	initialize(t, client, root)

	path := filepath.Join(root, "main.lua")
	uri := toURI(path)
	require.NoError(t, client.Notify(context.Background(), "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "lua", Version: 1, Text: `local n = "s" + 2`},
	}))
	params := waitDiags(t, diags, uri)
	require.Len(t, params.Diagnostics, 1)

	require.NoError(t, client.Notify(context.Background(), "textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	}))
	for {
		params = waitDiags(t, diags, uri)
		if len(params.Diagnostics) == 0 {
			break
		}
	}
}
