package lsp

import (
	"context"
	"path/filepath"

	"github.com/creachadair/jrpc2"

	"github.com/lunatype/luna/pkg/session"
	"github.com/lunatype/luna/pkg/workspace"
)

func (h *Handler) handleInitialize(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params InitializeParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	rootPath, err := fromURI(params.RootURI)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.Open(filepath.Clean(rootPath))
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "open workspace: %v", err)
	}

	h.mu.Lock()
	h.sess = session.New(ws,
		session.WithLogger(h.logger),
		session.WithOnCommit(h.publishFor),
	)
	h.mu.Unlock()

	h.logger.Info("workspace initialized", "root", ws.Root)

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: TDSKFull,
			HoverProvider:    true,
			CompletionProvider: &CompletionProvider{
				TriggerCharacters: []string{".", ":"},
			},
		},
	}, nil
}
