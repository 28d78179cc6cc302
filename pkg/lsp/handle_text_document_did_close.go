package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleTextDocumentDidClose(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params DidCloseTextDocumentParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	path, err := fromURI(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	delete(h.files, params.TextDocument.URI)
	h.mu.Unlock()

	// the on-disk contents take over from the editor buffer
	sess.NotifyClosed(path)
	return nil, nil
}
