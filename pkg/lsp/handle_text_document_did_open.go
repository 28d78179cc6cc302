package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleTextDocumentDidOpen(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params DidOpenTextDocumentParams
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
	h.files[params.TextDocument.URI] = &File{
		LanguageID: params.TextDocument.LanguageID,
		Text:       params.TextDocument.Text,
		Version:    params.TextDocument.Version,
	}
	h.mu.Unlock()

	sess.NotifyChanged(path, []byte(params.TextDocument.Text))
	return nil, nil
}
