package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleTextDocumentDidChange(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params DidChangeTextDocumentParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}
	if len(params.ContentChanges) == 0 {
		return nil, nil
	}

	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	path, err := fromURI(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	// full sync: the last change event carries the whole document
	text := params.ContentChanges[len(params.ContentChanges)-1].Text

	h.mu.Lock()
	f, ok := h.files[params.TextDocument.URI]
	if !ok {
		f = &File{}
		h.files[params.TextDocument.URI] = f
	}
	f.Text = text
	f.Version = params.TextDocument.Version
	h.mu.Unlock()

	sess.NotifyChanged(path, []byte(text))
	return nil, nil
}
