package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleShutdown(ctx context.Context, req *jrpc2.Request) (any, error) {
	h.mu.Lock()
	sess := h.sess
	h.sess = nil
	h.files = make(map[DocumentURI]*File)
	h.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	return nil, nil
}
