package lsp

import (
	"context"
	"fmt"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleTextDocumentHover(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params HoverParams
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
	f, ok := h.openFile(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	// answered from the last committed snapshot, never blocking on a
	// running check
	info, ok := sess.TypeAt(path, sourcePos(f.Text, params.Position))
	if !ok {
		return nil, nil
	}

	span := toRange(info.Span)
	return Hover{
		Contents: MarkupContent{
			Kind:  "markdown",
			Value: fmt.Sprintf("```lua\n%s\n```", info.Type),
		},
		Range: &span,
	}, nil
}
