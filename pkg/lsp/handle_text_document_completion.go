package lsp

import (
	"context"
	"strings"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleTextDocumentCompletion(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params CompletionParams
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

	candidates := sess.CompletionsAt(path, sourcePos(f.Text, params.Position))
	items := []CompletionItem{}
	for _, c := range candidates {
		items = append(items, CompletionItem{
			Label:  c.Label,
			Kind:   completionKind(c.Detail),
			Detail: c.Detail,
		})
	}
	return items, nil
}

func completionKind(detail string) CompletionItemKind {
	if strings.HasPrefix(detail, "function") {
		return FunctionCompletion
	}
	return VariableCompletion
}
