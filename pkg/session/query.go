package session

import (
	"sort"

	"github.com/lunatype/luna/pkg/check"
	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/ty"
)

// Queries answer from the last committed snapshot and never wait for a
// running check: an editor asking during a re-check sees the previous
// generation's answer immediately.

// TypeInfo is the answer to a hover query.
type TypeInfo struct {
	// Type is the rendered type of the expression under the cursor.
	Type string
	// Span is the expression the answer describes.
	Span syntax.Span
}

// TypeAt reports the inferred type at a source position.
func (s *Session) TypeAt(path string, pos syntax.Position) (TypeInfo, bool) {
	snap := s.snap.Load()
	path = s.canonical(path)
	env, ok := snap.Env(path)
	if !ok {
		return TypeInfo{}, false
	}
	chunk, ok := snap.Chunk(path)
	if !ok {
		return TypeInfo{}, false
	}

	// smallest typed node covering the position
	var best syntax.Node
	var bestRef ty.Ref
	syntax.Walk(chunk, func(n syntax.Node) bool {
		span := n.Span()
		if !span.Contains(pos) {
			return true
		}
		r, ok := env.TypeOf(n)
		if !ok {
			return true
		}
		if best == nil || span.Width() <= best.Span().Width() {
			best, bestRef = n, r
		}
		return true
	})
	if best == nil {
		return TypeInfo{}, false
	}
	return TypeInfo{Type: env.Arena.RenderRef(bestRef), Span: best.Span()}, true
}

// Completion is one completion candidate.
type Completion struct {
	Label  string
	Detail string
}

// CompletionsAt lists completion candidates at a source position: the fields
// of the receiver when the cursor sits in a field access, otherwise the
// locals visible at that point plus the builtin globals.
func (s *Session) CompletionsAt(path string, pos syntax.Position) []Completion {
	snap := s.snap.Load()
	path = s.canonical(path)
	env, ok := snap.Env(path)
	if !ok {
		return nil
	}
	chunk, ok := snap.Chunk(path)
	if !ok {
		return nil
	}

	if items := s.fieldCompletions(env, chunk, pos); items != nil {
		return items
	}
	return s.scopeCompletions(env, chunk, pos)
}

// fieldCompletions answers inside `obj.` and `obj:` accesses with the
// fields of obj's table type.
func (s *Session) fieldCompletions(env *check.Env, chunk *syntax.Chunk, pos syntax.Position) []Completion {
	var recv syntax.Expr
	syntax.Walk(chunk, func(n syntax.Node) bool {
		if !n.Span().Contains(pos) {
			return true
		}
		switch e := n.(type) {
		case *syntax.DotExpr:
			recv = e.Obj
		case *syntax.MethodCallExpr:
			recv = e.Recv
		case *syntax.IndexExpr:
			recv = e.Obj
		}
		return true
	})
	if recv == nil {
		return nil
	}
	r, ok := env.TypeOf(recv)
	if !ok {
		return nil
	}
	tbl, ok := env.Arena.Resolve(r).(*ty.Table)
	if !ok {
		return nil
	}

	var items []Completion
	seen := map[string]bool{}
	for depth := 0; tbl != nil && depth < 8; depth++ {
		for _, f := range tbl.Fields {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			items = append(items, Completion{
				Label:  f.Name,
				Detail: env.Arena.RenderRef(f.Value),
			})
		}
		tbl = s.metaIndex(env, tbl)
	}
	sortCompletions(items)
	return items
}

// metaIndex steps to the __index table of tbl's metatable, if any.
func (s *Session) metaIndex(env *check.Env, tbl *ty.Table) *ty.Table {
	if tbl.Meta == ty.NoRef {
		return nil
	}
	meta, ok := env.Arena.Resolve(tbl.Meta).(*ty.Table)
	if !ok {
		return nil
	}
	indexRef, ok := meta.Field("__index")
	if !ok {
		return nil
	}
	index, _ := env.Arena.Resolve(indexRef).(*ty.Table)
	return index
}

// scopeCompletions approximates lexical scope: every local introduced
// before the position, plus the builtin globals.
func (s *Session) scopeCompletions(env *check.Env, chunk *syntax.Chunk, pos syntax.Position) []Completion {
	items := []Completion{}
	seen := map[string]bool{}
	add := func(name *syntax.NameExpr) {
		if name.Span().Start.Offset > pos.Offset || seen[name.Name] {
			return
		}
		seen[name.Name] = true
		detail := ""
		if r, ok := env.TypeOf(name); ok {
			detail = env.Arena.RenderRef(r)
		}
		items = append(items, Completion{Label: name.Name, Detail: detail})
	}
	syntax.Walk(chunk, func(n syntax.Node) bool {
		switch st := n.(type) {
		case *syntax.LocalStmt:
			for _, name := range st.Names {
				add(name)
			}
		case *syntax.LocalFunctionStmt:
			add(st.Name)
		case *syntax.NumericForStmt:
			add(st.Var)
		case *syntax.GenericForStmt:
			for _, name := range st.Names {
				add(name)
			}
		case *syntax.FunctionExpr:
			if st.Span().Contains(pos) {
				for _, p := range st.Params {
					add(p)
				}
			}
		}
		return true
	})
	for _, g := range preludeGlobals {
		if !seen[g] {
			items = append(items, Completion{Label: g, Detail: "builtin"})
		}
	}
	sortCompletions(items)
	return items
}

var preludeGlobals = []string{
	"assert", "error", "ipairs", "math", "next", "pairs", "pcall", "print",
	"require", "select", "setmetatable", "string", "table", "tonumber",
	"tostring", "type",
}

func sortCompletions(items []Completion) {
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
}

// DiagnosticsFor returns the committed diagnostics for a file. The second
// result is false when the file has never been checked.
func (s *Session) DiagnosticsFor(path string) ([]*diag.Diagnostic, bool) {
	env, ok := s.snap.Load().Env(s.canonical(path))
	if !ok {
		return nil, false
	}
	return env.Report.Diagnostics(), true
}
