package ty

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render formats t for diagnostics and hover output. Cyclic structure is cut
// off with "..." after the first visit so output stays finite.
func (a *Arena) Render(t Type) string {
	var sb strings.Builder
	a.render(&sb, t, make(map[Ref]bool), false)
	return sb.String()
}

// RenderRef renders the cell's resolved type, or "?" while it is open.
func (a *Arena) RenderRef(r Ref) string {
	t := a.Resolve(r)
	if t == nil {
		return "?"
	}
	return a.Render(t)
}

// Fingerprint produces a canonical textual form of t, stable across runs and
// arenas: fields are sorted by name and cycles are rendered as back
// references by visit order. Two exported interfaces are considered
// equivalent exactly when their fingerprints match.
func (a *Arena) Fingerprint(t Type) string {
	var sb strings.Builder
	a.render(&sb, t, make(map[Ref]bool), true)
	return sb.String()
}

func (a *Arena) render(sb *strings.Builder, t Type, onPath map[Ref]bool, canonical bool) {
	switch tt := t.(type) {
	case nil:
		sb.WriteString("?")
	case DynamicType:
		sb.WriteString("any")
	case NilType:
		sb.WriteString("nil")
	case BooleanType:
		sb.WriteString("boolean")
	case NumberType:
		sb.WriteString("number")
	case StringType:
		sb.WriteString("string")
	case ErrorType:
		sb.WriteString("error")
	case NumberLit:
		sb.WriteString(strconv.FormatFloat(tt.Value, 'g', -1, 64))
	case StringLit:
		fmt.Fprintf(sb, "%q", tt.Value)
	case BoolLit:
		sb.WriteString(strconv.FormatBool(tt.Value))
	case Union:
		members := tt.Members
		if canonical {
			members = sortedMembers(a, members)
		}
		for i, m := range members {
			if i > 0 {
				sb.WriteString("|")
			}
			a.renderMember(sb, m, onPath, canonical)
		}
	case *Table:
		a.renderTable(sb, tt, onPath, canonical)
	case *Function:
		a.renderFunction(sb, tt, onPath, canonical)
	}
}

// renderMember parenthesizes nested unions and functions inside a union so
// the | grouping stays unambiguous.
func (a *Arena) renderMember(sb *strings.Builder, m Type, onPath map[Ref]bool, canonical bool) {
	if _, ok := m.(*Function); ok {
		sb.WriteString("(")
		a.render(sb, m, onPath, canonical)
		sb.WriteString(")")
		return
	}
	a.render(sb, m, onPath, canonical)
}

func (a *Arena) renderTable(sb *strings.Builder, t *Table, onPath map[Ref]bool, canonical bool) {
	sb.WriteString("{")
	fields := t.Fields
	if canonical {
		fields = append([]Field(nil), fields...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	}
	first := true
	for _, f := range fields {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		a.renderRefInner(sb, f.Value, onPath, canonical)
	}
	if t.Indexer != nil {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString("[")
		a.renderRefInner(sb, t.Indexer.Key, onPath, canonical)
		sb.WriteString("]: ")
		a.renderRefInner(sb, t.Indexer.Value, onPath, canonical)
	}
	if t.Open {
		if !first {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
	}
	sb.WriteString("}")
}

func (a *Arena) renderFunction(sb *strings.Builder, f *Function, onPath map[Ref]bool, canonical bool) {
	sb.WriteString("function(")
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		a.renderRefInner(sb, p, onPath, canonical)
	}
	if f.Variadic != NoRef {
		if len(f.Params) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
		a.renderRefInner(sb, f.Variadic, onPath, canonical)
	}
	sb.WriteString(")")
	if len(f.Results) > 0 || f.ResultVariadic != NoRef {
		sb.WriteString(" -> ")
		if len(f.Results) > 1 || f.ResultVariadic != NoRef {
			sb.WriteString("(")
		}
		for i, res := range f.Results {
			if i > 0 {
				sb.WriteString(", ")
			}
			a.renderRefInner(sb, res, onPath, canonical)
		}
		if f.ResultVariadic != NoRef {
			if len(f.Results) > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("...")
			a.renderRefInner(sb, f.ResultVariadic, onPath, canonical)
		}
		if len(f.Results) > 1 || f.ResultVariadic != NoRef {
			sb.WriteString(")")
		}
	}
}

func (a *Arena) renderRefInner(sb *strings.Builder, r Ref, onPath map[Ref]bool, canonical bool) {
	if r == NoRef {
		sb.WriteString("?")
		return
	}
	root := a.Find(r)
	if onPath[root] {
		sb.WriteString("...")
		return
	}
	t := a.Resolve(root)
	if t == nil {
		sb.WriteString("?")
		return
	}
	onPath[root] = true
	a.render(sb, t, onPath, canonical)
	delete(onPath, root)
}

// sortedMembers orders union members for fingerprinting. Each member is
// rendered in isolation and sorted textually; member shapes cannot cycle
// back into the union itself since unions are value types.
func sortedMembers(a *Arena, members []Type) []Type {
	out := append([]Type(nil), members...)
	sort.SliceStable(out, func(i, j int) bool {
		return a.Fingerprint(out[i]) < a.Fingerprint(out[j])
	})
	return out
}
