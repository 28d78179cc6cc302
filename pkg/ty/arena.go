package ty

import "github.com/lunatype/luna/pkg/syntax"

// Arena owns every type cell created during one traversal run. Cells are
// merged union-find style with path compression; the cell graph is finite
// but may be cyclic through table fields, so algorithms walking it must
// guard on ref pairs.
//
// An arena is exclusively owned by its run until the run's environment is
// committed; afterwards it is read-only.
type Arena struct {
	cells []cell
}

type cell struct {
	parent Ref // self when this cell is a root
	rank   uint8

	// lower is the join of the value types that flowed into the cell;
	// upper is the meet of the constraints its uses impose. Each bound
	// remembers the span that established it so conflicts can point at
	// both origins.
	lower   Type
	lowerAt syntax.Span
	upper   Type
	upperAt syntax.Span
}

func NewArena() *Arena {
	return &Arena{}
}

// Len returns the number of cells ever created (merged cells still count).
func (a *Arena) Len() int { return len(a.cells) }

// New creates a fresh unresolved cell.
func (a *Arena) New(at syntax.Span) Ref {
	r := Ref(len(a.cells))
	a.cells = append(a.cells, cell{parent: r, lowerAt: at, upperAt: at})
	return r
}

// NewOf creates a cell already holding t as its lower bound.
func (a *Arena) NewOf(t Type, at syntax.Span) Ref {
	r := a.New(at)
	a.cells[r].lower = t
	return r
}

// Find returns the root ref of r's merged group, compressing the path.
func (a *Arena) Find(r Ref) Ref {
	if r == NoRef {
		return NoRef
	}
	root := r
	for a.cells[root].parent != root {
		root = a.cells[root].parent
	}
	for a.cells[r].parent != r {
		next := a.cells[r].parent
		a.cells[r].parent = root
		r = next
	}
	return root
}

// Resolve returns the cell's currently known type, or nil while it is still
// open. The lower bound wins when both bounds are present: it reflects what
// actually flowed in.
func (a *Arena) Resolve(r Ref) Type {
	if r == NoRef {
		return nil
	}
	c := &a.cells[a.Find(r)]
	if c.lower != nil {
		return c.lower
	}
	return c.upper
}

// ResolveOr resolves r, substituting fallback for open cells.
func (a *Arena) ResolveOr(r Ref, fallback Type) Type {
	if t := a.Resolve(r); t != nil {
		return t
	}
	return fallback
}

// BoundOrigin returns the span where the cell's current bound was
// established.
func (a *Arena) BoundOrigin(r Ref) syntax.Span {
	c := &a.cells[a.Find(r)]
	if c.lower != nil {
		return c.lowerAt
	}
	return c.upperAt
}

// Poison overwrites the cell with Error so downstream constraints keep
// resolving after a reported conflict.
func (a *Arena) Poison(r Ref) {
	c := &a.cells[a.Find(r)]
	c.lower = Error
	c.upper = nil
}

// merge unions the two cell groups into one shared node. The caller is
// responsible for reconciling bounds before or after; merge itself only
// rewires identity and carries bounds over to the surviving root.
func (a *Arena) merge(x, y Ref) Ref {
	rx, ry := a.Find(x), a.Find(y)
	if rx == ry {
		return rx
	}
	if a.cells[rx].rank < a.cells[ry].rank {
		rx, ry = ry, rx
	}
	if a.cells[rx].rank == a.cells[ry].rank {
		a.cells[rx].rank++
	}
	loser := &a.cells[ry]
	winner := &a.cells[rx]
	loser.parent = rx

	if winner.lower == nil {
		winner.lower, winner.lowerAt = loser.lower, loser.lowerAt
	} else if loser.lower != nil {
		winner.lower = NewUnion(winner.lower, loser.lower)
	}
	if winner.upper == nil {
		winner.upper, winner.upperAt = loser.upper, loser.upperAt
	}
	loser.lower, loser.upper = nil, nil
	return rx
}

// ImportType deep-copies t (living in src) into dst, translating every ref.
// Shared and cyclic structure is preserved through the memo: a ref is
// translated once, before its contents are copied, so self-referential
// tables import as self-referential tables.
func ImportType(dst, src *Arena, t Type, memo map[Ref]Ref) Type {
	if memo == nil {
		memo = make(map[Ref]Ref)
	}
	switch tt := t.(type) {
	case *Table:
		out := NewTable(tt.Open)
		for _, f := range tt.Fields {
			out.Fields = append(out.Fields, Field{Name: f.Name, Value: importRef(dst, src, f.Value, memo)})
		}
		if tt.Indexer != nil {
			out.Indexer = &Indexer{
				Key:   importRef(dst, src, tt.Indexer.Key, memo),
				Value: importRef(dst, src, tt.Indexer.Value, memo),
			}
		}
		out.Meta = importRef(dst, src, tt.Meta, memo)
		return out
	case *Function:
		out := NewFunction()
		for _, p := range tt.Params {
			out.Params = append(out.Params, importRef(dst, src, p, memo))
		}
		out.Variadic = importRef(dst, src, tt.Variadic, memo)
		for _, res := range tt.Results {
			out.Results = append(out.Results, importRef(dst, src, res, memo))
		}
		out.ResultVariadic = importRef(dst, src, tt.ResultVariadic, memo)
		return out
	case Union:
		members := make([]Type, 0, len(tt.Members))
		for _, m := range tt.Members {
			members = append(members, ImportType(dst, src, m, memo))
		}
		return NewUnion(members...)
	default:
		return t
	}
}

func importRef(dst, src *Arena, r Ref, memo map[Ref]Ref) Ref {
	if r == NoRef {
		return NoRef
	}
	root := src.Find(r)
	if nr, ok := memo[root]; ok {
		return nr
	}
	c := &src.cells[root]
	nr := dst.New(c.lowerAt)
	memo[root] = nr
	if t := src.Resolve(root); t != nil {
		dst.cells[dst.Find(nr)].lower = ImportType(dst, src, t, memo)
	}
	return nr
}
