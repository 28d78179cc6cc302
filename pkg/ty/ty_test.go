package ty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
)

func span(line int) syntax.Span {
	return syntax.Span{
		File:  "test.lua",
		Start: syntax.Position{Line: line, Column: 1, Offset: line * 10},
		End:   syntax.Position{Line: line, Column: 5, Offset: line*10 + 4},
	}
}

func TestUnionNormalization(t *testing.T) {
	// a literal next to its general type collapses to the general type
	assert.Equal(t, Number, NewUnion(NumberLit{Value: 0}, Number))
	assert.Equal(t, String, NewUnion(String, StringLit{Value: "x"}))

	// duplicates collapse, singletons unwrap
	assert.Equal(t, Number, NewUnion(Number, Number))
	assert.Equal(t, Nil, NewUnion(Nil))

	// nested unions flatten
	u := NewUnion(NewUnion(Number, String), Nil)
	members := Members(u)
	require.Len(t, members, 3)

	// dynamic absorbs, empty collapses to error
	assert.Equal(t, Dynamic, NewUnion(Number, Dynamic, String))
	assert.Equal(t, Error, NewUnion())
}

func TestUnionNarrowing(t *testing.T) {
	u := NewUnion(Number, String, Nil)

	assert.Equal(t, String, Select(u, "string"))
	assert.Equal(t, NewUnion(Number, Nil), Reject(u, "string"))
	assert.Equal(t, NewUnion(Number, String), WithoutNil(u))
	assert.True(t, HasNil(u))
	assert.False(t, HasNil(Number))

	// narrowing dynamic yields the tag's general type
	assert.Equal(t, String, Select(Dynamic, "string"))
	assert.Equal(t, Dynamic, Reject(Dynamic, "string"))

	// narrowing away the only member leaves the error type, not an empty union
	assert.Equal(t, Error, Select(Number, "string"))
}

func TestSubtypeScalars(t *testing.T) {
	a := NewArena()

	assert.True(t, a.Subtype(NumberLit{Value: 3}, Number))
	assert.False(t, a.Subtype(Number, NumberLit{Value: 3}))
	assert.True(t, a.Subtype(StringLit{Value: "hi"}, String))
	assert.False(t, a.Subtype(Number, String))

	// dynamic and error are compatible in both directions
	assert.True(t, a.Subtype(Dynamic, String))
	assert.True(t, a.Subtype(String, Dynamic))
	assert.True(t, a.Subtype(Error, NewTable(false)))
	assert.True(t, a.Subtype(NewTable(false), Error))
}

func TestSubtypeUnions(t *testing.T) {
	a := NewArena()
	ns := NewUnion(Number, String)

	// left union: every member must flow
	assert.True(t, a.Subtype(ns, NewUnion(Number, String, Nil)))
	assert.False(t, a.Subtype(ns, Number))

	// right union: one alternative suffices
	assert.True(t, a.Subtype(Number, ns))
	assert.False(t, a.Subtype(Nil, ns))
}

func TestSubtypeTables(t *testing.T) {
	a := NewArena()

	point := NewTable(false)
	point.SetField("x", a.NewOf(Number, span(1)))
	point.SetField("y", a.NewOf(Number, span(1)))

	xOnly := NewTable(false)
	xOnly.SetField("x", a.NewOf(Number, span(2)))

	// width subtyping: extra fields on the left are fine
	assert.True(t, a.Subtype(point, xOnly))
	assert.False(t, a.Subtype(xOnly, point))

	// an open table may still grow missing fields
	openTbl := NewTable(true)
	openTbl.SetField("x", a.NewOf(Number, span(3)))
	assert.True(t, a.Subtype(openTbl, point))

	// field type mismatch
	bad := NewTable(false)
	bad.SetField("x", a.NewOf(String, span(4)))
	assert.False(t, a.Subtype(bad, xOnly))
}

func TestSubtypeCyclicTables(t *testing.T) {
	a := NewArena()

	// u = {}; u.self = u
	u := NewTable(false)
	uRef := a.NewOf(u, span(1))
	u.SetField("self", uRef)

	// a structurally identical but distinct cycle
	v := NewTable(false)
	vRef := a.NewOf(v, span(2))
	v.SetField("self", vRef)

	// both directions terminate and agree
	assert.True(t, a.Subtype(u, v))
	assert.True(t, a.Subtype(v, u))
	assert.True(t, a.Subtype(u, u))

	// a cycle with an extra divergent field is rejected, still terminating
	w := NewTable(false)
	wRef := a.NewOf(w, span(3))
	w.SetField("self", wRef)
	w.SetField("tag", a.NewOf(String, span(3)))
	assert.True(t, a.Subtype(w, v))
	assert.False(t, a.Subtype(v, w))
}

func TestSubtypeFunctions(t *testing.T) {
	a := NewArena()

	// function(number) -> string
	f := NewFunction()
	f.Params = append(f.Params, a.NewOf(Number, span(1)))
	f.Results = append(f.Results, a.NewOf(String, span(1)))

	// function(number|string) -> string accepts more, so it flows into f's slot
	g := NewFunction()
	g.Params = append(g.Params, a.NewOf(NewUnion(Number, String), span(2)))
	g.Results = append(g.Results, a.NewOf(String, span(2)))

	assert.True(t, a.Subtype(g, f))
	assert.False(t, a.Subtype(f, g))

	// covariant results
	h := NewFunction()
	h.Params = append(h.Params, a.NewOf(Number, span(3)))
	h.Results = append(h.Results, a.NewOf(Number, span(3)))
	assert.False(t, a.Subtype(h, f))

	// fewer params accept extra dropped arguments
	nullary := NewFunction()
	nullary.Results = append(nullary.Results, a.NewOf(String, span(4)))
	assert.True(t, a.Subtype(nullary, f))
}

func TestUnifierMergeOpenCells(t *testing.T) {
	a := NewArena()
	u := NewUnifier(a, diag.NewReport())

	x := a.New(span(1))
	y := a.New(span(2))
	require.True(t, u.AssertSub(x, y, span(3)))

	// resolving one side resolves the other
	require.True(t, u.Flow(x, Number, span(4)))
	assert.Equal(t, Number, a.Resolve(y))
	assert.Equal(t, a.Find(x), a.Find(y))
}

func TestUnifierScalarWidening(t *testing.T) {
	a := NewArena()
	u := NewUnifier(a, diag.NewReport())

	x := a.NewOf(NumberLit{Value: 0}, span(1))
	require.True(t, u.Flow(x, StringLit{Value: "s"}, span(2)))
	require.True(t, u.Flow(x, Number, span(3)))

	got := a.Resolve(x)
	assert.Equal(t, NewUnion(StringLit{Value: "s"}, Number), got)
}

func TestUnifierStructuralConflict(t *testing.T) {
	a := NewArena()
	report := diag.NewReport()
	u := NewUnifier(a, report)

	// x = {inner = x-ish}; then x = {} with a string field: shapes disagree
	rec := NewTable(false)
	recRef := a.NewOf(rec, span(1))
	rec.SetField("inner", recRef)

	flat := NewTable(false)
	flat.SetField("inner", a.NewOf(String, span(5)))

	x := a.NewOf(rec, span(1))
	assert.False(t, u.Flow(x, flat, span(5)))

	// exactly one conflict, pointing at both establishing spans
	require.Equal(t, 1, report.Len())
	d := report.Diagnostics()[0]
	assert.Equal(t, diag.TypeConflict, d.Kind)
	require.Len(t, d.Origins, 2)
	assert.Equal(t, span(5), d.Origins[0].Span)
	assert.Equal(t, span(1), d.Origins[1].Span)

	// the cell is poisoned: later constraints stay quiet
	assert.Equal(t, Error, a.Resolve(x))
	assert.True(t, u.Flow(x, Number, span(6)))
	assert.Equal(t, 1, report.Len())
}

func TestUnifierAnnotationConflict(t *testing.T) {
	a := NewArena()
	report := diag.NewReport()
	u := NewUnifier(a, report)

	x := a.New(span(1))
	require.True(t, u.AssertType(x, Number, span(1)))
	assert.False(t, u.Flow(x, String, span(2)))
	assert.Equal(t, 1, report.Len())
}

func TestUnifierUpperBound(t *testing.T) {
	a := NewArena()
	report := diag.NewReport()
	u := NewUnifier(a, report)

	x := a.New(span(1))
	require.True(t, u.ConstrainBelow(x, Number, span(2)))

	// a later incompatible value violates the recorded requirement
	assert.False(t, u.Flow(x, String, span(3)))
	assert.Equal(t, 1, report.Len())
}

func TestRender(t *testing.T) {
	a := NewArena()

	assert.Equal(t, "any", a.Render(Dynamic))
	assert.Equal(t, "number|string", a.Render(Union{Members: []Type{Number, String}}))
	assert.Equal(t, `"lit"`, a.Render(StringLit{Value: "lit"}))

	tbl := NewTable(true)
	tbl.SetField("x", a.NewOf(Number, span(1)))
	assert.Equal(t, "{x: number, ...}", a.Render(tbl))

	f := NewFunction()
	f.Params = append(f.Params, a.NewOf(String, span(1)))
	f.Results = append(f.Results, a.NewOf(Boolean, span(1)))
	assert.Equal(t, "function(string) -> boolean", a.Render(f))
}

func TestRenderCyclic(t *testing.T) {
	a := NewArena()
	u := NewTable(false)
	uRef := a.NewOf(u, span(1))
	u.SetField("self", uRef)

	assert.Equal(t, "{self: {self: ...}}", a.Render(u))
}

func TestFingerprintCanonical(t *testing.T) {
	a := NewArena()

	t1 := NewTable(false)
	t1.SetField("b", a.NewOf(Number, span(1)))
	t1.SetField("a", a.NewOf(String, span(1)))

	t2 := NewTable(false)
	t2.SetField("a", a.NewOf(String, span(2)))
	t2.SetField("b", a.NewOf(Number, span(2)))

	// field order does not affect the fingerprint, but does affect Render
	assert.Equal(t, a.Fingerprint(t1), a.Fingerprint(t2))
	assert.NotEqual(t, a.Render(t1), a.Render(t2))

	// unions fingerprint identically regardless of member order
	u1 := Union{Members: []Type{Number, String}}
	u2 := Union{Members: []Type{String, Number}}
	assert.Equal(t, a.Fingerprint(u1), a.Fingerprint(u2))
}

func TestImportType(t *testing.T) {
	src := NewArena()
	dst := NewArena()

	u := NewTable(false)
	uRef := src.NewOf(u, span(1))
	u.SetField("self", uRef)
	u.SetField("n", src.NewOf(Number, span(1)))

	got := ImportType(dst, src, u, nil)
	tbl, ok := got.(*Table)
	require.True(t, ok)

	selfRef, ok := tbl.Field("self")
	require.True(t, ok)
	inner, ok := dst.Resolve(selfRef).(*Table)
	require.True(t, ok)

	// the cycle is preserved inside dst
	innerSelf, ok := inner.Field("self")
	require.True(t, ok)
	assert.Equal(t, dst.Find(selfRef), dst.Find(innerSelf))

	nRef, ok := tbl.Field("n")
	require.True(t, ok)
	assert.Equal(t, Number, dst.Resolve(nRef))
}
