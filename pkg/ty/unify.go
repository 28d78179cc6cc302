package ty

import (
	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
)

// Unifier applies flow constraints to arena cells and reports conflicts into
// a diag.Report. A failed assertion poisons the affected cell with Error so
// the traversal keeps going without repeating the same complaint.
type Unifier struct {
	arena  *Arena
	report *diag.Report
}

func NewUnifier(arena *Arena, report *diag.Report) *Unifier {
	return &Unifier{arena: arena, report: report}
}

func (u *Unifier) Arena() *Arena { return u.arena }

// AssertSub records that the value in src flows into dst, as in an
// assignment or argument pass. at is where the flow happens.
func (u *Unifier) AssertSub(src, dst Ref, at syntax.Span) bool {
	a := u.arena
	rs, rd := a.Find(src), a.Find(dst)
	if rs == rd {
		return true
	}
	st, dt := a.Resolve(rs), a.Resolve(rd)

	switch {
	case st == nil && dt == nil:
		a.merge(rs, rd)
		return true
	case dt == nil:
		return u.constrainAbove(rd, st, at)
	case st == nil:
		// dst's requirement propagates back as src's upper bound
		c := &a.cells[rs]
		if c.upper == nil {
			c.upper, c.upperAt = dt, at
			return true
		}
		if a.Subtype(c.upper, dt) || a.Subtype(dt, c.upper) {
			return true
		}
		return u.conflict(at, c.upper, c.upperAt, dt, a.BoundOrigin(rd), rs)
	default:
		if a.Subtype(st, dt) {
			return true
		}
		return u.conflict(at, st, a.BoundOrigin(rs), dt, a.BoundOrigin(rd), rd)
	}
}

// Assign records the value in src flowing into the binding dst. Unlike
// AssertSub it widens scalar bindings instead of demanding a subtype, so a
// binding assigned 0 and then "s" infers 0|"s" rather than conflicting;
// annotated and structural bindings still check strictly through the
// bounds.
func (u *Unifier) Assign(src, dst Ref, at syntax.Span) bool {
	st := u.arena.Resolve(src)
	if st == nil {
		return u.AssertSub(src, dst, at)
	}
	return u.constrainAbove(u.arena.Find(dst), st, at)
}

// AssertType fixes the cell to t, as established by an annotation. The type
// becomes both bounds: values already in the cell must fit it, and later
// flows are checked against it instead of widening past it.
func (u *Unifier) AssertType(r Ref, t Type, at syntax.Span) bool {
	a := u.arena
	root := a.Find(r)
	c := &a.cells[root]
	if cur := a.Resolve(root); cur != nil && !a.Subtype(cur, t) {
		return u.conflict(at, cur, a.BoundOrigin(root), t, at, root)
	}
	if c.lower == nil {
		c.lower, c.lowerAt = t, at
	}
	if c.upper == nil {
		c.upper, c.upperAt = t, at
	}
	return true
}

// Flow records t as a value flowing into the cell, widening scalar bounds.
func (u *Unifier) Flow(r Ref, t Type, at syntax.Span) bool {
	return u.constrainAbove(u.arena.Find(r), t, at)
}

// constrainAbove raises the cell's lower bound with an incoming value type.
// Scalar bounds widen by union so `x = 0; x = "s"` infers number|string.
// Once the bound is structural the shape is fixed: later values must fit it,
// and a mismatch is a conflict rather than a widening.
func (u *Unifier) constrainAbove(root Ref, t Type, at syntax.Span) bool {
	a := u.arena
	c := &a.cells[root]
	if c.upper != nil && !a.Subtype(t, c.upper) {
		return u.conflict(at, t, at, c.upper, c.upperAt, root)
	}
	if c.lower == nil {
		c.lower, c.lowerAt = t, at
		return true
	}
	if IsStructural(c.lower) || IsStructural(t) {
		if a.Subtype(t, c.lower) {
			return true
		}
		return u.conflict(at, t, at, c.lower, c.lowerAt, root)
	}
	c.lower = NewUnion(c.lower, t)
	return true
}

// ConstrainBelow lowers the cell's upper bound with a requirement from a use
// site, verifying the current value still satisfies it.
func (u *Unifier) ConstrainBelow(r Ref, t Type, at syntax.Span) bool {
	a := u.arena
	root := a.Find(r)
	c := &a.cells[root]
	if c.lower != nil && !a.Subtype(c.lower, t) {
		return u.conflict(at, c.lower, c.lowerAt, t, at, root)
	}
	if c.upper == nil {
		c.upper, c.upperAt = t, at
	}
	return true
}

// conflict emits a single TypeConflict naming both types with the spans that
// established them, then poisons the cell so later constraints involving it
// succeed silently.
func (u *Unifier) conflict(at syntax.Span, got Type, gotAt syntax.Span, want Type, wantAt syntax.Span, poison Ref) bool {
	d := u.report.Addf(diag.Error, diag.TypeConflict, at,
		"cannot unify %s with %s", u.arena.Render(got), u.arena.Render(want))
	if gotAt.IsValid() {
		d.Origins = append(d.Origins, diag.Origin{Span: gotAt, Message: u.arena.Render(got) + " established here"})
	}
	if wantAt.IsValid() && wantAt != gotAt {
		d.Origins = append(d.Origins, diag.Origin{Span: wantAt, Message: u.arena.Render(want) + " established here"})
	}
	if poison != NoRef {
		u.arena.Poison(poison)
	}
	return false
}
