package check

import (
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/ty"
)

// narrowFact describes what a condition proves about one local binding in
// each branch.
type narrowFact struct {
	name     string
	thenType func(ty.Type) ty.Type
	elseType func(ty.Type) ty.Type
}

func keep(t ty.Type) ty.Type { return t }

// analyzeCond recognizes the narrowing idioms a condition can express:
//
//	type(x) == "tag"   selects the tag in the then branch, rejects it in else
//	type(x) ~= "tag"   the same, swapped
//	x == nil / x ~= nil   splits nil from the rest
//	x                  bare truthiness drops nil in the then branch
//
// Only conditions over plain local names narrow; anything else checks
// normally without refining the scope.
func (c *Checker) analyzeCond(cond syntax.Expr) []narrowFact {
	switch e := cond.(type) {
	case *syntax.NameExpr:
		if _, ok := c.scope.Get(e.Name); ok {
			return []narrowFact{{name: e.Name, thenType: ty.WithoutNil, elseType: keep}}
		}
	case *syntax.ParenExpr:
		return c.analyzeCond(e.X)
	case *syntax.BinaryExpr:
		switch e.Op {
		case syntax.TokEq, syntax.TokNe:
			return c.analyzeComparison(e)
		case syntax.TokAnd:
			// both sides hold in the then branch; the else branch proves
			// nothing definite
			facts := c.analyzeCond(e.L)
			for _, f := range c.analyzeCond(e.R) {
				f.elseType = keep
				facts = append(facts, f)
			}
			for i := range facts {
				facts[i].elseType = keep
			}
			return facts
		}
	}
	return nil
}

func (c *Checker) analyzeComparison(e *syntax.BinaryExpr) []narrowFact {
	eq := e.Op == syntax.TokEq

	// type(x) == "tag", in either operand order
	if name, tag, ok := c.typeTagComparison(e.L, e.R); ok {
		sel := func(t ty.Type) ty.Type { return ty.Select(t, tag) }
		rej := func(t ty.Type) ty.Type { return ty.Reject(t, tag) }
		if !eq {
			sel, rej = rej, sel
		}
		return []narrowFact{{name: name, thenType: sel, elseType: rej}}
	}

	// x == nil, in either operand order
	if name, ok := c.nilComparison(e.L, e.R); ok {
		isNil := func(ty.Type) ty.Type { return ty.Nil }
		nonNil := ty.WithoutNil
		if !eq {
			isNil, nonNil = nonNil, isNil
		}
		return []narrowFact{{name: name, thenType: isNil, elseType: nonNil}}
	}
	return nil
}

// typeTagComparison matches `type(x)` against a string literal, where x is a
// local name and `type` is not shadowed.
func (c *Checker) typeTagComparison(l, r syntax.Expr) (string, string, bool) {
	for _, pair := range [][2]syntax.Expr{{l, r}, {r, l}} {
		call, ok := pair[0].(*syntax.CallExpr)
		if !ok || len(call.Args) != 1 {
			continue
		}
		fn, ok := call.Fn.(*syntax.NameExpr)
		if !ok || fn.Name != "type" {
			continue
		}
		if _, shadowed := c.scope.Get("type"); shadowed {
			continue
		}
		arg, ok := call.Args[0].(*syntax.NameExpr)
		if !ok {
			continue
		}
		if _, local := c.scope.Get(arg.Name); !local {
			continue
		}
		lit, ok := pair[1].(*syntax.StringExpr)
		if !ok {
			continue
		}
		return arg.Name, lit.Value, true
	}
	return "", "", false
}

func (c *Checker) nilComparison(l, r syntax.Expr) (string, bool) {
	for _, pair := range [][2]syntax.Expr{{l, r}, {r, l}} {
		name, ok := pair[0].(*syntax.NameExpr)
		if !ok {
			continue
		}
		if _, local := c.scope.Get(name.Name); !local {
			continue
		}
		if _, ok := pair[1].(*syntax.NilExpr); !ok {
			continue
		}
		return name.Name, true
	}
	return "", false
}

// applyNarrowing overlays the facts onto the current scope: each narrowed
// name gets a fresh cell holding the refined type, while narrowOrig keeps
// the route back to the original cell for assignments inside the branch.
// The caller saves and restores both scope and narrowOrig around the branch.
func (c *Checker) applyNarrowing(facts []narrowFact, thenBranch bool) {
	if len(facts) == 0 {
		return
	}
	overlay := make(map[string]ty.Ref, len(c.narrowOrig)+len(facts))
	for k, v := range c.narrowOrig {
		overlay[k] = v
	}
	for _, f := range facts {
		orig, ok := c.scope.Get(f.name)
		if !ok {
			continue
		}
		cur := c.arena.Resolve(orig)
		if cur == nil {
			continue
		}
		refine := f.thenType
		if !thenBranch {
			refine = f.elseType
		}
		narrowed := refine(cur)
		if narrowed == cur {
			continue
		}
		cell := c.arena.NewOf(narrowed, syntax.Span{File: c.file})
		c.scope = c.scope.Set(f.name, cell)
		if _, already := overlay[f.name]; !already {
			overlay[f.name] = orig
		}
	}
	c.narrowOrig = overlay
}
