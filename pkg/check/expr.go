package check

import (
	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/ty"
)

// checkExpr evaluates e to a single value cell, truncating multi-value
// expressions to their first result.
func (c *Checker) checkExpr(e syntax.Expr) ty.Ref {
	values, tail := c.checkExprMulti(e)
	if len(values) > 0 {
		return values[0]
	}
	if tail != ty.NoRef {
		return tail
	}
	return c.note(e, c.arena.NewOf(ty.Nil, e.Span()))
}

// checkExprMulti evaluates e to its full value tuple: the fixed prefix plus
// an optional variadic tail. Only calls and `...` produce more than one.
func (c *Checker) checkExprMulti(e syntax.Expr) ([]ty.Ref, ty.Ref) {
	switch ex := e.(type) {
	case *syntax.NilExpr:
		return c.single(e, ty.Nil), ty.NoRef
	case *syntax.TrueExpr:
		return c.single(e, ty.BoolLit{Value: true}), ty.NoRef
	case *syntax.FalseExpr:
		return c.single(e, ty.BoolLit{Value: false}), ty.NoRef
	case *syntax.NumberExpr:
		return c.single(e, ty.NumberLit{Value: ex.Value}), ty.NoRef
	case *syntax.StringExpr:
		return c.single(e, ty.StringLit{Value: ex.Value}), ty.NoRef
	case *syntax.VarargExpr:
		if c.fn != nil && c.fn.variadic != ty.NoRef {
			return nil, c.note(e, c.fn.variadic)
		}
		return nil, c.note(e, c.arena.NewOf(ty.Dynamic, e.Span()))
	case *syntax.NameExpr:
		return []ty.Ref{c.checkName(ex)}, ty.NoRef
	case *syntax.DotExpr:
		obj := c.checkExpr(ex.Obj)
		return []ty.Ref{c.note(e, c.fieldOf(obj, ex.Name, ex.Span(), false))}, ty.NoRef
	case *syntax.IndexExpr:
		obj := c.checkExpr(ex.Obj)
		key := c.checkExpr(ex.Key)
		return []ty.Ref{c.note(e, c.indexOf(obj, key, ex.Span(), false))}, ty.NoRef
	case *syntax.CallExpr:
		return c.checkCall(ex)
	case *syntax.MethodCallExpr:
		return c.checkMethodCall(ex)
	case *syntax.FunctionExpr:
		return []ty.Ref{c.checkFunctionExpr(ex, false)}, ty.NoRef
	case *syntax.TableExpr:
		return []ty.Ref{c.checkTable(ex)}, ty.NoRef
	case *syntax.BinaryExpr:
		return []ty.Ref{c.checkBinary(ex)}, ty.NoRef
	case *syntax.UnaryExpr:
		return []ty.Ref{c.checkUnary(ex)}, ty.NoRef
	case *syntax.ParenExpr:
		return []ty.Ref{c.note(e, c.checkExpr(ex.X))}, ty.NoRef
	case *syntax.BadExpr:
		return c.single(e, ty.Error), ty.NoRef
	}
	return c.single(e, ty.Error), ty.NoRef
}

// checkExprList evaluates an expression list with Lua tuple expansion: every
// expression but the last is truncated to one value, the last contributes
// its whole tuple up to want values.
func (c *Checker) checkExprList(exprs []syntax.Expr, want int) []ty.Ref {
	var out []ty.Ref
	for i, e := range exprs {
		if i < len(exprs)-1 {
			out = append(out, c.checkExpr(e))
			continue
		}
		values, tail := c.checkExprMulti(e)
		out = append(out, values...)
		if tail != ty.NoRef {
			for len(out) < want {
				out = append(out, tail)
			}
		}
	}
	return out
}

func (c *Checker) single(e syntax.Expr, t ty.Type) []ty.Ref {
	return []ty.Ref{c.note(e, c.arena.NewOf(t, e.Span()))}
}

func (c *Checker) note(e syntax.Expr, r ty.Ref) ty.Ref {
	c.env.nodeTypes[e] = r
	return r
}

func (c *Checker) checkName(e *syntax.NameExpr) ty.Ref {
	if cell, ok := c.scope.Get(e.Name); ok {
		return c.note(e, cell)
	}
	if cell, ok := c.globals[e.Name]; ok {
		return c.note(e, cell)
	}
	c.report.Addf(diag.Warning, diag.UnboundReference, e.Span(),
		"global %q is never assigned", e.Name)
	cell := c.arena.NewOf(ty.Dynamic, e.Span())
	c.globals[e.Name] = cell
	return c.note(e, cell)
}

// fieldOf resolves obj.name to a field cell. Reads follow the __index chain
// of the metatable; writes extend the table with a fresh field when it does
// not exist yet.
func (c *Checker) fieldOf(obj ty.Ref, name string, at syntax.Span, forWrite bool) ty.Ref {
	t := c.arena.Resolve(obj)
	switch tt := t.(type) {
	case nil:
		// indexing an open cell fixes it to a table
		tbl := ty.NewTable(true)
		field := c.arena.New(at)
		tbl.SetField(name, field)
		c.unify.Flow(obj, tbl, at)
		return field
	case ty.DynamicType, ty.ErrorType:
		return c.arena.NewOf(tt, at)
	case ty.StringType, ty.StringLit:
		// the string metatable; its members are not modeled individually
		return c.arena.NewOf(ty.Dynamic, at)
	case *ty.Table:
		if field, ok := tt.Field(name); ok {
			return field
		}
		if forWrite || tt.Open {
			field := c.arena.New(at)
			tt.SetField(name, field)
			return field
		}
		if field, ok := c.metaIndexLookup(tt, name, 0); ok {
			return field
		}
		c.report.Addf(diag.Error, diag.TypeConflict, at,
			"%s has no field %q", c.arena.Render(tt), name)
		return c.arena.NewOf(ty.Error, at)
	case ty.Union:
		return c.arena.NewOf(ty.Dynamic, at)
	default:
		c.report.Addf(diag.Error, diag.TypeConflict, at,
			"cannot index %s", c.arena.Render(t))
		return c.arena.NewOf(ty.Error, at)
	}
}

// metaIndexLookup follows tbl's metatable __index chain. The chain is
// bounded so cyclic metatables cannot loop the checker.
func (c *Checker) metaIndexLookup(tbl *ty.Table, name string, depth int) (ty.Ref, bool) {
	if depth > 8 || tbl.Meta == ty.NoRef {
		return ty.NoRef, false
	}
	meta, ok := c.arena.Resolve(tbl.Meta).(*ty.Table)
	if !ok {
		return ty.NoRef, false
	}
	indexRef, ok := meta.Field("__index")
	if !ok {
		return ty.NoRef, false
	}
	index, ok := c.arena.Resolve(indexRef).(*ty.Table)
	if !ok {
		return ty.NoRef, false
	}
	if field, ok := index.Field(name); ok {
		return field, true
	}
	return c.metaIndexLookup(index, name, depth+1)
}

// indexOf resolves obj[key]. Tables answer through their indexer, falling
// back to named fields for literal string keys.
func (c *Checker) indexOf(obj, key ty.Ref, at syntax.Span, forWrite bool) ty.Ref {
	if lit, ok := c.arena.Resolve(key).(ty.StringLit); ok {
		return c.fieldOf(obj, lit.Value, at, forWrite)
	}
	t := c.arena.Resolve(obj)
	switch tt := t.(type) {
	case nil:
		tbl := ty.NewTable(true)
		tbl.Indexer = &ty.Indexer{Key: key, Value: c.arena.New(at)}
		c.unify.Flow(obj, tbl, at)
		return tbl.Indexer.Value
	case ty.DynamicType, ty.ErrorType:
		return c.arena.NewOf(tt, at)
	case ty.StringType, ty.StringLit:
		return c.arena.NewOf(ty.Dynamic, at)
	case *ty.Table:
		if tt.Indexer == nil {
			if forWrite || tt.Open {
				tt.Indexer = &ty.Indexer{Key: key, Value: c.arena.New(at)}
				return tt.Indexer.Value
			}
			c.report.Addf(diag.Error, diag.TypeConflict, at,
				"%s cannot be indexed dynamically", c.arena.Render(tt))
			return c.arena.NewOf(ty.Error, at)
		}
		c.unify.AssertSub(key, tt.Indexer.Key, at)
		return tt.Indexer.Value
	case ty.Union:
		return c.arena.NewOf(ty.Dynamic, at)
	default:
		c.report.Addf(diag.Error, diag.TypeConflict, at,
			"cannot index %s", c.arena.Render(t))
		return c.arena.NewOf(ty.Error, at)
	}
}

func (c *Checker) checkCall(e *syntax.CallExpr) ([]ty.Ref, ty.Ref) {
	if fn, ok := e.Fn.(*syntax.NameExpr); ok {
		if _, shadowed := c.scope.Get(fn.Name); !shadowed {
			switch fn.Name {
			case "require":
				return c.checkRequire(e)
			case "type":
				for _, a := range e.Args {
					c.checkExpr(a)
				}
				return c.single(e, ty.String), ty.NoRef
			case "setmetatable":
				return c.checkSetmetatable(e)
			}
		}
	}
	callee := c.checkExpr(e.Fn)
	args := c.checkExprList(e.Args, len(e.Args))
	results, tail := c.applyCall(callee, args, e.Span())
	if len(results) > 0 {
		c.env.nodeTypes[e] = results[0]
	} else if tail != ty.NoRef {
		c.env.nodeTypes[e] = tail
	}
	return results, tail
}

func (c *Checker) checkMethodCall(e *syntax.MethodCallExpr) ([]ty.Ref, ty.Ref) {
	recv := c.checkExpr(e.Recv)
	callee := c.fieldOf(recv, e.Name, e.Span(), false)
	args := append([]ty.Ref{recv}, c.checkExprList(e.Args, len(e.Args))...)
	results, tail := c.applyCall(callee, args, e.Span())
	if len(results) > 0 {
		c.env.nodeTypes[e] = results[0]
	} else if tail != ty.NoRef {
		c.env.nodeTypes[e] = tail
	}
	return results, tail
}

// applyCall binds argument cells to the callee's parameters and yields its
// result tuple. Calling a still-open cell constrains it to be a function and
// answers dynamically; a resolved non-function is a conflict.
func (c *Checker) applyCall(callee ty.Ref, args []ty.Ref, at syntax.Span) ([]ty.Ref, ty.Ref) {
	t := c.arena.Resolve(callee)
	switch tt := t.(type) {
	case nil:
		c.unify.ConstrainBelow(callee, ty.NewFunction(), at)
		return []ty.Ref{c.arena.NewOf(ty.Dynamic, at)}, ty.NoRef
	case ty.DynamicType, ty.ErrorType:
		return []ty.Ref{c.arena.NewOf(tt, at)}, ty.NoRef
	case *ty.Function:
		for i, arg := range args {
			switch {
			case i < len(tt.Params):
				c.unify.AssertSub(arg, tt.Params[i], at)
			case tt.Variadic != ty.NoRef:
				c.unify.AssertSub(arg, tt.Variadic, at)
			default:
				// extra arguments are dropped at runtime
			}
		}
		// omitted arguments arrive as nil; only complain when the declared
		// parameter cannot be nil
		for i := len(args); i < len(tt.Params); i++ {
			pt := c.arena.Resolve(tt.Params[i])
			if pt != nil && !ty.HasNil(pt) && !c.arena.Subtype(ty.Nil, pt) {
				c.report.Addf(diag.Error, diag.TypeConflict, at,
					"missing argument %d of type %s", i+1, c.arena.Render(pt))
			}
		}
		return tt.Results, tt.ResultVariadic
	case ty.Union:
		return []ty.Ref{c.arena.NewOf(ty.Dynamic, at)}, ty.NoRef
	default:
		c.report.Addf(diag.Error, diag.TypeConflict, at,
			"cannot call %s", c.arena.Render(t))
		return []ty.Ref{c.arena.NewOf(ty.Error, at)}, ty.NoRef
	}
}

// checkRequire resolves `require "name"` through the importer and copies the
// module's exported interface into this run's arena.
func (c *Checker) checkRequire(e *syntax.CallExpr) ([]ty.Ref, ty.Ref) {
	if len(e.Args) != 1 {
		for _, a := range e.Args {
			c.checkExpr(a)
		}
		return c.single(e, ty.Dynamic), ty.NoRef
	}
	lit, ok := e.Args[0].(*syntax.StringExpr)
	if !ok {
		c.checkExpr(e.Args[0])
		c.report.Addf(diag.Warning, diag.UnsupportedConstruct, e.Span(),
			"require with a non-constant module name cannot be resolved")
		return c.single(e, ty.Dynamic), ty.NoRef
	}
	c.note(e.Args[0], c.arena.NewOf(ty.StringLit{Value: lit.Value}, lit.Span()))
	c.addRequire(lit.Value)

	if c.importer == nil {
		return c.single(e, ty.Dynamic), ty.NoRef
	}
	iface, err := c.importer.Import(c.ctx, lit.Value)
	if err != nil {
		c.report.Addf(diag.Error, diag.UnboundReference, e.Span(),
			"cannot load module %q: %s", lit.Value, err)
		return c.single(e, ty.Error), ty.NoRef
	}
	if iface == nil || iface.Export == nil {
		return c.single(e, ty.Dynamic), ty.NoRef
	}
	imported := ty.ImportType(c.arena, iface.Arena, iface.Export, nil)
	return c.single(e, imported), ty.NoRef
}

func (c *Checker) addRequire(name string) {
	for _, r := range c.env.Requires {
		if r == name {
			return
		}
	}
	c.env.Requires = append(c.env.Requires, name)
}

// checkSetmetatable wires `setmetatable(t, mt)` into t's Meta slot and
// returns t.
func (c *Checker) checkSetmetatable(e *syntax.CallExpr) ([]ty.Ref, ty.Ref) {
	if len(e.Args) != 2 {
		for _, a := range e.Args {
			c.checkExpr(a)
		}
		return c.single(e, ty.Dynamic), ty.NoRef
	}
	target := c.checkExpr(e.Args[0])
	meta := c.checkExpr(e.Args[1])
	if tbl, ok := c.arena.Resolve(target).(*ty.Table); ok {
		tbl.Meta = meta
	}
	c.env.nodeTypes[e] = target
	return []ty.Ref{target}, ty.NoRef
}

func (c *Checker) checkFunctionExpr(fn *syntax.FunctionExpr, isMethod bool) ty.Ref {
	sig := ty.NewFunction()
	savedScope, savedNarrow, savedFn := c.scope, c.narrowOrig, c.fn
	c.narrowOrig = nil

	if isMethod {
		self := c.arena.New(fn.Span())
		sig.Params = append(sig.Params, self)
		c.define("self", self)
	}
	for _, p := range fn.Params {
		cell := c.arena.New(p.Span())
		sig.Params = append(sig.Params, cell)
		c.define(p.Name, cell)
		c.env.nodeTypes[p] = cell
	}
	variadic := ty.NoRef
	if fn.IsVararg {
		variadic = c.arena.New(fn.Span())
		sig.Variadic = variadic
	}

	c.fn = &fnScope{sig: sig, variadic: variadic, parent: savedFn}
	c.checkBlock(fn.Body)
	c.fn = savedFn
	c.scope, c.narrowOrig = savedScope, savedNarrow

	return c.note(fn, c.arena.NewOf(sig, fn.Span()))
}

func (c *Checker) checkTable(e *syntax.TableExpr) ty.Ref {
	tbl := ty.NewTable(false)
	for _, item := range e.Items {
		switch {
		case item.Name != "":
			tbl.SetField(item.Name, c.checkExpr(item.Value))
		case item.Key != nil:
			key := c.checkExpr(item.Key)
			if lit, ok := c.arena.Resolve(key).(ty.StringLit); ok {
				tbl.SetField(lit.Value, c.checkExpr(item.Value))
				continue
			}
			value := c.checkExpr(item.Value)
			if tbl.Indexer == nil {
				tbl.Indexer = &ty.Indexer{Key: key, Value: value}
			} else {
				c.unify.Assign(key, tbl.Indexer.Key, item.Key.Span())
				c.unify.Assign(value, tbl.Indexer.Value, item.Value.Span())
			}
		default:
			value := c.checkExpr(item.Value)
			if tbl.Indexer == nil {
				tbl.Indexer = &ty.Indexer{
					Key:   c.arena.NewOf(ty.Number, item.Value.Span()),
					Value: value,
				}
			} else {
				c.unify.Assign(value, tbl.Indexer.Value, item.Value.Span())
			}
		}
	}
	return c.note(e, c.arena.NewOf(tbl, e.Span()))
}

func (c *Checker) checkBinary(e *syntax.BinaryExpr) ty.Ref {
	switch e.Op {
	case syntax.TokAnd, syntax.TokOr:
		return c.checkLogical(e)
	}

	l := c.checkExpr(e.L)
	r := c.checkExpr(e.R)
	switch e.Op {
	case syntax.TokPlus, syntax.TokMinus, syntax.TokStar, syntax.TokSlash,
		syntax.TokPercent, syntax.TokCaret:
		c.unify.ConstrainBelow(l, ty.Number, e.L.Span())
		c.unify.ConstrainBelow(r, ty.Number, e.R.Span())
		return c.note(e, c.arena.NewOf(ty.Number, e.Span()))
	case syntax.TokConcat:
		concatable := ty.NewUnion(ty.Number, ty.String)
		c.unify.ConstrainBelow(l, concatable, e.L.Span())
		c.unify.ConstrainBelow(r, concatable, e.R.Span())
		return c.note(e, c.arena.NewOf(ty.String, e.Span()))
	case syntax.TokLt, syntax.TokLe, syntax.TokGt, syntax.TokGe:
		ordered := ty.NewUnion(ty.Number, ty.String)
		c.unify.ConstrainBelow(l, ordered, e.L.Span())
		c.unify.ConstrainBelow(r, ordered, e.R.Span())
		return c.note(e, c.arena.NewOf(ty.Boolean, e.Span()))
	case syntax.TokEq, syntax.TokNe:
		return c.note(e, c.arena.NewOf(ty.Boolean, e.Span()))
	}
	return c.note(e, c.arena.NewOf(ty.Error, e.Span()))
}

// checkLogical types `and`/`or` by their value semantics rather than as
// boolean operators: `a or b` drops a's nil, `a and b` yields b plus a's
// falsy part.
func (c *Checker) checkLogical(e *syntax.BinaryExpr) ty.Ref {
	l := c.checkExpr(e.L)
	r := c.checkExpr(e.R)
	lt := c.arena.ResolveOr(l, ty.Dynamic)
	rt := c.arena.ResolveOr(r, ty.Dynamic)

	var result ty.Type
	if e.Op == syntax.TokOr {
		result = ty.NewUnion(ty.WithoutNil(lt), rt)
	} else {
		result = rt
		if ty.HasNil(lt) {
			result = ty.NewUnion(ty.Nil, rt)
		}
	}
	return c.note(e, c.arena.NewOf(result, e.Span()))
}

func (c *Checker) checkUnary(e *syntax.UnaryExpr) ty.Ref {
	x := c.checkExpr(e.X)
	switch e.Op {
	case syntax.TokMinus:
		c.unify.ConstrainBelow(x, ty.Number, e.X.Span())
		return c.note(e, c.arena.NewOf(ty.Number, e.Span()))
	case syntax.TokNot:
		return c.note(e, c.arena.NewOf(ty.Boolean, e.Span()))
	case syntax.TokHash:
		c.unify.ConstrainBelow(x, ty.NewUnion(ty.String, ty.NewTable(true)), e.X.Span())
		return c.note(e, c.arena.NewOf(ty.Number, e.Span()))
	}
	return c.note(e, c.arena.NewOf(ty.Error, e.Span()))
}
