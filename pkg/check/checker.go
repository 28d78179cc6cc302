package check

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/immutable"
	"github.com/pkg/errors"

	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/ty"
)

// Options configures one check run.
type Options struct {
	// Importer resolves require()'d modules. A nil importer degrades every
	// require to dynamic.
	Importer Importer

	// Logger receives debug-level traversal events. Nil discards them.
	Logger *slog.Logger
}

// Check runs the constraint traversal over one parsed chunk. The context is
// consulted at statement granularity: once it is cancelled the traversal
// stops at the next statement boundary and Check returns the context's
// error. A cancelled run produces no environment.
func Check(ctx context.Context, chunk *syntax.Chunk, opts Options) (*Env, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	report := diag.NewReport()
	for _, e := range chunk.Errors {
		report.Addf(diag.Warning, diag.SyntaxRecovered, e.Span, "%s", e.Msg)
	}

	arena := ty.NewArena()
	c := &Checker{
		ctx:      ctx,
		file:     chunk.File,
		chunk:    chunk,
		arena:    arena,
		unify:    ty.NewUnifier(arena, report),
		report:   report,
		importer: opts.Importer,
		logger:   logger,
		globals:  make(map[string]ty.Ref),
		scope:    immutable.NewMap[string, ty.Ref](nil),
		export:   ty.NoRef,
		env: &Env{
			File:      chunk.File,
			Arena:     arena,
			Report:    report,
			nodeTypes: make(map[syntax.Node]ty.Ref),
		},
	}
	c.installPrelude()

	logger.Debug("check start", "file", chunk.File, "stmts", len(chunk.Body.Stmts))
	c.checkBlock(chunk.Body)
	if c.cancelled {
		return nil, errors.Wrap(ctx.Err(), "check cancelled")
	}

	if c.export != ty.NoRef {
		c.env.Export = arena.Resolve(c.export)
	}
	logger.Debug("check done", "file", chunk.File,
		"cells", arena.Len(), "diagnostics", report.Len())
	return c.env, nil
}

// Checker holds the mutable state of one traversal run. It is used by one
// goroutine only.
type Checker struct {
	ctx      context.Context
	file     string
	chunk    *syntax.Chunk
	arena    *ty.Arena
	unify    *ty.Unifier
	report   *diag.Report
	importer Importer
	logger   *slog.Logger
	env      *Env

	// globals maps global names to their cells; scope holds the lexical
	// locals and is snapshotted persistently at branch points.
	globals map[string]ty.Ref
	scope   *immutable.Map[string, ty.Ref]

	// narrowOrig maps names currently shadowed by a narrowing overlay back
	// to their original cells so assignments inside a branch still reach
	// the binding that outlives it.
	narrowOrig map[string]ty.Ref

	fn        *fnScope // innermost function, nil at chunk level
	export    ty.Ref
	cancelled bool
}

// fnScope tracks the function whose body is being checked.
type fnScope struct {
	sig      *ty.Function
	variadic ty.Ref
	returned bool
	parent   *fnScope
}

func (c *Checker) checkBlock(b *syntax.Block) {
	saved := c.scope
	defer func() { c.scope = saved }()
	for _, s := range b.Stmts {
		if c.ctx.Err() != nil {
			c.cancelled = true
			return
		}
		c.checkStmt(s)
		if c.cancelled {
			return
		}
	}
}

// checkBlockOpen checks b's statements without restoring the scope, for
// repeat/until where the condition sees the body's locals.
func (c *Checker) checkBlockOpen(b *syntax.Block) {
	for _, s := range b.Stmts {
		if c.ctx.Err() != nil {
			c.cancelled = true
			return
		}
		c.checkStmt(s)
		if c.cancelled {
			return
		}
	}
}

func (c *Checker) checkStmt(s syntax.Stmt) {
	switch st := s.(type) {
	case *syntax.LocalStmt:
		c.checkLocal(st)
	case *syntax.AssignStmt:
		c.checkAssign(st)
	case *syntax.CallStmt:
		c.checkExprMulti(st.Call)
	case *syntax.DoStmt:
		c.checkBlock(st.Body)
	case *syntax.WhileStmt:
		c.checkWhile(st)
	case *syntax.RepeatStmt:
		c.checkRepeat(st)
	case *syntax.IfStmt:
		c.checkIf(st)
	case *syntax.NumericForStmt:
		c.checkNumericFor(st)
	case *syntax.GenericForStmt:
		c.checkGenericFor(st)
	case *syntax.FunctionStmt:
		c.checkFunctionStmt(st)
	case *syntax.LocalFunctionStmt:
		c.checkLocalFunction(st)
	case *syntax.ReturnStmt:
		c.checkReturn(st)
	case *syntax.BreakStmt, *syntax.LabelStmt:
		// no typing effect
	case *syntax.GotoStmt:
		c.report.Addf(diag.Warning, diag.UnsupportedConstruct, st.Span(),
			"goto is not modeled; control flow after it is approximated")
	case *syntax.BadStmt:
		// already reported by the parser
	}
}

func (c *Checker) checkLocal(s *syntax.LocalStmt) {
	values := c.checkExprList(s.Values, len(s.Names))
	for i, name := range s.Names {
		cell := c.arena.New(name.Span())
		if i < len(s.Annots) && s.Annots[i] != nil {
			annot := s.Annots[i]
			t, err := parseAnnot(annot.Text)
			if err != nil {
				c.report.Addf(diag.Warning, diag.UnsupportedConstruct, annot.Span(), "%s", err)
				t = ty.Dynamic
			}
			c.unify.AssertType(cell, t, annot.Span())
		}
		if i < len(values) {
			c.unify.AssertSub(values[i], cell, s.Span())
		} else if len(s.Values) > 0 {
			c.unify.Flow(cell, ty.Nil, s.Span())
		}
		c.define(name.Name, cell)
		c.env.nodeTypes[name] = cell
	}
}

func (c *Checker) checkAssign(s *syntax.AssignStmt) {
	values := c.checkExprList(s.Values, len(s.Targets))
	for i, target := range s.Targets {
		var value ty.Ref
		if i < len(values) {
			value = values[i]
		} else {
			value = c.arena.NewOf(ty.Nil, s.Span())
		}
		c.assignTo(target, value, s.Span())
	}
}

func (c *Checker) assignTo(target syntax.Expr, value ty.Ref, at syntax.Span) {
	switch tgt := target.(type) {
	case *syntax.NameExpr:
		if cell, ok := c.scope.Get(tgt.Name); ok {
			c.unify.Assign(value, cell, at)
			if orig, narrowed := c.narrowOrig[tgt.Name]; narrowed {
				c.unify.Assign(value, orig, at)
			}
			c.env.nodeTypes[tgt] = cell
			return
		}
		cell, ok := c.globals[tgt.Name]
		if !ok {
			cell = c.arena.New(tgt.Span())
			c.globals[tgt.Name] = cell
		}
		c.unify.Assign(value, cell, at)
		c.env.nodeTypes[tgt] = cell
	case *syntax.DotExpr:
		obj := c.checkExpr(tgt.Obj)
		field := c.fieldOf(obj, tgt.Name, tgt.Span(), true)
		c.unify.AssertSub(value, field, at)
		c.env.nodeTypes[tgt] = field
	case *syntax.IndexExpr:
		obj := c.checkExpr(tgt.Obj)
		key := c.checkExpr(tgt.Key)
		field := c.indexOf(obj, key, tgt.Span(), true)
		c.unify.AssertSub(value, field, at)
		c.env.nodeTypes[tgt] = field
	case *syntax.BadExpr:
		// parser already complained
	default:
		c.report.Addf(diag.Error, diag.TypeConflict, target.Span(),
			"cannot assign to this expression")
	}
}

func (c *Checker) checkWhile(s *syntax.WhileStmt) {
	c.checkExpr(s.Cond)
	facts := c.analyzeCond(s.Cond)
	savedScope, savedNarrow := c.scope, c.narrowOrig
	c.applyNarrowing(facts, true)
	c.checkBlock(s.Body)
	c.scope, c.narrowOrig = savedScope, savedNarrow
}

func (c *Checker) checkRepeat(s *syntax.RepeatStmt) {
	saved := c.scope
	c.checkBlockOpen(s.Body)
	if !c.cancelled {
		c.checkExpr(s.Cond)
	}
	c.scope = saved
}

func (c *Checker) checkIf(s *syntax.IfStmt) {
	c.checkExpr(s.Cond)
	facts := c.analyzeCond(s.Cond)

	savedScope, savedNarrow := c.scope, c.narrowOrig
	c.applyNarrowing(facts, true)
	c.checkBlock(s.Then)
	c.scope, c.narrowOrig = savedScope, savedNarrow

	for _, ei := range s.ElseIfs {
		c.checkExpr(ei.Cond)
		eiFacts := c.analyzeCond(ei.Cond)
		c.applyNarrowing(eiFacts, true)
		c.checkBlock(ei.Body)
		c.scope, c.narrowOrig = savedScope, savedNarrow
	}

	if s.Else != nil {
		if len(s.ElseIfs) == 0 {
			c.applyNarrowing(facts, false)
		}
		c.checkBlock(s.Else)
		c.scope, c.narrowOrig = savedScope, savedNarrow
	}
}

func (c *Checker) checkNumericFor(s *syntax.NumericForStmt) {
	c.unify.ConstrainBelow(c.checkExpr(s.Start), ty.Number, s.Start.Span())
	c.unify.ConstrainBelow(c.checkExpr(s.Limit), ty.Number, s.Limit.Span())
	if s.Step != nil {
		c.unify.ConstrainBelow(c.checkExpr(s.Step), ty.Number, s.Step.Span())
	}
	saved := c.scope
	cell := c.arena.NewOf(ty.Number, s.Var.Span())
	c.define(s.Var.Name, cell)
	c.env.nodeTypes[s.Var] = cell
	c.checkBlock(s.Body)
	c.scope = saved
}

func (c *Checker) checkGenericFor(s *syntax.GenericForStmt) {
	varTypes := c.iteratorTypes(s)
	saved := c.scope
	for i, name := range s.Names {
		var cell ty.Ref
		if i < len(varTypes) {
			cell = varTypes[i]
		} else {
			cell = c.arena.NewOf(ty.Dynamic, name.Span())
		}
		c.define(name.Name, cell)
		c.env.nodeTypes[name] = cell
	}
	c.checkBlock(s.Body)
	c.scope = saved
}

// iteratorTypes recognizes the pairs/ipairs idioms and derives loop variable
// types from the iterated table's indexer; any other iterator expression is
// checked but its variables degrade to dynamic.
func (c *Checker) iteratorTypes(s *syntax.GenericForStmt) []ty.Ref {
	if len(s.Exprs) == 1 {
		if call, ok := s.Exprs[0].(*syntax.CallExpr); ok {
			if fn, ok := call.Fn.(*syntax.NameExpr); ok && len(call.Args) == 1 {
				if _, local := c.scope.Get(fn.Name); !local && (fn.Name == "pairs" || fn.Name == "ipairs") {
					arg := c.checkExpr(call.Args[0])
					c.env.nodeTypes[call] = arg
					return c.iteratedEntryTypes(fn.Name, arg, call.Span())
				}
			}
		}
	}
	for _, e := range s.Exprs {
		c.checkExpr(e)
	}
	return nil
}

func (c *Checker) iteratedEntryTypes(iter string, arg ty.Ref, at syntax.Span) []ty.Ref {
	t := c.arena.Resolve(arg)
	tbl, ok := t.(*ty.Table)
	if !ok {
		if t != nil && !c.arena.Subtype(t, ty.NewTable(true)) {
			c.report.Addf(diag.Error, diag.TypeConflict, at,
				"cannot iterate %s", c.arena.Render(t))
		}
		dyn := c.arena.NewOf(ty.Dynamic, at)
		return []ty.Ref{dyn, dyn}
	}
	if tbl.Indexer != nil {
		if iter == "ipairs" {
			return []ty.Ref{c.arena.NewOf(ty.Number, at), tbl.Indexer.Value}
		}
		return []ty.Ref{tbl.Indexer.Key, tbl.Indexer.Value}
	}
	// a record table iterates with string keys over the union of its fields
	var fieldTypes []ty.Type
	for _, f := range tbl.Fields {
		fieldTypes = append(fieldTypes, c.arena.ResolveOr(f.Value, ty.Dynamic))
	}
	key := ty.Type(ty.String)
	if iter == "ipairs" {
		key = ty.Number
	}
	value := ty.Type(ty.Dynamic)
	if len(fieldTypes) > 0 {
		value = ty.NewUnion(fieldTypes...)
	}
	return []ty.Ref{c.arena.NewOf(key, at), c.arena.NewOf(value, at)}
}

func (c *Checker) checkFunctionStmt(s *syntax.FunctionStmt) {
	fnRef := c.checkFunctionExpr(s.Fn, s.IsMethod)
	c.assignTo(s.Target, fnRef, s.Span())
}

func (c *Checker) checkLocalFunction(s *syntax.LocalFunctionStmt) {
	// the name is bound before the body so the function can recurse
	cell := c.arena.New(s.Name.Span())
	c.define(s.Name.Name, cell)
	c.env.nodeTypes[s.Name] = cell
	fnRef := c.checkFunctionExpr(s.Fn, false)
	c.unify.AssertSub(fnRef, cell, s.Span())
}

func (c *Checker) checkReturn(s *syntax.ReturnStmt) {
	values := c.checkExprList(s.Values, len(s.Values))
	if c.fn == nil {
		// chunk-level return establishes the module's exported interface
		if len(values) > 0 {
			c.export = values[0]
		}
		return
	}
	c.fn.returned = true
	sig := c.fn.sig
	for i, v := range values {
		if i >= len(sig.Results) {
			sig.Results = append(sig.Results, c.arena.New(s.Span()))
		}
		c.unify.Assign(v, sig.Results[i], s.Span())
	}
	for i := len(values); i < len(sig.Results); i++ {
		c.unify.Flow(sig.Results[i], ty.Nil, s.Span())
	}
}

func (c *Checker) define(name string, cell ty.Ref) {
	c.scope = c.scope.Set(name, cell)
	if c.narrowOrig != nil {
		delete(c.narrowOrig, name)
	}
}
