package check

import (
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/ty"
)

// installPrelude seeds the global scope with the builtin bindings every chunk
// can see. The standard library tables are modeled shallowly as open tables
// with the handful of members the checker understands specially; everything
// else inside them resolves dynamically.
func (c *Checker) installPrelude() {
	at := syntax.Span{File: c.file}
	dyn := func() ty.Ref { return c.arena.NewOf(ty.Dynamic, at) }

	variadicAny := func(results ...ty.Type) *ty.Function {
		f := ty.NewFunction()
		f.Variadic = dyn()
		for _, res := range results {
			f.Results = append(f.Results, c.arena.NewOf(res, at))
		}
		return f
	}
	unary := func(param ty.Type, results ...ty.Type) *ty.Function {
		f := ty.NewFunction()
		f.Params = append(f.Params, c.arena.NewOf(param, at))
		for _, res := range results {
			f.Results = append(f.Results, c.arena.NewOf(res, at))
		}
		return f
	}

	openTable := func(fields map[string]ty.Type) *ty.Table {
		t := ty.NewTable(true)
		for name, ft := range fields {
			t.SetField(name, c.arena.NewOf(ft, at))
		}
		return t
	}

	bind := func(name string, t ty.Type) {
		c.globals[name] = c.arena.NewOf(t, at)
	}

	bind("print", variadicAny())
	bind("type", unary(ty.Dynamic, ty.String))
	bind("tostring", unary(ty.Dynamic, ty.String))
	bind("tonumber", unary(ty.Dynamic, ty.NewUnion(ty.Number, ty.Nil)))
	bind("error", variadicAny())
	bind("assert", variadicAny(ty.Dynamic))
	bind("select", variadicAny(ty.Dynamic))
	bind("rawget", ty.Dynamic)
	bind("rawset", ty.Dynamic)
	bind("next", ty.Dynamic)
	bind("unpack", ty.Dynamic)

	// pairs, ipairs, require, and setmetatable get bespoke call handling in
	// the expression checker; the bindings here only give them a callable
	// shape for indirect uses.
	bind("pairs", unary(ty.Dynamic, ty.Dynamic, ty.Dynamic, ty.Dynamic))
	bind("ipairs", unary(ty.Dynamic, ty.Dynamic, ty.Dynamic, ty.Dynamic))
	bind("require", unary(ty.String, ty.Dynamic))
	bind("setmetatable", ty.Dynamic)
	bind("getmetatable", unary(ty.Dynamic, ty.Dynamic))
	bind("pcall", variadicAny(ty.Boolean, ty.Dynamic))
	bind("_G", ty.Dynamic)
	bind("_VERSION", ty.String)

	bind("string", openTable(map[string]ty.Type{
		"len":    unary(ty.String, ty.Number),
		"sub":    ty.Dynamic,
		"upper":  unary(ty.String, ty.String),
		"lower":  unary(ty.String, ty.String),
		"rep":    ty.Dynamic,
		"format": ty.Dynamic,
		"find":   ty.Dynamic,
		"match":  ty.Dynamic,
		"gmatch": ty.Dynamic,
		"gsub":   ty.Dynamic,
		"byte":   ty.Dynamic,
		"char":   ty.Dynamic,
	}))
	bind("math", openTable(map[string]ty.Type{
		"floor":  unary(ty.Number, ty.Number),
		"ceil":   unary(ty.Number, ty.Number),
		"abs":    unary(ty.Number, ty.Number),
		"sqrt":   unary(ty.Number, ty.Number),
		"max":    ty.Dynamic,
		"min":    ty.Dynamic,
		"random": ty.Dynamic,
		"huge":   ty.Number,
		"pi":     ty.Number,
	}))
	bind("table", openTable(map[string]ty.Type{
		"insert": ty.Dynamic,
		"remove": ty.Dynamic,
		"concat": ty.Dynamic,
		"sort":   ty.Dynamic,
	}))
	bind("io", openTable(map[string]ty.Type{
		"write": variadicAny(),
		"read":  ty.Dynamic,
		"open":  ty.Dynamic,
	}))
	bind("os", openTable(map[string]ty.Type{
		"time":  ty.Dynamic,
		"clock": unary(ty.Dynamic, ty.Number),
		"date":  ty.Dynamic,
	}))
}
