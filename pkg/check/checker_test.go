package check

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/ty"
)

func checkSrc(t *testing.T, src string, opts Options) (*Env, *syntax.Chunk) {
	t.Helper()
	chunk, err := syntax.Parse("test.lua", []byte(src))
	require.NoError(t, err)
	env, err := Check(context.Background(), chunk, opts)
	require.NoError(t, err)
	return env, chunk
}

func localCell(t *testing.T, env *Env, chunk *syntax.Chunk, name string) ty.Ref {
	t.Helper()
	var found ty.Ref = ty.NoRef
	syntax.Walk(chunk, func(n syntax.Node) bool {
		if ne, ok := n.(*syntax.NameExpr); ok && ne.Name == name {
			if r, ok := env.TypeOf(ne); ok && found == ty.NoRef {
				found = r
			}
		}
		return true
	})
	require.NotEqual(t, ty.NoRef, found, "no cell recorded for %q", name)
	return found
}

func onlyKinds(t *testing.T, env *Env, kinds ...diag.Kind) {
	t.Helper()
	for _, d := range env.Report.Diagnostics() {
		assert.Contains(t, kinds, d.Kind, "unexpected diagnostic: %s", d)
	}
}

func TestCheckWideningAssignment(t *testing.T) {
	env, chunk := checkSrc(t, `
local x = 0
x = "s"
`, Options{})
	require.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())

	x := localCell(t, env, chunk, "x")
	assert.Equal(t, `0|"s"`, env.Arena.RenderRef(x))
}

func TestCheckAnnotationFixesType(t *testing.T) {
	env, _ := checkSrc(t, `
local n = 1 --: number
n = 2
n = "oops"
`, Options{})
	require.Equal(t, 1, env.Report.Len())
	d := env.Report.Diagnostics()[0]
	assert.Equal(t, diag.TypeConflict, d.Kind)
}

func TestCheckStructuralConflictReportedOnce(t *testing.T) {
	env, _ := checkSrc(t, `
local x = {}
x.inner = x
x = {inner = 1}
`, Options{})

	require.Equal(t, 1, env.Report.Len())
	d := env.Report.Diagnostics()[0]
	assert.Equal(t, diag.TypeConflict, d.Kind)
	require.Len(t, d.Origins, 2)
	assert.NotEqual(t, d.Origins[0].Span, d.Origins[1].Span)
}

func TestCheckSelfReferentialTable(t *testing.T) {
	env, chunk := checkSrc(t, `
local u = {}
u.self = u
local v = u.self.self.self
`, Options{})
	require.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())

	u := localCell(t, env, chunk, "u")
	v := localCell(t, env, chunk, "v")
	assert.IsType(t, &ty.Table{}, env.Arena.Resolve(u))
	assert.IsType(t, &ty.Table{}, env.Arena.Resolve(v))
}

func TestCheckNarrowingByTypeTag(t *testing.T) {
	env, _ := checkSrc(t, `
local s = 1 --: number|string
if type(s) == "string" then
  local upper = s .. "!"
else
  local twice = s * 2
end
`, Options{})
	assert.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())
}

func TestCheckNarrowingDoesNotPersist(t *testing.T) {
	env, _ := checkSrc(t, `
local s = 1 --: number|string
if type(s) == "string" then
  local inside = s .. "!"
end
local outside = s * 2
`, Options{})
	// after the branch s is number|string again, so s * 2 conflicts
	require.Equal(t, 1, env.Report.Len())
	assert.Equal(t, diag.TypeConflict, env.Report.Diagnostics()[0].Kind)
}

func TestCheckNilNarrowing(t *testing.T) {
	env, _ := checkSrc(t, `
local v = "x" --: string?
if v ~= nil then
  local n = #v
end
if v then
  local m = v .. "!"
end
`, Options{})
	assert.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())
}

func TestCheckRecoveredSyntaxStillChecks(t *testing.T) {
	env, chunk := checkSrc(t, `
a,b;
local ok = true
`, Options{})

	// the parse error surfaces exactly once, as a warning so recovery does
	// not fail the run, and the rest of the file is typed normally
	assert.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())
	var recovered int
	for _, d := range env.Report.Diagnostics() {
		if d.Kind == diag.SyntaxRecovered {
			recovered++
			assert.Equal(t, diag.Warning, d.Severity)
		}
	}
	assert.Equal(t, 1, recovered)
	ok := localCell(t, env, chunk, "ok")
	assert.Equal(t, ty.BoolLit{Value: true}, env.Arena.Resolve(ok))
}

func TestCheckFunctionInference(t *testing.T) {
	env, chunk := checkSrc(t, `
local function add(a, b)
  return a + b
end
local r = add(1, 2)
`, Options{})
	require.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())

	r := localCell(t, env, chunk, "r")
	assert.Equal(t, "number", env.Arena.RenderRef(r))
}

func TestCheckCallArgumentConflict(t *testing.T) {
	env, _ := checkSrc(t, `
local n = string.len(5)
`, Options{})
	require.Equal(t, 1, env.Report.Len())
	assert.Equal(t, diag.TypeConflict, env.Report.Diagnostics()[0].Kind)
}

func TestCheckMethodCall(t *testing.T) {
	env, chunk := checkSrc(t, `
local obj = {greeting = "hi"}
function obj:greet(name)
  return self.greeting .. " " .. name
end
local msg = obj:greet("you")
`, Options{})
	require.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())

	msg := localCell(t, env, chunk, "msg")
	assert.Equal(t, "string", env.Arena.RenderRef(msg))
}

func TestCheckMetatableIndex(t *testing.T) {
	env, chunk := checkSrc(t, `
local proto = {helper = 42}
local obj = {n = 1}
setmetatable(obj, {__index = proto})
local h = obj.helper
`, Options{})
	require.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())

	h := localCell(t, env, chunk, "h")
	assert.Equal(t, "42", env.Arena.RenderRef(h))
}

func TestCheckUnknownFieldOnClosedTable(t *testing.T) {
	env, _ := checkSrc(t, `
local point = {x = 1, y = 2}
local z = point.z
`, Options{})
	require.Equal(t, 1, env.Report.Len())
	d := env.Report.Diagnostics()[0]
	assert.Equal(t, diag.TypeConflict, d.Kind)
	assert.Contains(t, d.Message, `"z"`)
}

func TestCheckUnboundGlobalWarns(t *testing.T) {
	env, _ := checkSrc(t, `
local v = undefined_global
`, Options{})
	require.Equal(t, 1, env.Report.Len())
	d := env.Report.Diagnostics()[0]
	assert.Equal(t, diag.Warning, d.Severity)
	assert.Equal(t, diag.UnboundReference, d.Kind)
	assert.False(t, env.Report.HasErrors())
}

func TestCheckGotoUnsupported(t *testing.T) {
	env, _ := checkSrc(t, `
do
  goto done
end
::done::
`, Options{})
	onlyKinds(t, env, diag.UnsupportedConstruct)
	require.Equal(t, 1, env.Report.Len())
	assert.Equal(t, diag.Warning, env.Report.Diagnostics()[0].Severity)
}

func TestCheckExportFingerprint(t *testing.T) {
	src := `
local M = {}
M.version = "1.0"
M.add = function(a, b)
  return a + b
end
return M
`
	env1, _ := checkSrc(t, src, Options{})
	env2, _ := checkSrc(t, src, Options{})

	require.NotNil(t, env1.Export)
	assert.IsType(t, &ty.Table{}, env1.Export)

	// checking is deterministic: same input, same interface fingerprint
	require.NotEmpty(t, env1.Fingerprint())
	assert.Equal(t, env1.Fingerprint(), env2.Fingerprint())

	// a comment-level change that keeps the interface keeps the fingerprint
	env3, _ := checkSrc(t, `
local M = {}
M.add = function(x, y)
  return x + y
end
M.version = "1.0"
return M
`, Options{})
	assert.Equal(t, env1.Fingerprint(), env3.Fingerprint())
}

func TestCheckRequire(t *testing.T) {
	depSrc := `
local M = {}
M.answer = 42
return M
`
	depChunk, err := syntax.Parse("dep.lua", []byte(depSrc))
	require.NoError(t, err)
	depEnv, err := Check(context.Background(), depChunk, Options{})
	require.NoError(t, err)

	importer := ImporterFunc(func(ctx context.Context, name string) (*ModuleIface, error) {
		if name != "dep" {
			return nil, errors.Errorf("module %q not found", name)
		}
		return &ModuleIface{Arena: depEnv.Arena, Export: depEnv.Export}, nil
	})

	env, chunk := checkSrc(t, `
local dep = require "dep"
local a = dep.answer
`, Options{Importer: importer})
	require.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())
	assert.Equal(t, []string{"dep"}, env.Requires)

	a := localCell(t, env, chunk, "a")
	assert.Equal(t, "42", env.Arena.RenderRef(a))
}

func TestCheckRequireMissingModule(t *testing.T) {
	importer := ImporterFunc(func(ctx context.Context, name string) (*ModuleIface, error) {
		return nil, errors.Errorf("module %q not found", name)
	})
	env, _ := checkSrc(t, `local x = require "ghost"`, Options{Importer: importer})
	require.Equal(t, 1, env.Report.Len())
	assert.Equal(t, diag.UnboundReference, env.Report.Diagnostics()[0].Kind)
	assert.Equal(t, []string{"ghost"}, env.Requires)
}

func TestCheckGenericFor(t *testing.T) {
	env, _ := checkSrc(t, `
local list = {10, 20, 30}
for i, v in ipairs(list) do
  local double = v * 2
end
for i = 1, 10 do
  local sq = i * i
end
`, Options{})
	assert.False(t, env.Report.HasErrors(), "diagnostics: %v", env.Report.Diagnostics())
}

func TestCheckCancellation(t *testing.T) {
	chunk, err := syntax.Parse("test.lua", []byte(`local a = 1`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env, err := Check(ctx, chunk, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, env)
}

func TestCheckIdempotent(t *testing.T) {
	src := `
local x = {}
x.inner = x
x = {inner = 1}
local s = 1 --: number|string
local bad = s .. {}
`
	chunk, err := syntax.Parse("test.lua", []byte(src))
	require.NoError(t, err)

	env1, err := Check(context.Background(), chunk, Options{})
	require.NoError(t, err)
	env2, err := Check(context.Background(), chunk, Options{})
	require.NoError(t, err)

	require.Equal(t, env1.Report.Len(), env2.Report.Len())
	for i, d := range env1.Report.Diagnostics() {
		assert.Equal(t, d.String(), env2.Report.Diagnostics()[i].String())
	}
}

func TestParseAnnot(t *testing.T) {
	cases := []struct {
		in   string
		want ty.Type
	}{
		{"number", ty.Number},
		{"string?", ty.NewUnion(ty.String, ty.Nil)},
		{"number|string", ty.NewUnion(ty.Number, ty.String)},
		{"any", ty.Dynamic},
		{`"tag"`, ty.StringLit{Value: "tag"}},
		{"42", ty.NumberLit{Value: 42}},
		{"true", ty.BoolLit{Value: true}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseAnnot(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := parseAnnot("gibberish")
	require.Error(t, err)
}
