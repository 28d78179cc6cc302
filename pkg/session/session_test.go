package session

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunatype/luna/pkg/check"
	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/workspace"
)

// testWorkspace writes the given files under a temp root with a luna.toml
// that checks mains as start files, and opens a session over it. The long
// debounce keeps timers from firing on their own; tests drive re-checks
// deterministically through Flush.
func testWorkspace(t *testing.T, config string, files map[string]string) (*Session, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "luna.toml"), []byte(config), 0o644))
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	ws, err := workspace.Open(root)
	require.NoError(t, err)
	s := New(ws, WithDebounce(time.Hour))
	t.Cleanup(s.Close)
	return s, root
}

func TestCheckAllBatch(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["main.lua"]
package_path = "?.lua"
`, map[string]string{
		"main.lua": `
local util = require "util"
local sum = util.add(1, 2)
`,
		"util.lua": `
local M = {}
M.add = function(a, b)
  return a + b
end
return M
`,
	})

	snap, err := s.CheckAll(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.HasErrors())
	assert.Len(t, snap.Paths(), 2)

	assert.Equal(t, Checked, s.FileState(filepath.Join(root, "main.lua")))
	assert.Equal(t, Checked, s.FileState(filepath.Join(root, "util.lua")))
	assert.Equal(t, uint64(2), s.Generation())
}

func TestInterfaceCutoff(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["main.lua"]
package_path = "?.lua"
`, map[string]string{
		"main.lua": `
local dep = require "dep"
local x = dep.value + 1
`,
		"dep.lua": `
local M = {}
M.value = 1
return M
`,
	})
	main := filepath.Join(root, "main.lua")
	dep := filepath.Join(root, "dep.lua")

	_, err := s.CheckAll(context.Background())
	require.NoError(t, err)
	mainGen := s.FileGeneration(main)
	require.NotZero(t, mainGen)

	// a body edit that keeps the exported interface identical re-checks the
	// dependency but leaves the dependent's result in place
	s.NotifyChanged(dep, []byte(`
local M = {}
local scratch = "unused"
M.value = 1
return M
`))
	assert.Equal(t, Stale, s.FileState(dep))
	require.NoError(t, s.Flush(context.Background()))

	assert.Equal(t, Checked, s.FileState(dep))
	assert.Equal(t, Checked, s.FileState(main))
	assert.Equal(t, mainGen, s.FileGeneration(main), "dependent must not be re-checked")
	assert.Greater(t, s.FileGeneration(dep), mainGen)
}

func TestInterfaceChangeInvalidatesDependents(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["main.lua"]
package_path = "?.lua"
`, map[string]string{
		"main.lua": `
local dep = require "dep"
local x = dep.value + 1
`,
		"dep.lua": `
local M = {}
M.value = 1
return M
`,
	})
	main := filepath.Join(root, "main.lua")
	dep := filepath.Join(root, "dep.lua")

	_, err := s.CheckAll(context.Background())
	require.NoError(t, err)
	diags, ok := s.DiagnosticsFor(main)
	require.True(t, ok)
	require.Empty(t, diags)
	mainGen := s.FileGeneration(main)

	// changing value's type changes dep's interface, so main is re-checked
	// and now conflicts on dep.value + 1
	s.NotifyChanged(dep, []byte(`
local M = {}
M.value = "s"
return M
`))
	require.NoError(t, s.Flush(context.Background()))

	assert.Greater(t, s.FileGeneration(main), mainGen)
	diags, ok = s.DiagnosticsFor(main)
	require.True(t, ok)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.TypeConflict, diags[0].Kind)
}

func TestOverlayAndClose(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["main.lua"]
`, map[string]string{
		"main.lua": `local n = 1 + 2`,
	})
	main := filepath.Join(root, "main.lua")

	_, err := s.CheckAll(context.Background())
	require.NoError(t, err)
	diags, ok := s.DiagnosticsFor(main)
	require.True(t, ok)
	require.Empty(t, diags)

	// the editor buffer wins over the on-disk contents
	s.NotifyChanged(main, []byte(`local n = "s" + 2`))
	require.NoError(t, s.Flush(context.Background()))
	diags, _ = s.DiagnosticsFor(main)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.TypeConflict, diags[0].Kind)

	// closing the buffer falls back to disk
	s.NotifyClosed(main)
	require.NoError(t, s.Flush(context.Background()))
	diags, _ = s.DiagnosticsFor(main)
	assert.Empty(t, diags)
}

func TestRequireCycleCheckedAsGroup(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["a.lua"]
package_path = "?.lua"
`, map[string]string{
		"a.lua": `
local b = require "b"
return {value = 1}
`,
		"b.lua": `
local a = require "a"
local w = a.missing
return {value = 2}
`,
	})
	a := filepath.Join(root, "a.lua")
	b := filepath.Join(root, "b.lua")

	// the back edge degrades to dynamic on the first round; once a commits,
	// its interface change re-checks b against the real exports
	snap, err := s.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Checked, s.FileState(a))
	assert.Equal(t, Checked, s.FileState(b))
	assert.Greater(t, s.FileGeneration(b), s.FileGeneration(a),
		"b must be re-checked after a commits")

	for _, path := range snap.Paths() {
		env, _ := snap.Env(path)
		for _, d := range env.Report.Diagnostics() {
			assert.NotContains(t, d.Message, "circular")
		}
	}

	diags, ok := s.DiagnosticsFor(a)
	require.True(t, ok)
	assert.Empty(t, diags)

	// the second round sees a's real interface, so the bad field read in b
	// is caught
	diags, ok = s.DiagnosticsFor(b)
	require.True(t, ok)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.TypeConflict, diags[0].Kind)
	assert.Contains(t, diags[0].Message, "no field")
}

func TestFatalParseStillCommits(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["broken.lua"]
`, map[string]string{
		"broken.lua": `local s = "unterminated`,
	})
	broken := filepath.Join(root, "broken.lua")

	snap, err := s.CheckAll(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.HasErrors())
	assert.Equal(t, Checked, s.FileState(broken))

	diags, ok := s.DiagnosticsFor(broken)
	require.True(t, ok)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.SyntaxFatal, diags[0].Kind)
	assert.Equal(t, diag.Fatal, diags[0].Severity)

	// no tree means no hover answers, but diagnostics stay queryable
	_, ok = s.TypeAt(broken, syntax.Position{Line: 1, Column: 1, Offset: 0})
	assert.False(t, ok)
}

func TestQueriesBeforeAnyCheck(t *testing.T) {
	s, root := testWorkspace(t, ``, map[string]string{
		"main.lua": `local x = 1`,
	})
	main := filepath.Join(root, "main.lua")

	_, ok := s.DiagnosticsFor(main)
	assert.False(t, ok)
	_, ok = s.TypeAt(main, syntax.Position{Line: 1, Column: 1, Offset: 0})
	assert.False(t, ok)
	assert.Nil(t, s.CompletionsAt(main, syntax.Position{Line: 1, Column: 1, Offset: 0}))
	assert.Equal(t, Unchecked, s.FileState(main))
	assert.Equal(t, uint64(0), s.Generation())
}

func TestTypeAt(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["main.lua"]
`, map[string]string{
		"main.lua": `local greeting = "hello"`,
	})
	main := filepath.Join(root, "main.lua")

	_, err := s.CheckAll(context.Background())
	require.NoError(t, err)

	info, ok := s.TypeAt(main, syntax.Position{Line: 1, Column: 8, Offset: 7})
	require.True(t, ok)
	assert.Equal(t, `"hello"`, info.Type)
}

func TestCompletions(t *testing.T) {
	src := `local point = {x = 1, y = 2}
local q = point.x
`
	s, root := testWorkspace(t, `
start = ["main.lua"]
`, map[string]string{"main.lua": src})
	main := filepath.Join(root, "main.lua")

	_, err := s.CheckAll(context.Background())
	require.NoError(t, err)

	// inside `point.x`: offer point's fields
	dotPos := syntax.Position{Line: 2, Column: 17, Offset: 45}
	items := s.CompletionsAt(main, dotPos)
	require.Len(t, items, 2)
	assert.Equal(t, "x", items[0].Label)
	assert.Equal(t, "y", items[1].Label)

	// at the start of line 2: locals declared above plus builtins
	scopePos := syntax.Position{Line: 2, Column: 1, Offset: 29}
	items = s.CompletionsAt(main, scopePos)
	labels := make(map[string]bool, len(items))
	for _, it := range items {
		labels[it.Label] = true
	}
	assert.True(t, labels["point"])
	assert.True(t, labels["print"])
}

func TestEditKeepsPriorGenerationVisible(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["main.lua"]
`, map[string]string{
		"main.lua": `local greeting = "hello"`,
	})
	main := filepath.Join(root, "main.lua")

	_, err := s.CheckAll(context.Background())
	require.NoError(t, err)
	gen := s.Generation()

	// the edit is pending behind the debounce; until its run commits,
	// queries keep answering from the committed generation
	s.NotifyChanged(main, []byte(`local greeting = 42`))
	assert.Equal(t, Stale, s.FileState(main))
	assert.Equal(t, gen, s.Generation())
	info, ok := s.TypeAt(main, syntax.Position{Line: 1, Column: 8, Offset: 7})
	require.True(t, ok)
	assert.Equal(t, `"hello"`, info.Type)

	require.NoError(t, s.Flush(context.Background()))
	assert.Greater(t, s.Generation(), gen)
	info, ok = s.TypeAt(main, syntax.Position{Line: 1, Column: 8, Offset: 7})
	require.True(t, ok)
	assert.Equal(t, "42", info.Type)
}

func TestCommitAfterEditStaysStale(t *testing.T) {
	s, root := testWorkspace(t, `
start = ["main.lua"]
`, map[string]string{
		"main.lua": `local x = 1`,
	})
	main := filepath.Join(root, "main.lua")

	_, err := s.CheckAll(context.Background())
	require.NoError(t, err)

	// simulate a commit racing an edit: the edit marks the entry stale
	// while its check result is still being published
	s.mu.Lock()
	e := s.files[main]
	e.state = Checking
	s.mu.Unlock()
	s.NotifyChanged(main, []byte(`local x = 2`))
	require.Equal(t, Stale, s.FileState(main))

	chunk, err := syntax.Parse(main, []byte(`local x = 1`))
	require.NoError(t, err)
	env, err := check.Check(context.Background(), chunk, check.Options{})
	require.NoError(t, err)

	s.mu.Lock()
	s.commitLocked(e, env, chunk)
	s.mu.Unlock()
	assert.Equal(t, Stale, s.FileState(main),
		"a stale entry must wait for its scheduled re-check")
}

func TestDefaultWorkers(t *testing.T) {
	s, _ := testWorkspace(t, ``, map[string]string{"main.lua": `local x = 1`})
	assert.Equal(t, runtime.NumCPU(), s.workers)
}

func TestCheckAllCancelled(t *testing.T) {
	s, _ := testWorkspace(t, `
start = ["main.lua"]
`, map[string]string{
		"main.lua": `local x = 1`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CheckAll(ctx)
	require.Error(t, err)
}
