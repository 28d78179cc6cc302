// Package check implements the constraint traversal: a single pass over a
// parsed chunk that allocates type cells for every binding and expression,
// applies flow constraints through the unifier, and produces a per-file
// environment with resolved types, the module's exported interface, and the
// diagnostics found along the way.
package check

import (
	"context"

	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/ty"
)

// Env is the result of checking one file. It is immutable once returned and
// safe to read from any goroutine.
type Env struct {
	File   string
	Arena  *ty.Arena
	Report *diag.Report

	// Export is the module's interface: the type of the chunk's top-level
	// return value, or nil when the chunk returns nothing.
	Export ty.Type

	// Requires lists the module names this file pulled in, in first-use
	// order, for dependency tracking.
	Requires []string

	nodeTypes map[syntax.Node]ty.Ref
}

// TypeOf returns the cell inferred for the given AST node.
func (e *Env) TypeOf(n syntax.Node) (ty.Ref, bool) {
	r, ok := e.nodeTypes[n]
	return r, ok
}

// Fingerprint canonically describes the exported interface. Files whose
// fingerprints match present the same interface to their dependents.
func (e *Env) Fingerprint() string {
	if e.Export == nil {
		return ""
	}
	return e.Arena.Fingerprint(e.Export)
}

// NewFatalEnv wraps an unrecoverable parse failure as an environment holding
// only the fatal diagnostic, so the file still has queryable diagnostics even
// though no types were inferred for it.
func NewFatalEnv(file string, ferr *syntax.FatalError) *Env {
	report := diag.NewReport()
	report.Addf(diag.Fatal, diag.SyntaxFatal, ferr.Err.Span, "%s", ferr.Err.Msg)
	return &Env{
		File:      file,
		Arena:     ty.NewArena(),
		Report:    report,
		nodeTypes: map[syntax.Node]ty.Ref{},
	}
}

// ModuleIface is an imported module's interface, owned by the arena it was
// checked in. Callers copy it into their own arena via ty.ImportType.
type ModuleIface struct {
	Arena  *ty.Arena
	Export ty.Type
}

// Importer resolves a require()'d module name to its checked interface.
// Returning a nil iface with a nil error means the module could not be
// found; the checker degrades the result to dynamic.
type Importer interface {
	Import(ctx context.Context, name string) (*ModuleIface, error)
}

// ImporterFunc adapts a function to the Importer interface.
type ImporterFunc func(ctx context.Context, name string) (*ModuleIface, error)

func (f ImporterFunc) Import(ctx context.Context, name string) (*ModuleIface, error) {
	return f(ctx, name)
}
