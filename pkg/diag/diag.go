// Package diag defines the structured diagnostic records emitted by the
// checker and the per-run collector they accumulate in. Diagnostics are
// produced, never mutated; formatting and display belong to the caller.
package diag

import (
	"fmt"
	"strings"

	"github.com/lunatype/luna/pkg/syntax"
)

// Severity orders diagnostics from informational to unrecoverable.
type Severity int

const (
	Note Severity = iota
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Kind classifies what went wrong.
type Kind int

const (
	// SyntaxFatal is an unrecoverable parse failure; no environment is
	// produced for the file.
	SyntaxFatal Kind = iota
	// SyntaxRecovered is a parse error the parser recovered from.
	SyntaxRecovered
	// TypeConflict is a unification failure between two established types.
	TypeConflict
	// UnboundReference is a use of a name with no visible binding.
	UnboundReference
	// UnsupportedConstruct is a recognized but unmodeled language feature,
	// downgraded to dynamic typing.
	UnsupportedConstruct
)

func (k Kind) String() string {
	switch k {
	case SyntaxFatal:
		return "syntax-fatal"
	case SyntaxRecovered:
		return "syntax"
	case TypeConflict:
		return "type-conflict"
	case UnboundReference:
		return "unbound"
	case UnsupportedConstruct:
		return "unsupported"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Origin points at the span where a conflicting fact was established.
type Origin struct {
	Span    syntax.Span
	Message string
}

// Diagnostic is one analysis finding.
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Span     syntax.Span
	Message  string
	Origins  []Origin
}

func (d *Diagnostic) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s: %s", d.Span, d.Severity, d.Message)
	for _, o := range d.Origins {
		fmt.Fprintf(&sb, "\n  %s: note: %s", o.Span, o.Message)
	}
	return sb.String()
}

// Report is an ordered, append-only collection of diagnostics for one
// traversal run.
type Report struct {
	diags []*Diagnostic
}

func NewReport() *Report { return &Report{} }

// Add appends d to the report.
func (r *Report) Add(d *Diagnostic) {
	r.diags = append(r.diags, d)
}

// Addf records a diagnostic built from a format string.
func (r *Report) Addf(sev Severity, kind Kind, span syntax.Span, format string, args ...any) *Diagnostic {
	d := &Diagnostic{
		Severity: sev,
		Kind:     kind,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
	}
	r.Add(d)
	return d
}

// Diagnostics returns the collected diagnostics in emission order.
func (r *Report) Diagnostics() []*Diagnostic {
	return r.diags
}

// Len returns the number of collected diagnostics.
func (r *Report) Len() int { return len(r.diags) }

// HasErrors reports whether any Error or Fatal diagnostic was recorded.
func (r *Report) HasErrors() bool {
	for _, d := range r.diags {
		if d.Severity >= Error {
			return true
		}
	}
	return false
}

// CountBySeverity tallies diagnostics at the given severity.
func (r *Report) CountBySeverity(sev Severity) int {
	n := 0
	for _, d := range r.diags {
		if d.Severity == sev {
			n++
		}
	}
	return n
}
