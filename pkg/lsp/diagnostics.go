package lsp

import (
	"github.com/lunatype/luna/pkg/diag"
)

// toDiagnostics converts the checker's findings for one file into wire
// diagnostics. Conflict origins become related information so the client can
// point at both establishing sites.
func toDiagnostics(uri DocumentURI, diags []*diag.Diagnostic) []Diagnostic {
	out := []Diagnostic{}
	for _, d := range diags {
		wire := Diagnostic{
			Range:    toRange(d.Span),
			Severity: toSeverity(d.Severity),
			Source:   "luna",
			Message:  d.Message,
		}
		for _, o := range d.Origins {
			wire.RelatedInformation = append(wire.RelatedInformation, DiagnosticRelatedInformation{
				Location: Location{URI: uri, Range: toRange(o.Span)},
				Message:  o.Message,
			})
		}
		out = append(out, wire)
	}
	return out
}

func toSeverity(sev diag.Severity) DiagnosticSeverity {
	switch sev {
	case diag.Note:
		return SeverityInformation
	case diag.Warning:
		return SeverityWarning
	default:
		return SeverityError
	}
}
