package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/lunatype/luna/pkg/diag"
	"github.com/lunatype/luna/pkg/syntax"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	posStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	countStyle   = lipgloss.NewStyle().Bold(true)
)

func severityLabel(sev diag.Severity) string {
	switch sev {
	case diag.Note:
		return noteStyle.Render("note:")
	case diag.Warning:
		return warningStyle.Render("warning:")
	default:
		return errorStyle.Render("error:")
	}
}

func renderDiagnostic(w io.Writer, src *sourceCache, d *diag.Diagnostic) {
	fmt.Fprintf(w, "%s %s %s\n", posStyle.Render(d.Span.String()), severityLabel(d.Severity), d.Message)
	src.renderContext(w, d.Span, "    ")
	for _, o := range d.Origins {
		fmt.Fprintf(w, "  %s %s %s\n", posStyle.Render(o.Span.String()), noteStyle.Render("note:"), o.Message)
		src.renderContext(w, o.Span, "      ")
	}
}

// sourceCache serves context lines for diagnostic rendering, reading each
// file once.
type sourceCache struct {
	lines map[string][]string
}

func newSourceCache() *sourceCache {
	return &sourceCache{lines: map[string][]string{}}
}

func (c *sourceCache) line(file string, n int) (string, bool) {
	lines, ok := c.lines[file]
	if !ok {
		data, err := os.ReadFile(file)
		if err != nil {
			data = nil
		}
		lines = strings.Split(string(data), "\n")
		c.lines[file] = lines
	}
	if n < 1 || n > len(lines) {
		return "", false
	}
	return lines[n-1], true
}

// renderContext prints the offending source line with a caret under the span
// start.
func (c *sourceCache) renderContext(w io.Writer, span syntax.Span, indent string) {
	if !span.IsValid() {
		return
	}
	line, ok := c.line(span.File, span.Start.Line)
	if !ok {
		return
	}
	fmt.Fprintf(w, "%s%s\n", indent, strings.ReplaceAll(line, "\t", " "))
	width := span.Width()
	if span.Start.Line != span.End.Line || width < 1 {
		width = 1
	}
	fmt.Fprintf(w, "%s%s%s\n", indent, strings.Repeat(" ", span.Start.Column-1), noteStyle.Render(strings.Repeat("^", width)))
}

func renderSummary(files, errors, warnings int) string {
	status := countStyle.Render("ok")
	if errors > 0 {
		status = errorStyle.Render(fmt.Sprintf("%d error(s)", errors))
	}
	out := fmt.Sprintf("checked %d file(s): %s", files, status)
	if warnings > 0 {
		out += ", " + warningStyle.Render(fmt.Sprintf("%d warning(s)", warnings))
	}
	return out
}
