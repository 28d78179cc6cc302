package syntax

import "fmt"

// Position is a 1-based line/column location in a source file. Offset is the
// byte offset from the start of the file.
type Position struct {
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p comes strictly before q in the same file.
func (p Position) Before(q Position) bool {
	return p.Offset < q.Offset
}

// Span is a half-open source range [Start, End) in File.
type Span struct {
	File  string
	Start Position
	End   Position
}

func (s Span) String() string {
	return fmt.Sprintf("%s:%s", s.File, s.Start)
}

// IsValid reports whether the span points at actual source.
func (s Span) IsValid() bool {
	return s.Start.Line > 0
}

// Contains reports whether pos falls inside the span.
func (s Span) Contains(pos Position) bool {
	return s.Start.Offset <= pos.Offset && pos.Offset < s.End.Offset
}

// Width returns the byte width of the span.
func (s Span) Width() int {
	return s.End.Offset - s.Start.Offset
}

// Join returns the smallest span covering both s and t.
func (s Span) Join(t Span) Span {
	if !s.IsValid() {
		return t
	}
	if !t.IsValid() {
		return s
	}
	out := s
	if t.Start.Before(s.Start) {
		out.Start = t.Start
	}
	if s.End.Before(t.End) {
		out.End = t.End
	}
	return out
}
