package check

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunatype/luna/pkg/ty"
)

// parseAnnot parses the text of a `--: type` annotation comment. The grammar
// is a union of atoms:
//
//	type ::= atom ("|" atom)*
//	atom ::= name | string-lit | number-lit | atom "?"
//	name ::= "any" | "nil" | "boolean" | "number" | "string"
//	       | "table" | "function" | "true" | "false"
//
// A trailing "?" is sugar for "| nil".
func parseAnnot(text string) (ty.Type, error) {
	var members []ty.Type
	for _, part := range strings.Split(text, "|") {
		t, err := parseAnnotAtom(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		members = append(members, t...)
	}
	if len(members) == 0 {
		return nil, errors.New("empty annotation")
	}
	return ty.NewUnion(members...), nil
}

func parseAnnotAtom(s string) ([]ty.Type, error) {
	if s == "" {
		return nil, errors.New("empty type in annotation")
	}
	optional := false
	if strings.HasSuffix(s, "?") {
		optional = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "?"))
	}

	var t ty.Type
	switch {
	case s == "any":
		t = ty.Dynamic
	case s == "nil":
		t = ty.Nil
	case s == "boolean":
		t = ty.Boolean
	case s == "number":
		t = ty.Number
	case s == "string":
		t = ty.String
	case s == "true":
		t = ty.BoolLit{Value: true}
	case s == "false":
		t = ty.BoolLit{Value: false}
	case s == "table":
		t = ty.NewTable(true)
	case s == "function":
		t = ty.NewFunction()
	case len(s) >= 2 && (s[0] == '"' || s[0] == '\''):
		if s[len(s)-1] != s[0] {
			return nil, errors.Errorf("unterminated string in annotation: %s", s)
		}
		t = ty.StringLit{Value: s[1 : len(s)-1]}
	default:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			t = ty.NumberLit{Value: n}
		} else {
			return nil, errors.Errorf("unknown type %q in annotation", s)
		}
	}

	if optional {
		return []ty.Type{t, ty.Nil}, nil
	}
	return []ty.Type{t}, nil
}
