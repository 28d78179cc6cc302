package ty

// refPair keys the co-inductive guard: a (sub, super) root pair currently
// being compared. Re-encountering a pair inside its own comparison means the
// structures cycle in lockstep, which is accepted.
type refPair struct {
	sub, super Ref
}

// Subtype reports whether s may flow where t is expected. The relation is
// reflexive and transitive over the finite cell graph; cycles terminate
// through the in-progress pair set.
func (a *Arena) Subtype(s, t Type) bool {
	return a.subtype(s, t, make(map[refPair]bool))
}

func (a *Arena) subtype(s, t Type, seen map[refPair]bool) bool {
	if s == nil || t == nil {
		// open cell on either side constrains nothing yet
		return true
	}
	switch s.(type) {
	case DynamicType, ErrorType:
		return true
	}
	switch t.(type) {
	case DynamicType, ErrorType:
		return true
	}

	// a union on the left must flow entirely; on the right one alternative
	// suffices
	if su, ok := s.(Union); ok {
		for _, m := range su.Members {
			if !a.subtype(m, t, seen) {
				return false
			}
		}
		return true
	}
	if tu, ok := t.(Union); ok {
		for _, m := range tu.Members {
			if a.subtype(s, m, seen) {
				return true
			}
		}
		return false
	}

	switch tt := t.(type) {
	case NilType:
		_, ok := s.(NilType)
		return ok
	case BooleanType:
		switch s.(type) {
		case BooleanType, BoolLit:
			return true
		}
		return false
	case NumberType:
		switch s.(type) {
		case NumberType, NumberLit:
			return true
		}
		return false
	case StringType:
		switch s.(type) {
		case StringType, StringLit:
			return true
		}
		return false
	case NumberLit:
		sl, ok := s.(NumberLit)
		return ok && sl.Value == tt.Value
	case StringLit:
		sl, ok := s.(StringLit)
		return ok && sl.Value == tt.Value
	case BoolLit:
		sl, ok := s.(BoolLit)
		return ok && sl.Value == tt.Value
	case *Table:
		st, ok := s.(*Table)
		return ok && a.subTable(st, tt, seen)
	case *Function:
		sf, ok := s.(*Function)
		return ok && a.subFunction(sf, tt, seen)
	}
	return false
}

// subRef compares two cells structurally, guarding on the root pair so that
// mutually recursive tables compare co-inductively instead of diverging.
func (a *Arena) subRef(s, t Ref, seen map[refPair]bool) bool {
	if s == NoRef || t == NoRef {
		return true
	}
	rs, rt := a.Find(s), a.Find(t)
	if rs == rt {
		return true
	}
	pair := refPair{rs, rt}
	if seen[pair] {
		return true
	}
	seen[pair] = true
	defer delete(seen, pair)
	return a.subtype(a.Resolve(rs), a.Resolve(rt), seen)
}

// subTable implements width subtyping: s must supply every field t names
// with a compatible value; extra fields of s are fine. A missing field is
// tolerated only while s is still open, since an open table may yet grow it.
func (a *Arena) subTable(s, t *Table, seen map[refPair]bool) bool {
	for _, f := range t.Fields {
		sv, ok := s.Field(f.Name)
		if !ok {
			if s.Open {
				continue
			}
			return false
		}
		if !a.subRef(sv, f.Value, seen) {
			return false
		}
	}
	if t.Indexer != nil {
		if s.Indexer == nil {
			return s.Open
		}
		// keys flow from the use site into s, values out of s
		if !a.subRef(t.Indexer.Key, s.Indexer.Key, seen) {
			return false
		}
		if !a.subRef(s.Indexer.Value, t.Indexer.Value, seen) {
			return false
		}
	}
	return true
}

// subFunction checks params contravariantly and results covariantly.
// Positional slots past either list spill into the variadic tail; a missing
// slot on the providing side behaves as nil, matching call semantics.
func (a *Arena) subFunction(s, t *Function, seen map[refPair]bool) bool {
	// the bare `function` type, with no declared params or results, accepts
	// any function
	if len(t.Params) == 0 && t.Variadic == NoRef && len(t.Results) == 0 && t.ResultVariadic == NoRef {
		return true
	}

	// params: t's caller supplies arguments typed by t, which s must accept
	np := len(t.Params)
	if len(s.Params) > np {
		np = len(s.Params)
	}
	for i := 0; i < np; i++ {
		arg := a.paramAt(t, i)
		want := a.paramAt(s, i)
		if want == nil {
			// s takes fewer params; extra arguments are dropped
			continue
		}
		if !a.subtype(orNil(arg), want, seen) {
			return false
		}
	}
	if t.Variadic != NoRef && s.Variadic != NoRef {
		if !a.subRef(t.Variadic, s.Variadic, seen) {
			return false
		}
	}

	// results: s produces, t's caller consumes
	nr := len(t.Results)
	if len(s.Results) > nr {
		nr = len(s.Results)
	}
	for i := 0; i < nr; i++ {
		got := a.resultAt(s, i)
		want := a.resultAt(t, i)
		if want == nil {
			continue
		}
		if !a.subtype(orNil(got), want, seen) {
			return false
		}
	}
	if s.ResultVariadic != NoRef && t.ResultVariadic != NoRef {
		if !a.subRef(s.ResultVariadic, t.ResultVariadic, seen) {
			return false
		}
	}
	return true
}

// paramAt resolves f's i'th parameter type, spilling into the variadic tail,
// or nil when the function has no slot there at all.
func (a *Arena) paramAt(f *Function, i int) Type {
	if i < len(f.Params) {
		return a.Resolve(f.Params[i])
	}
	if f.Variadic != NoRef {
		return a.Resolve(f.Variadic)
	}
	return nil
}

func (a *Arena) resultAt(f *Function, i int) Type {
	if i < len(f.Results) {
		return a.Resolve(f.Results[i])
	}
	if f.ResultVariadic != NoRef {
		return a.Resolve(f.ResultVariadic)
	}
	return nil
}

func orNil(t Type) Type {
	if t == nil {
		return Nil
	}
	return t
}
