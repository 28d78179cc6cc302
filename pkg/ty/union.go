package ty

// NewUnion builds a normalized union of the given types: nested unions are
// flattened, duplicate members and literals subsumed by their general type
// are dropped, a singleton collapses to its member, and an empty union
// collapses to Error. Dynamic eclipses everything else.
func NewUnion(types ...Type) Type {
	var flat []Type
	var collect func(Type)
	collect = func(t Type) {
		if t == nil {
			return
		}
		if u, ok := t.(Union); ok {
			for _, m := range u.Members {
				collect(m)
			}
			return
		}
		flat = append(flat, t)
	}
	for _, t := range types {
		collect(t)
	}

	// dynamic and error absorb the whole union
	for _, t := range flat {
		switch t.(type) {
		case DynamicType:
			return Dynamic
		case ErrorType:
			return Error
		}
	}

	var members []Type
	for _, t := range flat {
		if subsumed(t, flat) || containsShallow(members, t) {
			continue
		}
		members = append(members, t)
	}

	switch len(members) {
	case 0:
		return Error
	case 1:
		return members[0]
	}
	return Union{Members: members}
}

// subsumed reports whether t is a literal whose general type is also present.
func subsumed(t Type, all []Type) bool {
	general := generalOf(t)
	if general == nil {
		return false
	}
	for _, other := range all {
		if other == general {
			return true
		}
	}
	return false
}

// containsShallow reports membership by shallow equality: value equality for
// primitives and literals, pointer identity for tables and functions.
func containsShallow(members []Type, t Type) bool {
	for _, m := range members {
		if m == t {
			return true
		}
	}
	return false
}

// Members returns the union's alternatives, or t itself as a single-element
// list when t is not a union.
func Members(t Type) []Type {
	if u, ok := t.(Union); ok {
		return u.Members
	}
	return []Type{t}
}

// HasNil reports whether nil inhabits t.
func HasNil(t Type) bool {
	for _, m := range Members(t) {
		switch m.(type) {
		case NilType, DynamicType, ErrorType:
			return true
		}
	}
	return false
}

// WithoutNil removes nil from a union, for narrowing `if x then` branches.
func WithoutNil(t Type) Type {
	members := Members(t)
	var kept []Type
	for _, m := range members {
		if _, ok := m.(NilType); ok {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == len(members) {
		return t
	}
	return NewUnion(kept...)
}

// PrimitiveName returns the Lua `type()` name of a resolved type, or "" when
// the type has no single runtime tag (unions, dynamic).
func PrimitiveName(t Type) string {
	switch t.(type) {
	case NilType:
		return "nil"
	case BooleanType, BoolLit:
		return "boolean"
	case NumberType, NumberLit:
		return "number"
	case StringType, StringLit:
		return "string"
	case *Table:
		return "table"
	case *Function:
		return "function"
	}
	return ""
}

// Select keeps only the union members whose runtime tag is name; used for
// `type(x) == "string"` narrowing. Dynamic narrows to the general type of
// that tag.
func Select(t Type, name string) Type {
	switch t.(type) {
	case DynamicType, ErrorType:
		return generalForTag(name)
	}
	var kept []Type
	for _, m := range Members(t) {
		if PrimitiveName(m) == name {
			kept = append(kept, m)
		}
	}
	return NewUnion(kept...)
}

// Reject drops the union members whose runtime tag is name; the complement
// of Select for else branches.
func Reject(t Type, name string) Type {
	switch t.(type) {
	case DynamicType, ErrorType:
		return t
	}
	var kept []Type
	for _, m := range Members(t) {
		if PrimitiveName(m) != name {
			kept = append(kept, m)
		}
	}
	return NewUnion(kept...)
}

func generalForTag(name string) Type {
	switch name {
	case "nil":
		return Nil
	case "boolean":
		return Boolean
	case "number":
		return Number
	case "string":
		return String
	case "table":
		return NewTable(true)
	case "function":
		return NewFunction()
	}
	return Dynamic
}
