// Package ty implements Luna's type representation and unification engine:
// the algebraic model of Lua value types, the arena of mutable type cells
// that inference resolves into, and the assertion operations the constraint
// traversal drives.
package ty

// Ref is a stable index into an Arena, identifying one type cell. Structural
// recursion (a table containing itself) is represented by refs: the identity
// of a cycle is the cell index, never the shape of the type value.
type Ref int32

// NoRef marks an absent cell reference (no metatable, no variadic tail).
const NoRef Ref = -1

// Type is an immutable-once-constructed type value. Composite types point at
// their components through arena refs.
type Type interface {
	isType()
}

// DynamicType is the `any` escape hatch: compatible with everything in both
// directions.
type DynamicType struct{}

// NilType is the type of nil.
type NilType struct{}

// BooleanType is the general boolean type.
type BooleanType struct{}

// NumberType is the general number type.
type NumberType struct{}

// StringType is the general string type.
type StringType struct{}

// ErrorType results from a recovered failure. It unifies successfully with
// anything so one error does not cascade through the rest of the analysis.
type ErrorType struct{}

var (
	Dynamic = DynamicType{}
	Nil     = NilType{}
	Boolean = BooleanType{}
	Number  = NumberType{}
	String  = StringType{}
	Error   = ErrorType{}
)

// NumberLit is an exact number type, a subtype of Number.
type NumberLit struct {
	Value float64
}

// StringLit is an exact string type, a subtype of String.
type StringLit struct {
	Value string
}

// BoolLit is an exact boolean type, a subtype of Boolean.
type BoolLit struct {
	Value bool
}

// Field is one named table field.
type Field struct {
	Name  string
	Value Ref
}

// Indexer types a table's non-field entries: t[key] has type Value when key
// has type Key.
type Indexer struct {
	Key   Ref
	Value Ref
}

// Table is a structural record type. Open tables may carry additional
// unknown fields beyond those listed; closed tables may not.
type Table struct {
	Fields  []Field
	Indexer *Indexer
	Meta    Ref // metatable, NoRef when absent
	Open    bool
}

// NewTable returns an empty table type with no metatable.
func NewTable(open bool) *Table {
	return &Table{Meta: NoRef, Open: open}
}

// Field returns the ref of the named field.
func (t *Table) Field(name string) (Ref, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return NoRef, false
}

// SetField adds or replaces a named field.
func (t *Table) SetField(name string, value Ref) {
	for i, f := range t.Fields {
		if f.Name == name {
			t.Fields[i].Value = value
			return
		}
	}
	t.Fields = append(t.Fields, Field{Name: name, Value: value})
}

// Function is a function type: positional params, an optional variadic param
// tail, and a multi-value result tuple with an optional variadic tail.
type Function struct {
	Params         []Ref
	Variadic       Ref
	Results        []Ref
	ResultVariadic Ref
}

// NewFunction returns a function type with no params or results.
func NewFunction() *Function {
	return &Function{Variadic: NoRef, ResultVariadic: NoRef}
}

// Union is a set of alternative types. Construct only through NewUnion so
// the members stay normalized.
type Union struct {
	Members []Type
}

func (DynamicType) isType() {}
func (NilType) isType()     {}
func (BooleanType) isType() {}
func (NumberType) isType()  {}
func (StringType) isType()  {}
func (ErrorType) isType()   {}
func (NumberLit) isType()   {}
func (StringLit) isType()   {}
func (BoolLit) isType()     {}
func (*Table) isType()      {}
func (*Function) isType()   {}
func (Union) isType()       {}

// generalOf returns the general type a literal belongs to, or nil when t is
// not a literal type.
func generalOf(t Type) Type {
	switch t.(type) {
	case NumberLit:
		return Number
	case StringLit:
		return String
	case BoolLit:
		return Boolean
	}
	return nil
}

// IsStructural reports whether t is a table or function type (or a union
// containing one). Structural lower bounds fix a binding's shape: later
// assignments check against them instead of widening.
func IsStructural(t Type) bool {
	switch tt := t.(type) {
	case *Table, *Function:
		return true
	case Union:
		for _, m := range tt.Members {
			if IsStructural(m) {
				return true
			}
		}
	}
	return false
}
