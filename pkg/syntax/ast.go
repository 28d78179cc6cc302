package syntax

// Node is any element of the syntax tree. Every node carries the source span
// it was parsed from.
type Node interface {
	Span() Span
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Error is a syntax diagnostic attached to a chunk. Fatal errors mean no
// usable tree was produced.
type Error struct {
	Span Span
	Msg  string
}

func (e *Error) Error() string {
	return e.Span.String() + ": " + e.Msg
}

// Chunk is one parsed source file together with the recovered syntax errors
// encountered while parsing it. A chunk is immutable after Parse returns.
type Chunk struct {
	File   string
	Body   *Block
	Errors []*Error
}

func (c *Chunk) Span() Span { return c.Body.Span() }

// Block is a statement sequence.
type Block struct {
	Stmts []Stmt
	span  Span
}

func (b *Block) Span() Span { return b.span }

// Annot is a `--: ...` type annotation comment.
type Annot struct {
	Text string
	span Span
}

func (a *Annot) Span() Span { return a.span }

// ---- statements ----

// LocalStmt is `local a, b = x, y`. Annots is aligned with Names; entries may
// be nil when a name carries no annotation.
type LocalStmt struct {
	Names  []*NameExpr
	Annots []*Annot
	Values []Expr
	span   Span
}

// AssignStmt is `a, b.c = x, y`.
type AssignStmt struct {
	Targets []Expr
	Values  []Expr
	span    Span
}

// CallStmt is a call used as a statement.
type CallStmt struct {
	Call Expr // *CallExpr or *MethodCallExpr
	span Span
}

// DoStmt is `do ... end`.
type DoStmt struct {
	Body *Block
	span Span
}

// WhileStmt is `while cond do ... end`.
type WhileStmt struct {
	Cond Expr
	Body *Block
	span Span
}

// RepeatStmt is `repeat ... until cond`.
type RepeatStmt struct {
	Body *Block
	Cond Expr
	span Span
}

// ElseIf is one `elseif cond then ...` arm.
type ElseIf struct {
	Cond Expr
	Body *Block
}

// IfStmt is the full conditional form.
type IfStmt struct {
	Cond    Expr
	Then    *Block
	ElseIfs []ElseIf
	Else    *Block // nil when absent
	span    Span
}

// NumericForStmt is `for i = start, limit [, step] do ... end`.
type NumericForStmt struct {
	Var   *NameExpr
	Start Expr
	Limit Expr
	Step  Expr // nil when absent
	Body  *Block
	span  Span
}

// GenericForStmt is `for a, b in exprs do ... end`.
type GenericForStmt struct {
	Names []*NameExpr
	Exprs []Expr
	Body  *Block
	span  Span
}

// FunctionStmt is `function a.b.c(...)` or `function a:m(...)`.
type FunctionStmt struct {
	Target   Expr // *NameExpr or *DotExpr chain
	IsMethod bool
	Fn       *FunctionExpr
	span     Span
}

// LocalFunctionStmt is `local function f(...)`; the name is in scope inside
// the body (self recursion).
type LocalFunctionStmt struct {
	Name *NameExpr
	Fn   *FunctionExpr
	span Span
}

// ReturnStmt is `return x, y`.
type ReturnStmt struct {
	Values []Expr
	span   Span
}

// BreakStmt is `break`.
type BreakStmt struct {
	span Span
}

// GotoStmt is `goto label`. Recognized but not modeled by the checker.
type GotoStmt struct {
	Label string
	span  Span
}

// LabelStmt is `::label::`.
type LabelStmt struct {
	Name string
	span Span
}

// BadStmt replaces a statement the parser could not make sense of. The
// parser has already reported the error; the checker stays silent about it.
type BadStmt struct {
	span Span
}

func (s *LocalStmt) Span() Span         { return s.span }
func (s *AssignStmt) Span() Span        { return s.span }
func (s *CallStmt) Span() Span          { return s.span }
func (s *DoStmt) Span() Span            { return s.span }
func (s *WhileStmt) Span() Span         { return s.span }
func (s *RepeatStmt) Span() Span        { return s.span }
func (s *IfStmt) Span() Span            { return s.span }
func (s *NumericForStmt) Span() Span    { return s.span }
func (s *GenericForStmt) Span() Span    { return s.span }
func (s *FunctionStmt) Span() Span      { return s.span }
func (s *LocalFunctionStmt) Span() Span { return s.span }
func (s *ReturnStmt) Span() Span        { return s.span }
func (s *BreakStmt) Span() Span         { return s.span }
func (s *GotoStmt) Span() Span          { return s.span }
func (s *LabelStmt) Span() Span         { return s.span }
func (s *BadStmt) Span() Span           { return s.span }

func (*LocalStmt) stmtNode()         {}
func (*AssignStmt) stmtNode()        {}
func (*CallStmt) stmtNode()          {}
func (*DoStmt) stmtNode()            {}
func (*WhileStmt) stmtNode()         {}
func (*RepeatStmt) stmtNode()        {}
func (*IfStmt) stmtNode()            {}
func (*NumericForStmt) stmtNode()    {}
func (*GenericForStmt) stmtNode()    {}
func (*FunctionStmt) stmtNode()      {}
func (*LocalFunctionStmt) stmtNode() {}
func (*ReturnStmt) stmtNode()        {}
func (*BreakStmt) stmtNode()         {}
func (*GotoStmt) stmtNode()          {}
func (*LabelStmt) stmtNode()         {}
func (*BadStmt) stmtNode()           {}

// ---- expressions ----

type NilExpr struct{ span Span }
type TrueExpr struct{ span Span }
type FalseExpr struct{ span Span }

type NumberExpr struct {
	Value float64
	Raw   string
	span  Span
}

type StringExpr struct {
	Value string
	span  Span
}

// VarargExpr is `...`.
type VarargExpr struct{ span Span }

// NameExpr is a bare identifier.
type NameExpr struct {
	Name string
	span Span
}

// DotExpr is `obj.name`.
type DotExpr struct {
	Obj  Expr
	Name string
	span Span
}

// IndexExpr is `obj[key]`.
type IndexExpr struct {
	Obj  Expr
	Key  Expr
	span Span
}

// CallExpr is `fn(args)`.
type CallExpr struct {
	Fn   Expr
	Args []Expr
	span Span
}

// MethodCallExpr is `recv:name(args)`.
type MethodCallExpr struct {
	Recv Expr
	Name string
	Args []Expr
	span Span
}

// FunctionExpr is a function literal.
type FunctionExpr struct {
	Params   []*NameExpr
	IsVararg bool
	Body     *Block
	span     Span
}

// TableItem is one entry in a table constructor: exactly one of Name, Key, or
// neither (positional) qualifies the value.
type TableItem struct {
	Name  string // `name = value` when non-empty
	Key   Expr   // `[key] = value` when non-nil
	Value Expr
}

// TableExpr is a table constructor.
type TableExpr struct {
	Items []TableItem
	span  Span
}

// BinaryExpr is a binary operation; Op is the operator token kind.
type BinaryExpr struct {
	Op   TokenKind
	L, R Expr
	span Span
}

// UnaryExpr is `-x`, `not x`, or `#x`.
type UnaryExpr struct {
	Op   TokenKind
	X    Expr
	span Span
}

// ParenExpr is a parenthesized expression; it truncates multiple values to
// one, so the distinction matters to the checker.
type ParenExpr struct {
	X    Expr
	span Span
}

// BadExpr replaces an unparseable expression.
type BadExpr struct{ span Span }

func (e *NilExpr) Span() Span        { return e.span }
func (e *TrueExpr) Span() Span       { return e.span }
func (e *FalseExpr) Span() Span      { return e.span }
func (e *NumberExpr) Span() Span     { return e.span }
func (e *StringExpr) Span() Span     { return e.span }
func (e *VarargExpr) Span() Span     { return e.span }
func (e *NameExpr) Span() Span       { return e.span }
func (e *DotExpr) Span() Span        { return e.span }
func (e *IndexExpr) Span() Span      { return e.span }
func (e *CallExpr) Span() Span       { return e.span }
func (e *MethodCallExpr) Span() Span { return e.span }
func (e *FunctionExpr) Span() Span   { return e.span }
func (e *TableExpr) Span() Span      { return e.span }
func (e *BinaryExpr) Span() Span     { return e.span }
func (e *UnaryExpr) Span() Span      { return e.span }
func (e *ParenExpr) Span() Span      { return e.span }
func (e *BadExpr) Span() Span        { return e.span }

func (*NilExpr) exprNode()        {}
func (*TrueExpr) exprNode()       {}
func (*FalseExpr) exprNode()      {}
func (*NumberExpr) exprNode()     {}
func (*StringExpr) exprNode()     {}
func (*VarargExpr) exprNode()     {}
func (*NameExpr) exprNode()       {}
func (*DotExpr) exprNode()        {}
func (*IndexExpr) exprNode()      {}
func (*CallExpr) exprNode()       {}
func (*MethodCallExpr) exprNode() {}
func (*FunctionExpr) exprNode()   {}
func (*TableExpr) exprNode()      {}
func (*BinaryExpr) exprNode()     {}
func (*UnaryExpr) exprNode()      {}
func (*ParenExpr) exprNode()      {}
func (*BadExpr) exprNode()        {}
