package syntax

import (
	"fmt"
)

// FatalError is an unrecoverable parse failure: no chunk is produced.
type FatalError struct {
	Err *Error
}

func (e *FatalError) Error() string { return e.Err.Error() }

// maxErrors bounds recovery; beyond it the parse is considered hopeless.
const maxErrors = 50

// Parse lexes and parses one source file. Recoverable syntax errors are
// collected on the returned chunk alongside Bad nodes in the tree; a
// *FatalError is returned (with a nil chunk) only when no usable tree could
// be built.
func Parse(file string, src []byte) (*Chunk, error) {
	lx := NewLexer(file, string(src))
	p := &parser{lx: lx, file: file}
	p.next()

	body := p.block(TokEOF)
	if lx.Err() != nil {
		return nil, &FatalError{Err: lx.Err()}
	}
	if len(p.errors) > maxErrors {
		return nil, &FatalError{Err: p.errors[0]}
	}
	return &Chunk{File: file, Body: body, Errors: p.errors}, nil
}

type parser struct {
	lx   *Lexer
	file string

	tok    Token
	ahead  *Token
	errors []*Error
}

func (p *parser) next() {
	if p.ahead != nil {
		p.tok = *p.ahead
		p.ahead = nil
		return
	}
	p.tok = p.lx.Next()
}

func (p *parser) peek() Token {
	if p.ahead == nil {
		t := p.lx.Next()
		p.ahead = &t
	}
	return *p.ahead
}

func (p *parser) at(k TokenKind) bool { return p.tok.Kind == k }

func (p *parser) accept(k TokenKind) (Token, bool) {
	if p.tok.Kind == k {
		t := p.tok
		p.next()
		return t, true
	}
	return Token{}, false
}

func (p *parser) expect(k TokenKind) Token {
	if p.tok.Kind == k {
		t := p.tok
		p.next()
		return t
	}
	p.errorf(p.tok.Span, "expected %v, found %v", k, p.tok.Kind)
	return Token{Kind: k, Span: p.tok.Span}
}

func (p *parser) errorf(at Span, format string, args ...any) {
	if len(p.errors) <= maxErrors {
		p.errors = append(p.errors, &Error{Span: at, Msg: fmt.Sprintf(format, args...)})
	}
}

// sync skips tokens until a statement boundary so that one error does not
// cascade through the rest of the file.
func (p *parser) sync() {
	for {
		switch p.tok.Kind {
		case TokEOF, TokSemi, TokLocal, TokIf, TokWhile, TokRepeat, TokFor,
			TokFunction, TokReturn, TokBreak, TokDo, TokEnd, TokElse, TokElseif, TokUntil:
			if p.tok.Kind == TokSemi {
				p.next()
			}
			return
		}
		p.next()
	}
}

func (p *parser) blockEnd(terminators ...TokenKind) bool {
	for _, t := range terminators {
		if p.tok.Kind == t {
			return true
		}
	}
	return p.tok.Kind == TokEOF
}

func (p *parser) block(terminators ...TokenKind) *Block {
	start := p.tok.Span
	var stmts []Stmt
	for !p.blockEnd(terminators...) {
		if _, ok := p.accept(TokSemi); ok {
			continue
		}
		s := p.statement()
		if s != nil {
			stmts = append(stmts, s)
		}
		if _, isRet := s.(*ReturnStmt); isRet {
			// return must close the block
			break
		}
	}
	end := p.tok.Span
	sp := start.Join(end)
	if len(stmts) > 0 {
		sp = stmts[0].Span().Join(stmts[len(stmts)-1].Span())
	}
	return &Block{Stmts: stmts, span: sp}
}

func (p *parser) statement() Stmt {
	start := p.tok.Span
	switch p.tok.Kind {
	case TokLocal:
		return p.localStmt()
	case TokIf:
		return p.ifStmt()
	case TokWhile:
		return p.whileStmt()
	case TokRepeat:
		return p.repeatStmt()
	case TokFor:
		return p.forStmt()
	case TokFunction:
		return p.functionStmt()
	case TokReturn:
		return p.returnStmt()
	case TokDo:
		p.next()
		body := p.block(TokEnd)
		end := p.expect(TokEnd)
		return &DoStmt{Body: body, span: start.Join(end.Span)}
	case TokBreak:
		p.next()
		return &BreakStmt{span: start}
	case TokGoto:
		p.next()
		name := p.expect(TokName)
		return &GotoStmt{Label: name.Text, span: start.Join(name.Span)}
	case TokDblColon:
		p.next()
		name := p.expect(TokName)
		end := p.expect(TokDblColon)
		return &LabelStmt{Name: name.Text, span: start.Join(end.Span)}
	case TokAnnot:
		// stray annotation; harmless
		p.next()
		return nil
	default:
		return p.exprStmt()
	}
}

func (p *parser) localStmt() Stmt {
	start := p.tok.Span
	p.next()

	if _, ok := p.accept(TokFunction); ok {
		name := p.expect(TokName)
		fn := p.functionBody(name.Span)
		return &LocalFunctionStmt{
			Name: &NameExpr{Name: name.Text, span: name.Span},
			Fn:   fn,
			span: start.Join(fn.Span()),
		}
	}

	var names []*NameExpr
	var annots []*Annot
	for {
		name := p.expect(TokName)
		names = append(names, &NameExpr{Name: name.Text, span: name.Span})
		annots = append(annots, p.annot())
		if _, ok := p.accept(TokComma); !ok {
			break
		}
	}

	var values []Expr
	sp := start.Join(names[len(names)-1].Span())
	if _, ok := p.accept(TokAssign); ok {
		values = p.exprList()
		if len(values) > 0 {
			sp = sp.Join(values[len(values)-1].Span())
		}
		// a trailing annotation binds to the last name
		if a := p.annot(); a != nil && annots[len(annots)-1] == nil {
			annots[len(annots)-1] = a
		}
	}
	return &LocalStmt{Names: names, Annots: annots, Values: values, span: sp}
}

func (p *parser) annot() *Annot {
	if tok, ok := p.accept(TokAnnot); ok {
		return &Annot{Text: tok.Text, span: tok.Span}
	}
	return nil
}

func (p *parser) ifStmt() Stmt {
	start := p.tok.Span
	p.next()
	cond := p.expr()
	p.expect(TokThen)
	then := p.block(TokElseif, TokElse, TokEnd)

	var arms []ElseIf
	for p.at(TokElseif) {
		p.next()
		armCond := p.expr()
		p.expect(TokThen)
		armBody := p.block(TokElseif, TokElse, TokEnd)
		arms = append(arms, ElseIf{Cond: armCond, Body: armBody})
	}

	var elseBlock *Block
	if _, ok := p.accept(TokElse); ok {
		elseBlock = p.block(TokEnd)
	}
	end := p.expect(TokEnd)
	return &IfStmt{Cond: cond, Then: then, ElseIfs: arms, Else: elseBlock, span: start.Join(end.Span)}
}

func (p *parser) whileStmt() Stmt {
	start := p.tok.Span
	p.next()
	cond := p.expr()
	p.expect(TokDo)
	body := p.block(TokEnd)
	end := p.expect(TokEnd)
	return &WhileStmt{Cond: cond, Body: body, span: start.Join(end.Span)}
}

func (p *parser) repeatStmt() Stmt {
	start := p.tok.Span
	p.next()
	body := p.block(TokUntil)
	p.expect(TokUntil)
	cond := p.expr()
	return &RepeatStmt{Body: body, Cond: cond, span: start.Join(cond.Span())}
}

func (p *parser) forStmt() Stmt {
	start := p.tok.Span
	p.next()
	first := p.expect(TokName)
	firstName := &NameExpr{Name: first.Text, span: first.Span}

	if _, ok := p.accept(TokAssign); ok {
		from := p.expr()
		p.expect(TokComma)
		limit := p.expr()
		var step Expr
		if _, ok := p.accept(TokComma); ok {
			step = p.expr()
		}
		p.expect(TokDo)
		body := p.block(TokEnd)
		end := p.expect(TokEnd)
		return &NumericForStmt{
			Var: firstName, Start: from, Limit: limit, Step: step,
			Body: body, span: start.Join(end.Span),
		}
	}

	names := []*NameExpr{firstName}
	for {
		if _, ok := p.accept(TokComma); !ok {
			break
		}
		name := p.expect(TokName)
		names = append(names, &NameExpr{Name: name.Text, span: name.Span})
	}
	p.expect(TokIn)
	exprs := p.exprList()
	p.expect(TokDo)
	body := p.block(TokEnd)
	end := p.expect(TokEnd)
	return &GenericForStmt{Names: names, Exprs: exprs, Body: body, span: start.Join(end.Span)}
}

func (p *parser) functionStmt() Stmt {
	start := p.tok.Span
	p.next()
	name := p.expect(TokName)
	var target Expr = &NameExpr{Name: name.Text, span: name.Span}
	isMethod := false
	for {
		if _, ok := p.accept(TokDot); ok {
			field := p.expect(TokName)
			target = &DotExpr{Obj: target, Name: field.Text, span: target.Span().Join(field.Span)}
			continue
		}
		if _, ok := p.accept(TokColon); ok {
			field := p.expect(TokName)
			target = &DotExpr{Obj: target, Name: field.Text, span: target.Span().Join(field.Span)}
			isMethod = true
		}
		break
	}
	fn := p.functionBody(target.Span())
	return &FunctionStmt{Target: target, IsMethod: isMethod, Fn: fn, span: start.Join(fn.Span())}
}

func (p *parser) functionBody(start Span) *FunctionExpr {
	p.expect(TokLParen)
	var params []*NameExpr
	vararg := false
	for !p.at(TokRParen) && !p.at(TokEOF) {
		if _, ok := p.accept(TokEllipsis); ok {
			vararg = true
			break
		}
		name := p.expect(TokName)
		params = append(params, &NameExpr{Name: name.Text, span: name.Span})
		if _, ok := p.accept(TokComma); !ok {
			break
		}
	}
	p.expect(TokRParen)
	body := p.block(TokEnd)
	end := p.expect(TokEnd)
	return &FunctionExpr{Params: params, IsVararg: vararg, Body: body, span: start.Join(end.Span)}
}

func (p *parser) returnStmt() Stmt {
	start := p.tok.Span
	p.next()
	var values []Expr
	if !p.blockEnd(TokEnd, TokElse, TokElseif, TokUntil, TokSemi) {
		values = p.exprList()
	}
	sp := start
	if len(values) > 0 {
		sp = sp.Join(values[len(values)-1].Span())
	}
	p.accept(TokSemi)
	return &ReturnStmt{Values: values, span: sp}
}

// exprStmt parses assignments and call statements, the only expression-led
// statement forms in Lua.
func (p *parser) exprStmt() Stmt {
	start := p.tok.Span
	first := p.suffixedExpr()
	if bad, isBad := first.(*BadExpr); isBad {
		p.sync()
		return &BadStmt{span: bad.span}
	}

	if p.at(TokAssign) || p.at(TokComma) {
		targets := []Expr{first}
		for {
			if _, ok := p.accept(TokComma); !ok {
				break
			}
			targets = append(targets, p.suffixedExpr())
		}
		if _, ok := p.accept(TokAssign); !ok {
			p.errorf(p.tok.Span, "expected '=' in assignment, found %v", p.tok.Kind)
			p.sync()
			return &BadStmt{span: start.Join(p.tok.Span)}
		}
		values := p.exprList()
		sp := start
		if len(values) > 0 {
			sp = sp.Join(values[len(values)-1].Span())
		}
		return &AssignStmt{Targets: targets, Values: values, span: sp}
	}

	switch first.(type) {
	case *CallExpr, *MethodCallExpr:
		return &CallStmt{Call: first, span: first.Span()}
	default:
		p.errorf(first.Span(), "unexpected expression in statement position")
		p.sync()
		return &BadStmt{span: first.Span()}
	}
}

func (p *parser) exprList() []Expr {
	exprs := []Expr{p.expr()}
	for {
		if _, ok := p.accept(TokComma); !ok {
			break
		}
		exprs = append(exprs, p.expr())
	}
	return exprs
}

// binary operator precedence, following the Lua reference manual
var binPrec = map[TokenKind][2]int{
	TokOr:      {1, 1},
	TokAnd:     {2, 2},
	TokLt:      {3, 3},
	TokGt:      {3, 3},
	TokLe:      {3, 3},
	TokGe:      {3, 3},
	TokNe:      {3, 3},
	TokEq:      {3, 3},
	TokConcat:  {9, 8}, // right associative
	TokPlus:    {10, 10},
	TokMinus:   {10, 10},
	TokStar:    {11, 11},
	TokSlash:   {11, 11},
	TokPercent: {11, 11},
	TokCaret:   {14, 13}, // right associative
}

const unaryPrec = 12

func (p *parser) expr() Expr { return p.binExpr(0) }

func (p *parser) binExpr(limit int) Expr {
	var left Expr
	switch p.tok.Kind {
	case TokNot, TokMinus, TokHash:
		op := p.tok.Kind
		start := p.tok.Span
		p.next()
		operand := p.binExpr(unaryPrec)
		left = &UnaryExpr{Op: op, X: operand, span: start.Join(operand.Span())}
	default:
		left = p.simpleExpr()
	}

	for {
		prec, ok := binPrec[p.tok.Kind]
		if !ok || prec[0] <= limit {
			return left
		}
		op := p.tok.Kind
		p.next()
		right := p.binExpr(prec[1])
		left = &BinaryExpr{Op: op, L: left, R: right, span: left.Span().Join(right.Span())}
	}
}

func (p *parser) simpleExpr() Expr {
	start := p.tok.Span
	switch p.tok.Kind {
	case TokNil:
		p.next()
		return &NilExpr{span: start}
	case TokTrue:
		p.next()
		return &TrueExpr{span: start}
	case TokFalse:
		p.next()
		return &FalseExpr{span: start}
	case TokNumber:
		tok := p.tok
		p.next()
		return &NumberExpr{Value: tok.Num, Raw: tok.Text, span: tok.Span}
	case TokString:
		tok := p.tok
		p.next()
		return &StringExpr{Value: tok.Text, span: tok.Span}
	case TokEllipsis:
		p.next()
		return &VarargExpr{span: start}
	case TokFunction:
		p.next()
		return p.functionBody(start)
	case TokLBrace:
		return p.tableExpr()
	default:
		return p.suffixedExpr()
	}
}

// primaryExpr is a name or a parenthesized expression.
func (p *parser) primaryExpr() Expr {
	start := p.tok.Span
	switch p.tok.Kind {
	case TokName:
		tok := p.tok
		p.next()
		return &NameExpr{Name: tok.Text, span: tok.Span}
	case TokLParen:
		p.next()
		inner := p.expr()
		end := p.expect(TokRParen)
		return &ParenExpr{X: inner, span: start.Join(end.Span)}
	default:
		p.errorf(start, "unexpected %v", p.tok.Kind)
		p.next()
		return &BadExpr{span: start}
	}
}

// suffixedExpr is a primary expression followed by any number of index,
// field, call, or method-call suffixes.
func (p *parser) suffixedExpr() Expr {
	e := p.primaryExpr()
	for {
		switch p.tok.Kind {
		case TokDot:
			p.next()
			name := p.expect(TokName)
			e = &DotExpr{Obj: e, Name: name.Text, span: e.Span().Join(name.Span)}
		case TokLBracket:
			p.next()
			key := p.expr()
			end := p.expect(TokRBracket)
			e = &IndexExpr{Obj: e, Key: key, span: e.Span().Join(end.Span)}
		case TokColon:
			p.next()
			name := p.expect(TokName)
			args, end := p.callArgs(name.Span)
			e = &MethodCallExpr{Recv: e, Name: name.Text, Args: args, span: e.Span().Join(end)}
		case TokLParen, TokString, TokLBrace:
			args, end := p.callArgs(e.Span())
			e = &CallExpr{Fn: e, Args: args, span: e.Span().Join(end)}
		default:
			return e
		}
	}
}

// callArgs parses `(a, b)`, a single string literal, or a single table
// constructor argument.
func (p *parser) callArgs(at Span) ([]Expr, Span) {
	switch p.tok.Kind {
	case TokString:
		tok := p.tok
		p.next()
		return []Expr{&StringExpr{Value: tok.Text, span: tok.Span}}, tok.Span
	case TokLBrace:
		table := p.tableExpr()
		return []Expr{table}, table.Span()
	case TokLParen:
		p.next()
		var args []Expr
		if !p.at(TokRParen) {
			args = p.exprList()
		}
		end := p.expect(TokRParen)
		return args, end.Span
	default:
		p.errorf(p.tok.Span, "expected call arguments, found %v", p.tok.Kind)
		return nil, at
	}
}

func (p *parser) tableExpr() Expr {
	start := p.expect(TokLBrace).Span
	var items []TableItem
	for !p.at(TokRBrace) && !p.at(TokEOF) {
		switch {
		case p.at(TokName) && p.peek().Kind == TokAssign:
			name := p.tok
			p.next()
			p.next()
			items = append(items, TableItem{Name: name.Text, Value: p.expr()})
		case p.at(TokLBracket):
			p.next()
			key := p.expr()
			p.expect(TokRBracket)
			p.expect(TokAssign)
			items = append(items, TableItem{Key: key, Value: p.expr()})
		default:
			items = append(items, TableItem{Value: p.expr()})
		}
		if _, ok := p.accept(TokComma); ok {
			continue
		}
		if _, ok := p.accept(TokSemi); ok {
			continue
		}
		break
	}
	end := p.expect(TokRBrace)
	return &TableExpr{Items: items, span: start.Join(end.Span)}
}
