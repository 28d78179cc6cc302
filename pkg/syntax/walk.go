package syntax

// Walk calls fn for node and each of its descendants in source order. If fn
// returns false the node's children are skipped.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	for _, child := range children(node) {
		Walk(child, fn)
	}
}

// NodeAt returns the smallest node in the chunk whose span contains pos.
func NodeAt(chunk *Chunk, pos Position) Node {
	var best Node
	Walk(chunk.Body, func(n Node) bool {
		sp := n.Span()
		if !sp.Contains(pos) {
			// Blocks may have children outside a zero-width span guess;
			// keep descending through blocks regardless.
			_, isBlock := n.(*Block)
			return isBlock
		}
		if best == nil || sp.Width() <= best.Span().Width() {
			best = n
		}
		return true
	})
	return best
}

func children(node Node) []Node {
	var out []Node
	add := func(n Node) {
		if n != nil {
			out = append(out, n)
		}
	}
	addExprs := func(es []Expr) {
		for _, e := range es {
			add(e)
		}
	}
	addNames := func(ns []*NameExpr) {
		for _, n := range ns {
			add(n)
		}
	}

	switch n := node.(type) {
	case *Chunk:
		add(n.Body)
	case *Block:
		for _, s := range n.Stmts {
			add(s)
		}
	case *LocalStmt:
		addNames(n.Names)
		addExprs(n.Values)
	case *AssignStmt:
		addExprs(n.Targets)
		addExprs(n.Values)
	case *CallStmt:
		add(n.Call)
	case *DoStmt:
		add(n.Body)
	case *WhileStmt:
		add(n.Cond)
		add(n.Body)
	case *RepeatStmt:
		add(n.Body)
		add(n.Cond)
	case *IfStmt:
		add(n.Cond)
		add(n.Then)
		for _, arm := range n.ElseIfs {
			add(arm.Cond)
			add(arm.Body)
		}
		if n.Else != nil {
			add(n.Else)
		}
	case *NumericForStmt:
		add(n.Var)
		add(n.Start)
		add(n.Limit)
		add(n.Step)
		add(n.Body)
	case *GenericForStmt:
		addNames(n.Names)
		addExprs(n.Exprs)
		add(n.Body)
	case *FunctionStmt:
		add(n.Target)
		add(n.Fn)
	case *LocalFunctionStmt:
		add(n.Name)
		add(n.Fn)
	case *ReturnStmt:
		addExprs(n.Values)
	case *DotExpr:
		add(n.Obj)
	case *IndexExpr:
		add(n.Obj)
		add(n.Key)
	case *CallExpr:
		add(n.Fn)
		addExprs(n.Args)
	case *MethodCallExpr:
		add(n.Recv)
		addExprs(n.Args)
	case *FunctionExpr:
		addNames(n.Params)
		add(n.Body)
	case *TableExpr:
		for _, item := range n.Items {
			add(item.Key)
			add(item.Value)
		}
	case *BinaryExpr:
		add(n.L)
		add(n.R)
	case *UnaryExpr:
		add(n.X)
	case *ParenExpr:
		add(n.X)
	}
	return out
}
