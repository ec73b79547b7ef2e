package compiler

// foldConstants replaces every binary expression whose operands are both
// number literals (after folding) with the computed literal. Arithmetic is
// done one IEEE-754 double operation at a time, the same as the generated
// code would do it.
func foldConstants(prog *Program) {
	for _, fn := range prog.Functions {
		for _, stmt := range fn.Body {
			switch s := stmt.(type) {
			case *LetStmt:
				s.Init = foldExpr(s.Init)
			case *ReturnStmt:
				s.Expr = foldExpr(s.Expr)
			}
		}
	}
}

func foldExpr(e Expr) Expr {
	switch n := e.(type) {
	case *BinaryExpr:
		n.Left = foldExpr(n.Left)
		n.Right = foldExpr(n.Right)
		l, lok := n.Left.(*NumberLiteral)
		r, rok := n.Right.(*NumberLiteral)
		if !lok || !rok {
			return n
		}
		return &NumberLiteral{Value: applyOp(n.Op, l.Value, r.Value), Pos: l.Pos}
	case *MatrixLiteral:
		for _, row := range n.Rows {
			for j := range row {
				row[j] = foldExpr(row[j])
			}
		}
	}
	return e
}

func applyOp(op TokenType, a, b float64) float64 {
	switch op {
	case PLUS:
		return float64(a + b)
	case MINUS:
		return float64(a - b)
	case STAR:
		return float64(a * b)
	case SLASH:
		return float64(a / b)
	}
	panic("applyOp: not an arithmetic operator: " + op.String())
}

// reachable returns the statements that can run: everything up to and
// including the first return.
func reachable(body []Stmt) []Stmt {
	for i, s := range body {
		if _, ok := s.(*ReturnStmt); ok {
			return body[:i+1]
		}
	}
	return body
}
