package compiler

import (
	"fmt"
	"strings"

	"matscript/pkg/matrix"
)

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

func posOf(tok Token) Pos { return Pos{Line: tok.Line, Col: tok.Col} }

//  Expression nodes

// Expr is implemented by every node that produces a value.
// Scalars are left in F0, matrix record pointers in R0.
type Expr interface {
	exprNode()
	Position() Pos
	String() string
}

// NumberLiteral is a compile-time float constant.
//
//	let x = 2.5;
//	        ^^^  NumberLiteral{Value: 2.5}
type NumberLiteral struct {
	Value float64
	Pos   Pos
}

func (*NumberLiteral) exprNode()        {}
func (n *NumberLiteral) Position() Pos  { return n.Pos }
func (n *NumberLiteral) String() string { return matrix.FormatFloat(n.Value) }

// Identifier is a read of a let binding.
//
//	return x;
//	       ^  Identifier{Name: "x"}
type Identifier struct {
	Name string
	Pos  Pos
}

func (*Identifier) exprNode()        {}
func (i *Identifier) Position() Pos  { return i.Pos }
func (i *Identifier) String() string { return i.Name }

// MatrixLiteral is a rectangular literal. The flat form [a, b] parses to a
// single row.
//
//	[[1, 2], [3, 4]]  MatrixLiteral{Rows: [[1 2] [3 4]]}
//	[1, 2, 3]         MatrixLiteral{Rows: [[1 2 3]]}
type MatrixLiteral struct {
	Rows [][]Expr
	Pos  Pos
}

func (*MatrixLiteral) exprNode()       {}
func (m *MatrixLiteral) Position() Pos { return m.Pos }

// Dims returns the literal's row and column counts.
func (m *MatrixLiteral) Dims() (rows, cols int) {
	if len(m.Rows) == 0 {
		return 0, 0
	}
	return len(m.Rows), len(m.Rows[0])
}

func (m *MatrixLiteral) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, row := range m.Rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('[')
		for j, e := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.String())
		}
		sb.WriteByte(']')
	}
	sb.WriteByte(']')
	return sb.String()
}

// BinaryExpr represents a binary operation: Left Op Right.
//
//	x + 1
//	^ ^ ^
//	| | |
//	| | Right
//	| Op
//	Left
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Pos   Pos // position of the operator
}

func (*BinaryExpr) exprNode()       {}
func (b *BinaryExpr) Position() Pos { return b.Pos }
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, symbols[b.Op], b.Right)
}

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	stmtNode()
	Position() Pos
	String() string
}

// LetStmt binds Name to the value of Init for the rest of the function.
// Rebinding a name overwrites the earlier binding.
type LetStmt struct {
	Name string
	Init Expr
	Pos  Pos
}

func (*LetStmt) stmtNode()       {}
func (s *LetStmt) Position() Pos { return s.Pos }
func (s *LetStmt) String() string {
	return fmt.Sprintf("let %s = %s;", s.Name, s.Init)
}

// ReturnStmt ends the function with the value of Expr.
type ReturnStmt struct {
	Expr Expr
	Pos  Pos
}

func (*ReturnStmt) stmtNode()       {}
func (s *ReturnStmt) Position() Pos { return s.Pos }
func (s *ReturnStmt) String() string {
	return fmt.Sprintf("return %s;", s.Expr)
}

//  Top level

// Function is a parameterless function definition.
type Function struct {
	Name string
	Body []Stmt
	Pos  Pos
}

func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s() {\n", f.Name)
	for _, s := range f.Body {
		sb.WriteString("    ")
		sb.WriteString(s.String())
		sb.WriteByte('\n')
	}
	sb.WriteString("}")
	return sb.String()
}

// Program is the root of the AST.
type Program struct {
	Functions []*Function
}

// Lookup returns the function called name.
func (p *Program) Lookup(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (p *Program) String() string {
	parts := make([]string, len(p.Functions))
	for i, f := range p.Functions {
		parts[i] = f.String()
	}
	return strings.Join(parts, "\n\n")
}
