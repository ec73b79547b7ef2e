package compiler

import "fmt"

// ShapeKind tells scalars and matrices apart.
type ShapeKind int

const (
	Scalar ShapeKind = iota
	Matrix
)

// Shape is the static shape of a value. Every matrix is built from a
// literal, so matrix dimensions are always known at compile time.
type Shape struct {
	Kind ShapeKind
	Rows int
	Cols int
}

func ScalarShape() Shape { return Shape{Kind: Scalar} }

func MatrixShape(rows, cols int) Shape { return Shape{Kind: Matrix, Rows: rows, Cols: cols} }

func (s Shape) IsMatrix() bool { return s.Kind == Matrix }

// Elements returns rows*cols for matrices and 1 for scalars.
func (s Shape) Elements() int {
	if s.Kind == Matrix {
		return s.Rows * s.Cols
	}
	return 1
}

func (s Shape) String() string {
	if s.Kind == Matrix {
		return fmt.Sprintf("matrix(%dx%d)", s.Rows, s.Cols)
	}
	return "scalar"
}

// Info is the side table produced by Infer.
type Info struct {
	// Shapes annotates every expression node that code generation visits.
	Shapes map[Expr]Shape
	// Returns holds each function's result shape.
	Returns map[string]Shape
}

// Infer annotates every expression in prog with its shape and fixes each
// function's return shape. A function's result is the shape of its first
// return statement; statements after it are still checked.
func Infer(prog *Program) (*Info, error) {
	info := &Info{
		Shapes:  make(map[Expr]Shape),
		Returns: make(map[string]Shape),
	}

	seen := make(map[string]bool)
	for _, fn := range prog.Functions {
		if seen[fn.Name] {
			return nil, &CompileError{Kind: DuplicateFunction, Function: fn.Name, Name: fn.Name, Pos: fn.Pos}
		}
		seen[fn.Name] = true

		ret, err := inferFunction(fn, info)
		if err != nil {
			return nil, err
		}
		info.Returns[fn.Name] = ret
	}
	return info, nil
}

type shapeEnv struct {
	fn       *Function
	bindings map[string]Shape
	info     *Info
}

func inferFunction(fn *Function, info *Info) (Shape, error) {
	env := &shapeEnv{fn: fn, bindings: make(map[string]Shape), info: info}

	var ret Shape
	found := false
	for _, stmt := range fn.Body {
		switch s := stmt.(type) {
		case *LetStmt:
			sh, err := env.expr(s.Init)
			if err != nil {
				return Shape{}, err
			}
			env.bindings[s.Name] = sh
		case *ReturnStmt:
			sh, err := env.expr(s.Expr)
			if err != nil {
				return Shape{}, err
			}
			if !found {
				ret, found = sh, true
			}
		}
	}
	if !found {
		return Shape{}, &CompileError{Kind: UnknownReturnShape, Function: fn.Name, Pos: fn.Pos, Msg: "function has no return statement"}
	}
	return ret, nil
}

func (env *shapeEnv) fail(kind CompileErrorKind, at Expr, name, format string, args ...any) error {
	return &CompileError{
		Kind:     kind,
		Function: env.fn.Name,
		Name:     name,
		Pos:      at.Position(),
		Msg:      fmt.Sprintf(format, args...),
	}
}

func (env *shapeEnv) expr(e Expr) (Shape, error) {
	sh, err := env.shapeOf(e)
	if err != nil {
		return Shape{}, err
	}
	env.info.Shapes[e] = sh
	return sh, nil
}

func (env *shapeEnv) shapeOf(e Expr) (Shape, error) {
	switch n := e.(type) {
	case *NumberLiteral:
		return ScalarShape(), nil

	case *Identifier:
		sh, ok := env.bindings[n.Name]
		if !ok {
			return Shape{}, &CompileError{Kind: UnboundIdentifier, Function: env.fn.Name, Name: n.Name, Pos: n.Pos}
		}
		return sh, nil

	case *MatrixLiteral:
		for i, row := range n.Rows {
			for j, el := range row {
				sh, err := env.expr(el)
				if err != nil {
					return Shape{}, err
				}
				if sh.IsMatrix() {
					return Shape{}, env.fail(InvalidElement, el, "", "element [%d][%d] is a %s, elements must be scalars", i, j, sh)
				}
			}
		}
		rows, cols := n.Dims()
		return MatrixShape(rows, cols), nil

	case *BinaryExpr:
		l, err := env.expr(n.Left)
		if err != nil {
			return Shape{}, err
		}
		r, err := env.expr(n.Right)
		if err != nil {
			return Shape{}, err
		}
		return env.binary(n, l, r)
	}
	return Shape{}, env.fail(UnsupportedOperands, e, "", "unsupported expression %T", e)
}

// binary fixes the dispatch rule: the result is a matrix when either side
// is one.
func (env *shapeEnv) binary(n *BinaryExpr, l, r Shape) (Shape, error) {
	op := symbols[n.Op]
	switch {
	case n.Op == SLASH && r.IsMatrix():
		return Shape{}, env.fail(UnsupportedOperands, n, "", "division by a matrix (%s / %s)", l, r)
	case l.IsMatrix() && r.IsMatrix():
		if l.Rows != r.Rows || l.Cols != r.Cols {
			return Shape{}, env.fail(ShapeMismatch, n, "", "%dx%d %s %dx%d", l.Rows, l.Cols, op, r.Rows, r.Cols)
		}
		return l, nil
	case l.IsMatrix():
		return l, nil
	case r.IsMatrix():
		return r, nil
	}
	return ScalarShape(), nil
}
