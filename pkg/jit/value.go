package jit

import (
	"fmt"

	"matscript/pkg/compiler"
	"matscript/pkg/matrix"
)

// Kind tells a scalar result from a matrix result.
type Kind int

const (
	ScalarKind Kind = iota
	MatrixKind
)

func (k Kind) String() string {
	if k == MatrixKind {
		return "matrix"
	}
	return "scalar"
}

// Value is the result of running a function, copied out of the machine.
type Value struct {
	Kind   Kind
	Scalar float64
	Matrix *matrix.Matrix
}

// Shape returns the static shape the value has.
func (v Value) Shape() compiler.Shape {
	if v.Kind == MatrixKind && v.Matrix != nil {
		return compiler.MatrixShape(v.Matrix.Rows, v.Matrix.Cols)
	}
	return compiler.ScalarShape()
}

// String renders the value the way the console prints it, without the
// "Result" label.
func (v Value) String() string {
	if v.Kind == MatrixKind {
		return v.Matrix.String()
	}
	return matrix.FormatFloat(v.Scalar)
}

// Format renders the full console line(s):
//
//	Result: 205
//	Result (2x2):
//	[[6, 8],
//	 [10, 12]]
func (v Value) Format() string {
	if v.Kind == MatrixKind && v.Matrix != nil {
		return fmt.Sprintf("Result (%dx%d):\n%s", v.Matrix.Rows, v.Matrix.Cols, v.Matrix)
	}
	return "Result: " + v.String()
}
