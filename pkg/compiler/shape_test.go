package compiler

import (
	"errors"
	"strings"
	"testing"
)

func inferSource(t *testing.T, src string) (*Program, *Info, error) {
	t.Helper()
	prog := parseSource(t, src)
	info, err := Infer(prog)
	return prog, info, err
}

func TestInferReturnShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Shape
	}{
		{"Scalar", "return 1 + 2;", ScalarShape()},
		{"ScalarBindings", "let a = 10.0; let b = 20.0; return a * b + 5.0;", ScalarShape()},
		{"Matrix", "return [[1, 2], [3, 4]];", MatrixShape(2, 2)},
		{"FlatRow", "return [1, 2, 3];", MatrixShape(1, 3)},
		{"Column", "return [[1], [2]];", MatrixShape(2, 1)},
		{"MatrixSum", "let A = [[1,2],[3,4]]; let B = [[5,6],[7,8]]; return A + B;", MatrixShape(2, 2)},
		{"BroadcastLeft", "let A = [1, 2]; return A * 3;", MatrixShape(1, 2)},
		{"BroadcastRight", "let A = [1, 2]; return 3 - A;", MatrixShape(1, 2)},
		{"MatrixOverScalar", "return [[2, 4]] / 2;", MatrixShape(1, 2)},
		{"Rebinding", "let x = 1; let x = [x, x]; return x;", MatrixShape(1, 2)},
		{"FirstReturnWins", "return 1; return [1];", ScalarShape()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, info, err := inferSource(t, "fn main() { "+tt.body+" }")
			if err != nil {
				t.Fatalf("Infer failed: %v", err)
			}
			if got := info.Returns["main"]; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestInferAnnotatesEveryExpression(t *testing.T) {
	prog, info, err := inferSource(t, "fn main() { let A = [[1, 2]]; return A * (2 + 3); }")
	if err != nil {
		t.Fatal(err)
	}
	ret := prog.Functions[0].Body[1].(*ReturnStmt)
	bin := ret.Expr.(*BinaryExpr)
	checks := []struct {
		e    Expr
		want Shape
	}{
		{bin, MatrixShape(1, 2)},
		{bin.Left, MatrixShape(1, 2)},
		{bin.Right, ScalarShape()},
		{bin.Right.(*BinaryExpr).Left, ScalarShape()},
	}
	for _, c := range checks {
		got, ok := info.Shapes[c.e]
		if !ok {
			t.Errorf("%s: no shape recorded", c.e)
			continue
		}
		if got != c.want {
			t.Errorf("%s: expected %s, got %s", c.e, c.want, got)
		}
	}
}

func TestInferErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind CompileErrorKind
		id   string
		want string
	}{
		{
			"Unbound",
			"fn main() { let a = 1; return a + c; }",
			UnboundIdentifier, "c", "unbound identifier 'c'",
		},
		{
			"UseBeforeLet",
			"fn main() { let a = b; let b = 1; return a; }",
			UnboundIdentifier, "b", "",
		},
		{
			"OtherFunctionsLocals",
			"fn f() { let a = 1; return a; } fn main() { return a; }",
			UnboundIdentifier, "a", "fn main",
		},
		{
			"ShapeMismatch",
			"fn main() { return [[1, 2], [3, 4]] + [[1, 2, 3]]; }",
			ShapeMismatch, "", "2x2 + 1x3",
		},
		{
			"DivideByMatrix",
			"fn main() { return 1 / [1, 2]; }",
			UnsupportedOperands, "", "division by a matrix",
		},
		{
			"MatrixByMatrixDivision",
			"fn main() { return [1, 2] / [1, 2]; }",
			UnsupportedOperands, "", "division by a matrix",
		},
		{
			"MatrixElement",
			"fn main() { let A = [1, 2]; return [A, 3]; }",
			InvalidElement, "", "element [0][0]",
		},
		{
			"NoReturn",
			"fn main() { let a = 1; }",
			UnknownReturnShape, "", "no return statement",
		},
		{
			"Duplicate",
			"fn main() { return 1; } fn main() { return 2; }",
			DuplicateFunction, "main", "duplicate function 'main'",
		},
		{
			"UnreachableStillChecked",
			"fn main() { return 1; return z; }",
			UnboundIdentifier, "z", "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := inferSource(t, tt.src)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CompileError, got %T: %v", err, err)
			}
			if !errors.Is(err, ErrCompile) {
				t.Error("errors.Is(err, ErrCompile) = false")
			}
			if ce.Kind != tt.kind {
				t.Errorf("kind: expected %s, got %s", tt.kind, ce.Kind)
			}
			if ce.Name != tt.id {
				t.Errorf("name: expected %q, got %q", tt.id, ce.Name)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, _, err := inferSource(t, "fn main() {\n  return x;\n}")
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %v", err)
	}
	if ce.Pos.Line != 2 || ce.Pos.Col != 10 {
		t.Errorf("position %s, want 2:10", ce.Pos)
	}
	want := "compile error in fn main at 2:10: unbound identifier 'x'"
	if ce.Error() != want {
		t.Errorf("got %q, want %q", ce.Error(), want)
	}
}
