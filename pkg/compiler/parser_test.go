package compiler

import (
	"errors"
	"strings"
	"testing"
)

func parseSource(t *testing.T, src string) *Program {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	prog, err := Parse(tokens, src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return prog
}

// returnExpr parses src as the body of main and returns the expression of
// its return statement.
func returnExpr(t *testing.T, expr string) Expr {
	t.Helper()
	prog := parseSource(t, "fn main() { return "+expr+"; }")
	ret, ok := prog.Functions[0].Body[0].(*ReturnStmt)
	if !ok {
		t.Fatalf("expected ReturnStmt, got %T", prog.Functions[0].Body[0])
	}
	return ret.Expr
}

func TestParserPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 * 2 + 3", "((1 * 2) + 3)"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"8 / 4 / 2", "((8 / 4) / 2)"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"a * b + 5", "((a * b) + 5)"},
		{"A + B * 2", "(A + (B * 2))"},
		{"[1, 2] * (3 - x)", "([[1, 2]] * (3 - x))"},
	}
	for _, tt := range tests {
		got := returnExpr(t, tt.input).String()
		if got != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

func TestParserMatrixLiterals(t *testing.T) {
	tests := []struct {
		input      string
		rows, cols int
	}{
		{"[[1.0, 2.0], [3.0, 4.0]]", 2, 2},
		{"[1, 2, 3]", 1, 3},
		{"[[1], [2], [3]]", 3, 1},
		{"[[7]]", 1, 1},
		{"[7]", 1, 1},
		{"[1, 2,]", 1, 2},
		{"[[1, 2], [3, 4],]", 2, 2},
		{"[[1 + 2, x * 3]]", 1, 2},
	}
	for _, tt := range tests {
		lit, ok := returnExpr(t, tt.input).(*MatrixLiteral)
		if !ok {
			t.Errorf("%s: expected MatrixLiteral", tt.input)
			continue
		}
		r, c := lit.Dims()
		if r != tt.rows || c != tt.cols {
			t.Errorf("%s: expected %dx%d, got %dx%d", tt.input, tt.rows, tt.cols, r, c)
		}
	}
}

func TestParserProgram(t *testing.T) {
	src := `
fn helper() { return 1; }

fn main() {
	let a = 10.0;
	let b = 20.0;
	return a * b + 5.0;
}`
	prog := parseSource(t, src)
	if len(prog.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(prog.Functions))
	}
	main := prog.Lookup("main")
	if main == nil {
		t.Fatal("main not found")
	}
	if len(main.Body) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(main.Body))
	}
	let, ok := main.Body[0].(*LetStmt)
	if !ok || let.Name != "a" {
		t.Errorf("expected let a, got %v", main.Body[0])
	}
	if main.Pos.Line != 4 {
		t.Errorf("main at line %d, want 4", main.Pos.Line)
	}
	if prog.Lookup("missing") != nil {
		t.Error("Lookup of an unknown function should return nil")
	}
}

func TestParserEmptyProgram(t *testing.T) {
	prog := parseSource(t, "  // nothing here\n")
	if len(prog.Functions) != 0 {
		t.Errorf("expected no functions, got %d", len(prog.Functions))
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"Parameters", "fn main(x) { return x; }", "function parameters are not supported"},
		{"If", "fn main() { if (1) { return 1; } }", "control flow is not supported: 'if'"},
		{"While", "fn main() { while (1) { } }", "control flow is not supported: 'while'"},
		{"Call", "fn main() { return f(1); }", "function calls are not supported: f(...)"},
		{"Index", "fn main() { let A = [1]; return A[0]; }", "indexing is not supported: A[...]"},
		{"UnaryMinus", "fn main() { return -1; }", "unary minus is not supported"},
		{"EmptyMatrix", "fn main() { return []; }", "empty matrix literal"},
		{"EmptyRow", "fn main() { return [[1], []]; }", "empty matrix row"},
		{"Ragged", "fn main() { return [[1, 2], [3]]; }", "ragged matrix literal: row 2 has 1 elements, row 1 has 2"},
		{"MixedNestedFirst", "fn main() { return [[1], 2]; }", "mixed nested and flat rows"},
		{"MixedFlatFirst", "fn main() { return [1, [2]]; }", "mixed nested and flat rows"},
		{"MissingSemicolon", "fn main() { return 1 }", "expected ';', got '}'"},
		{"MissingBrace", "fn main() { return 1;", "expected 'let' or 'return' or '}', got end of input"},
		{"Assignment", "fn main() { x = 1; }", "expected 'let' or 'return', got identifier \"x\""},
		{"TopLevelLet", "let x = 1;", "expected 'fn', got 'let'"},
		{"MissingOperand", "fn main() { return 1 + ; }", "expected expression, got ';'"},
		{"UnclosedParen", "fn main() { return (1 + 2; }", "expected ')', got ';'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Lex(tt.src)
			if err != nil {
				t.Fatalf("Lex failed: %v", err)
			}
			_, err = Parse(tokens, tt.src)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrParse) {
				t.Errorf("expected a ParseError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestParseErrorSnippet(t *testing.T) {
	src := "fn main() {\n    let x = 1\n    return x;\n}"
	tokens, err := Lex(src)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Parse(tokens, src)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Token.Type != RETURN || pe.Token.Line != 3 {
		t.Errorf("error at %v line %d, want RETURN line 3", pe.Token.Type, pe.Token.Line)
	}
	if pe.Snippet != "return x;" {
		t.Errorf("snippet %q, want %q", pe.Snippet, "return x;")
	}
	if len(pe.Expected) != 1 || pe.Expected[0] != "';'" {
		t.Errorf("expected alternatives %v, want [';']", pe.Expected)
	}
}
