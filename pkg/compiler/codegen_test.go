package compiler

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func generate(t *testing.T, src string) *Module {
	t.Helper()
	prog := parseSource(t, src)
	info, err := Infer(prog)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	mod, err := Generate(prog, info, NewSymbolTable())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return mod
}

func TestGenerateFunctionLayout(t *testing.T) {
	mod := generate(t, "fn main() { let a = 1; let b = 2; let a = 3; return a + b; }")

	lines := strings.Split(strings.TrimSpace(mod.Assembly), "\n")
	var code []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, ";") {
			continue
		}
		code = append(code, l)
	}
	if code[0] != "main:" {
		t.Errorf("expected main: first, got %q", code[0])
	}
	// Two distinct names share the frame.
	if code[1] != "ENTER 16" {
		t.Errorf("expected ENTER 16, got %q", code[1])
	}
	if code[len(code)-2] != "LEAVE" || code[len(code)-1] != "RET" {
		t.Errorf("expected LEAVE, RET epilogue, got %v", code[len(code)-2:])
	}
	if !strings.Contains(mod.Assembly, "; fn main() -> scalar") {
		t.Errorf("missing signature comment in\n%s", mod.Assembly)
	}
}

func TestGenerateSlots(t *testing.T) {
	mod := generate(t, "fn main() { let s = 1; let M = [1, 2]; return M * s; }")
	for _, want := range []string{
		"FST [FP-8], F0",
		"ST [FP-16], R0",
		"LD R0, [FP-16]",
		"FLD F0, [FP-8]",
	} {
		if !strings.Contains(mod.Assembly, want) {
			t.Errorf("expected %q in\n%s", want, mod.Assembly)
		}
	}
}

func TestGenerateDispatch(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		notWant []string
	}{
		{
			"ScalarScalar", "let a = 1; let b = 2; return a / b;",
			[]string{"FPUSH F0", "FMOV F1, F0", "FPOP F0", "FDIV F0, F1"},
			[]string{"ALLOC"},
		},
		{
			"MatrixMatrix", "let A = [1, 2]; return A - A;",
			[]string{"PUSH R0", "MOV R2, R0", "POP R1", "LD R7, [R2]", "FSUB F0, F1"},
			[]string{"FMOV F0, F2"},
		},
		{
			"MatrixScalar", "let A = [1, 2]; return A * 3;",
			[]string{"FMOV F2, F0", "FMOV F1, F2", "FMUL F0, F1"},
			[]string{"LD R7, [R2]"},
		},
		{
			"ScalarMatrix", "let A = [1, 2]; return 3 - A;",
			[]string{"FPOP F2", "FLD F1, [R0]", "FMOV F0, F2", "FSUB F0, F1"},
			[]string{"LD R7, [R2]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := generate(t, "fn main() { "+tt.body+" }")
			for _, w := range tt.want {
				if !strings.Contains(mod.Assembly, w) {
					t.Errorf("expected %q in\n%s", w, mod.Assembly)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(mod.Assembly, w) {
					t.Errorf("unexpected %q in\n%s", w, mod.Assembly)
				}
			}
		})
	}
}

func TestGenerateReturnComment(t *testing.T) {
	nested := "a"
	for i := 0; i < 3000; i++ {
		nested = "a + (" + nested + ")"
	}
	mod := generate(t, "fn main() { let a = [1, 2]; return "+nested+"; }")
	if !strings.Contains(mod.Assembly, "; return matrix(1x2)\n") {
		t.Errorf("missing return shape comment")
	}
	// Comments name shapes, never the expression text.
	if strings.Contains(mod.Assembly, "(a + (") {
		t.Error("return comment repeats the expression")
	}
	if n := strings.Count(mod.Assembly, "PUSH R0"); n != 3000 {
		t.Errorf("expected 3000 spills, got %d", n)
	}
}

func TestGenerateUniqueLabels(t *testing.T) {
	mod := generate(t, "fn main() { let A = [1, 2]; let B = A + A; return B * 2 - A; }")
	seen := make(map[string]bool)
	for _, l := range strings.Split(mod.Assembly, "\n") {
		if strings.HasPrefix(l, ".L") && strings.HasSuffix(l, ":") {
			if seen[l] {
				t.Errorf("label %s defined twice", l)
			}
			seen[l] = true
		}
	}
	// Three element loops, two labels each.
	if len(seen) != 6 {
		t.Errorf("expected 6 loop labels, got %d", len(seen))
	}
}

func TestGenerateSignatures(t *testing.T) {
	mod := generate(t, `
fn small() { return [1]; }
fn main() { let A = [[1, 2], [3, 4]]; return A + A; }
fn scalar() { return 1; }`)
	if len(mod.Functions) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(mod.Functions))
	}
	sig, ok := mod.Lookup("main")
	if !ok {
		t.Fatal("main not found")
	}
	if sig.Return != MatrixShape(2, 2) || sig.HeapBytes != 112 {
		t.Errorf("main: got %s, %d heap bytes", sig.Return, sig.HeapBytes)
	}
	small, _ := mod.Lookup("small")
	if small.HeapBytes != 32 {
		t.Errorf("small: expected 32 heap bytes, got %d", small.HeapBytes)
	}
	if mod.HeapBytes != 112 {
		t.Errorf("module bound: expected 112, got %d", mod.HeapBytes)
	}
	if _, ok := mod.Lookup("nope"); ok {
		t.Error("Lookup of an unknown function should fail")
	}
}

func TestCompileOptions(t *testing.T) {
	var buf bytes.Buffer
	mod, err := Compile("fn main() { return [1, 2] * 2; }", &Options{
		Name:   "demo",
		Logger: log.New(&buf, "", 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if mod.Name != "demo" {
		t.Errorf("expected name demo, got %q", mod.Name)
	}
	for _, stage := range []string{"lex:", "parse: 1 functions", "infer: fn main -> matrix(1x2)", "codegen:"} {
		if !strings.Contains(buf.String(), stage) {
			t.Errorf("log missing %q:\n%s", stage, buf.String())
		}
	}

	mod, err = Compile("fn main() { return 1; }", nil)
	if err != nil {
		t.Fatal(err)
	}
	if mod.Name != "main" {
		t.Errorf("expected default name main, got %q", mod.Name)
	}
}

func TestCompileErrorsPassThrough(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		sentinel error
	}{
		{"Lex", "fn main() { return 1 % 2; }", ErrLex},
		{"Parse", "fn main() { return -1; }", ErrParse},
		{"Compile", "fn main() { let a = 1; return a + c; }", ErrCompile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := Compile(tt.src, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if mod != nil {
				t.Error("expected no module on error")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("expected %v, got %v", tt.sentinel, err)
			}
		})
	}
}
