package main

import (
	"testing"

	"matscript/pkg/asm"
	"matscript/pkg/compiler"
	"matscript/pkg/cpu"
	"matscript/pkg/matrix"
)

func TestCompilerAndCPU(t *testing.T) {
	// 1. Define MatrixScript source
	source := `
fn offset() {
    return [[100, 100], [100, 100]];
}

fn main() {
    let A = [[1.0, 2.0], [3.0, 4.0]];
    let B = [[5.0, 6.0], [7.0, 8.0]];
    let k = 0.5;
    return (A + B) * k - 1;
}
`

	// 2. Lex and Parse
	tokens, err := compiler.Lex(source)
	if err != nil {
		t.Fatalf("Lexing failed: %v", err)
	}

	prog, err := compiler.Parse(tokens, source)
	if err != nil {
		t.Fatalf("Parsing failed: %v", err)
	}

	// 3. Infer shapes
	info, err := compiler.Infer(prog)
	if err != nil {
		t.Fatalf("Shape inference failed: %v", err)
	}
	if got := info.Returns["main"]; got != compiler.MatrixShape(2, 2) {
		t.Fatalf("main returns %s, want matrix(2x2)", got)
	}

	// 4. Generate Assembly
	syms := compiler.NewSymbolTable()
	mod, err := compiler.Generate(prog, info, syms)
	if err != nil {
		t.Fatalf("Code generation failed: %v", err)
	}

	t.Logf("Generated Assembly:\n%s", mod.Assembly)

	// 5. Assemble
	img, err := asm.Assemble(mod.Assembly)
	if err != nil {
		t.Fatalf("Assembly failed: %v", err)
	}
	entry, ok := img.Labels["main"]
	if !ok {
		t.Fatal("no main label")
	}
	if err := cpu.Verify(img.Code, entry); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// 6. Instantiate CPU and run main
	vm := cpu.NewCPU(img.Code)
	if err := vm.Call(entry); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 7. Verify the result record in R0
	got, err := vm.ReadMatrix(vm.Regs[0])
	if err != nil {
		t.Fatalf("ReadMatrix failed: %v", err)
	}
	want := matrix.FromRows([][]float64{{2, 3}, {4, 5}})
	if !got.Equal(want) {
		t.Errorf("Expected\n%s\ngot\n%s", want, got)
	}

	// 8. offset() was never called, so only main's allocations happened
	sig, _ := mod.Lookup("main")
	if vm.HeapUsed() != sig.HeapBytes {
		t.Errorf("heap used %d, main's bound is %d", vm.HeapUsed(), sig.HeapBytes)
	}
}
