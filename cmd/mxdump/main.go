// Command mxdump prints every stage of compiling a MatrixScript file:
// tokens, syntax tree, inferred shapes, generated assembly and the
// disassembled machine code.
package main

import (
	"fmt"
	"io"
	"os"

	"matscript/pkg/asm"
	"matscript/pkg/compiler"
	"matscript/pkg/cpu"
	"matscript/pkg/utils"
)

const testSource = `fn main() {
    let A = [[1, 2], [3, 4]];
    let s = 2;
    return A * s + 1;
}
`

func main() {
	src := testSource
	if len(os.Args) > 1 {
		var err error
		if _, src, err = utils.ReadSource(os.Args[1]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if err := dump(os.Stdout, src); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dump(w io.Writer, src string) error {
	fmt.Fprintf(w, "Source:\n%s\n", src)

	// Lex
	tokens, err := compiler.Lex(src)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Fprintln(w, " ", tok)
	}
	fmt.Fprintln(w)

	// Parse
	prog, err := compiler.Parse(tokens, src)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "AST")
	fmt.Fprintln(w, prog)
	fmt.Fprintln(w)

	// Shapes
	info, err := compiler.Infer(prog)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Shapes")
	for _, fn := range prog.Functions {
		fmt.Fprintf(w, "  fn %s -> %s\n", fn.Name, info.Returns[fn.Name])
		for _, stmt := range fn.Body {
			var e compiler.Expr
			switch s := stmt.(type) {
			case *compiler.LetStmt:
				e = s.Init
			case *compiler.ReturnStmt:
				e = s.Expr
			}
			fmt.Fprintf(w, "    %-40s %s\n", stmt, info.Shapes[e])
		}
	}
	fmt.Fprintln(w)

	// Code generation
	syms := compiler.NewSymbolTable()
	mod, err := compiler.Generate(prog, info, syms)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Generated Assembly")
	fmt.Fprint(w, mod.Assembly)
	fmt.Fprintln(w)
	for _, sig := range mod.Functions {
		fmt.Fprintf(w, "  fn %s: returns %s, heap %d bytes\n", sig.Name, sig.Return, sig.HeapBytes)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, syms)
	fmt.Fprintln(w)

	// Machine code
	img, err := asm.Assemble(mod.Assembly)
	if err != nil {
		return err
	}
	text, err := cpu.Disassemble(img.Code, img.Labels)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Machine Code (%d bytes)\n", len(img.Code))
	fmt.Fprint(w, text)
	return nil
}
