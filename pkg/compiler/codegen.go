package compiler

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"matscript/pkg/cpu"
	"matscript/pkg/matrix"
)

// CodeGen walks an AST and emits assembly for the matscript register
// machine. Shapes come from the Info side table, so dispatch never
// inspects values.
//
// Register conventions inside one expression:
//
//	F0        scalar result
//	R0        matrix record pointer result
//	F1        right operand of a scalar op
//	F2        broadcast scalar
//	R1, R2    left and right matrix records
//	R3        loop bound in bytes
//	R4        loop offset in bytes
//	R5        result data
//	R6, R7    operand data
type CodeGen struct {
	syms            *SymbolTable
	info            *Info
	out             *strings.Builder
	nextLabel       int
	currentFunction string
	heapBytes       int64 // allocated by the function being generated
}

func newCodeGen(syms *SymbolTable, info *Info) *CodeGen {
	return &CodeGen{syms: syms, info: info, out: new(strings.Builder)}
}

func (cg *CodeGen) newLabel() string {
	l := fmt.Sprintf(".L%d", cg.nextLabel)
	cg.nextLabel++
	return l
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("    ; "+format, args...)
}

func (cg *CodeGen) shape(e Expr) (Shape, error) {
	sh, ok := cg.info.Shapes[e]
	if !ok {
		return Shape{}, &CompileError{
			Kind:     UnknownReturnShape,
			Function: cg.currentFunction,
			Pos:      e.Position(),
			Msg:      fmt.Sprintf("no shape recorded for %s", e),
		}
	}
	return sh, nil
}

func slot(sym Symbol) string {
	return fmt.Sprintf("[FP%+d]", sym.Offset)
}

// genExpr leaves a scalar result in F0 or a matrix record pointer in R0.
func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {
	case *NumberLiteral:
		cg.line("    LDF F0, %s", matrix.FormatFloat(n.Value))

	case *Identifier:
		sym, ok := cg.syms.Lookup(n.Name)
		if !ok {
			return &CompileError{Kind: UnboundIdentifier, Function: cg.currentFunction, Name: n.Name, Pos: n.Pos}
		}
		if sym.Shape.IsMatrix() {
			cg.line("    LD R0, %s", slot(sym))
		} else {
			cg.line("    FLD F0, %s", slot(sym))
		}

	case *MatrixLiteral:
		return cg.genMatrixLiteral(n)

	case *BinaryExpr:
		return cg.genBinary(n)

	default:
		return errors.Errorf("codegen: unknown expression node %T", e)
	}
	return nil
}

// genMatrixLiteral allocates the data block, fills it cell by cell in
// row-major order, then allocates and fills the {data, rows, cols} record.
// The data pointer lives on the stack while cells are evaluated.
func (cg *CodeGen) genMatrixLiteral(m *MatrixLiteral) error {
	rows, cols := m.Dims()
	n := int64(rows * cols)
	cg.comment("matrix literal %dx%d", rows, cols)

	cg.line("    LDI R1, %d", n*8)
	cg.line("    ALLOC R1, R1")
	cg.line("    PUSH R1")
	k := 0
	for _, row := range m.Rows {
		for _, el := range row {
			if err := cg.genExpr(el); err != nil {
				return err
			}
			cg.line("    LD R1, [SP]")
			cg.line("    FST [R1+%d], F0", k*8)
			k++
		}
	}
	cg.line("    LDI R2, %d", cpu.RecordSize)
	cg.line("    ALLOC R0, R2")
	cg.line("    POP R1")
	cg.storeRecord(rows, cols)

	cg.heapBytes += n*8 + cpu.RecordSize
	return nil
}

// storeRecord fills the record at R0 with data pointer R1 and static dims.
func (cg *CodeGen) storeRecord(rows, cols int) {
	cg.line("    ST [R0], R1")
	cg.line("    LDI R2, %d", rows)
	cg.line("    ST [R0+8], R2")
	cg.line("    LDI R2, %d", cols)
	cg.line("    ST [R0+16], R2")
}

var floatOps = map[TokenType]string{
	PLUS:  "FADD",
	MINUS: "FSUB",
	STAR:  "FMUL",
	SLASH: "FDIV",
}

// broadcast modes of the element loop
const (
	bothMatrix = iota
	leftMatrix
	rightMatrix
)

func (cg *CodeGen) genBinary(b *BinaryExpr) error {
	op, ok := floatOps[b.Op]
	if !ok {
		return errors.Errorf("codegen: unknown operator %s", b.Op)
	}
	ls, err := cg.shape(b.Left)
	if err != nil {
		return err
	}
	rs, err := cg.shape(b.Right)
	if err != nil {
		return err
	}
	result, err := cg.shape(b)
	if err != nil {
		return err
	}

	if err := cg.genExpr(b.Left); err != nil {
		return err
	}
	switch {
	case !ls.IsMatrix() && !rs.IsMatrix():
		cg.line("    FPUSH F0")
		if err := cg.genExpr(b.Right); err != nil {
			return err
		}
		cg.line("    FMOV F1, F0")
		cg.line("    FPOP F0")
		cg.line("    %s F0, F1", op)
		return nil

	case ls.IsMatrix() && rs.IsMatrix():
		cg.line("    PUSH R0")
		if err := cg.genExpr(b.Right); err != nil {
			return err
		}
		cg.line("    MOV R2, R0")
		cg.line("    POP R1")
		return cg.genElementLoop(op, result, bothMatrix)

	case ls.IsMatrix():
		cg.line("    PUSH R0")
		if err := cg.genExpr(b.Right); err != nil {
			return err
		}
		cg.line("    FMOV F2, F0")
		cg.line("    POP R1")
		return cg.genElementLoop(op, result, leftMatrix)

	default:
		cg.line("    FPUSH F0")
		if err := cg.genExpr(b.Right); err != nil {
			return err
		}
		cg.line("    MOV R1, R0")
		cg.line("    FPOP F2")
		return cg.genElementLoop(op, result, rightMatrix)
	}
}

// genElementLoop emits a counted loop over every element of the matrix
// record in R1 (and R2 when both sides are matrices), writing into a fresh
// buffer, then wraps the buffer in a new record left in R0. The broadcast
// scalar, if any, is in F2. Operand order is preserved for - and /.
func (cg *CodeGen) genElementLoop(op string, result Shape, mode int) error {
	n := int64(result.Elements())
	loop, done := cg.newLabel(), cg.newLabel()

	cg.comment("element-wise %s over %d elements", op, n)
	cg.line("    LDI R3, %d", n*8)
	cg.line("    ALLOC R5, R3")
	cg.line("    LD R6, [R1]")
	if mode == bothMatrix {
		cg.line("    LD R7, [R2]")
	}
	cg.line("    LDI R4, 0")
	cg.line("%s:", loop)
	cg.line("    CMP R4, R3")
	cg.line("    JGE %s", done)
	cg.line("    MOV R0, R6")
	cg.line("    ADD R0, R4")
	switch mode {
	case bothMatrix:
		cg.line("    FLD F0, [R0]")
		cg.line("    MOV R0, R7")
		cg.line("    ADD R0, R4")
		cg.line("    FLD F1, [R0]")
	case leftMatrix:
		cg.line("    FLD F0, [R0]")
		cg.line("    FMOV F1, F2")
	case rightMatrix:
		cg.line("    FLD F1, [R0]")
		cg.line("    FMOV F0, F2")
	}
	cg.line("    %s F0, F1", op)
	cg.line("    MOV R0, R5")
	cg.line("    ADD R0, R4")
	cg.line("    FST [R0], F0")
	cg.line("    LDI R0, 8")
	cg.line("    ADD R4, R0")
	cg.line("    JMP %s", loop)
	cg.line("%s:", done)
	cg.line("    LDI R2, %d", cpu.RecordSize)
	cg.line("    ALLOC R0, R2")
	cg.line("    MOV R1, R5")
	cg.storeRecord(result.Rows, result.Cols)

	cg.heapBytes += n*8 + cpu.RecordSize
	return nil
}

// genStmt emits the instructions that carry out stmt.
func (cg *CodeGen) genStmt(s Stmt) error {
	switch n := s.(type) {
	case *LetStmt:
		cg.comment("let %s", n.Name)
		if err := cg.genExpr(n.Init); err != nil {
			return err
		}
		sh, err := cg.shape(n.Init)
		if err != nil {
			return err
		}
		sym, _ := cg.syms.Define(n.Name, sh)
		if sh.IsMatrix() {
			cg.line("    ST %s, R0", slot(sym))
		} else {
			cg.line("    FST %s, F0", slot(sym))
		}

	case *ReturnStmt:
		sh, err := cg.shape(n.Expr)
		if err != nil {
			return err
		}
		cg.comment("return %s", sh)
		return cg.genExpr(n.Expr)

	default:
		return errors.Errorf("codegen: unknown statement %T", s)
	}
	return nil
}

func (cg *CodeGen) genFunction(fn *Function) (FuncSig, error) {
	ret, ok := cg.info.Returns[fn.Name]
	if !ok {
		return FuncSig{}, &CompileError{Kind: UnknownReturnShape, Function: fn.Name, Pos: fn.Pos}
	}

	cg.currentFunction = fn.Name
	cg.heapBytes = 0
	cg.syms.EnterFunction(fn.Name)
	defer cg.syms.ExitFunction()

	// The frame size is known once the body has bound all its names.
	module := cg.out
	cg.out = new(strings.Builder)
	for _, s := range reachable(fn.Body) {
		if err := cg.genStmt(s); err != nil {
			cg.out = module
			return FuncSig{}, err
		}
	}
	body := cg.out.String()
	cg.out = module

	cg.out.WriteByte('\n')
	cg.line("; fn %s() -> %s", fn.Name, ret)
	cg.line("%s:", fn.Name)
	cg.line("    ENTER %d", cg.syms.FrameSize())
	cg.out.WriteString(body)
	cg.line("    LEAVE")
	cg.line("    RET")

	return FuncSig{Name: fn.Name, Return: ret, HeapBytes: cg.heapBytes}, nil
}

// Generate lowers every function of prog. Statements after a function's
// first return are not lowered.
func Generate(prog *Program, info *Info, syms *SymbolTable) (*Module, error) {
	if syms == nil {
		syms = NewSymbolTable()
	}
	cg := newCodeGen(syms, info)
	mod := &Module{}

	cg.line("; matscript module")
	for _, fn := range prog.Functions {
		sig, err := cg.genFunction(fn)
		if err != nil {
			return nil, err
		}
		mod.Functions = append(mod.Functions, sig)
		if sig.HeapBytes > mod.HeapBytes {
			mod.HeapBytes = sig.HeapBytes
		}
	}
	mod.Assembly = cg.out.String()
	return mod, nil
}
