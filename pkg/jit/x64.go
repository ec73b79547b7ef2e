package jit

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"matscript/pkg/cpu"
)

// x86-64 register numbers.
const (
	rax = iota
	rcx
	rdx
	rbx
	rsp
	rbp
	rsi
	rdi
	r8
	r9
	r10
	r11
	r12
	r13
	r14
	r15
)

// hostReg maps machine register fields to host registers: R0-R7, then FP
// and SP.
var hostReg = [10]int{rax, rcx, rdx, rsi, rdi, r8, r9, r10, rbp, rsp}

// Host registers with a fixed role in translated code. F0-F7 are
// xmm0-xmm7.
const (
	regHeap  = r11 // heap bump pointer
	regLimit = r12 // end of heap
	regTmp   = r13
	regZ     = r14 // Z flag as 0 or 1
	regN     = r15 // N flag as 0 or 1
	regOut   = rbx // result area
)

var calleeSaved = []int{rbx, rbp, r12, r13, r14, r15}

// Result area at the start of the arena.
const (
	outR0     = 0
	outF0     = 8
	outHeap   = 16
	outStatus = 24
	outSP     = 32
	outPC     = 40
	outFloor  = 48 // lowest address the machine stack may reach
	outSize   = 64
)

// Values of the status word.
const (
	statusOK            = 0
	statusOutOfMemory   = 1
	statusNegativeAlloc = 2
	statusStackOverflow = 3
)

// Condition codes for Jcc and SETcc.
const (
	ccB  = 0x2
	ccE  = 0x4
	ccNE = 0x5
	ccA  = 0x7
	ccS  = 0x8
	ccL  = 0xC
)

// label names a position in the output. Machine code addresses are their
// own labels; internal positions are negative.
type label int

const (
	labDone label = -1 - iota
	labExit
	labUnwind
	labFirstFree
)

type fixup struct {
	at     int // offset of a rel32 field
	target label
}

// x64 accumulates x86-64 machine code.
type x64 struct {
	buf    []byte
	labels map[label]int
	fixups []fixup
	next   label
}

func newX64() *x64 {
	return &x64{labels: make(map[label]int), next: labFirstFree}
}

func (a *x64) newLabel() label {
	l := a.next
	a.next--
	return l
}

func (a *x64) emit(b ...byte) { a.buf = append(a.buf, b...) }

func (a *x64) imm32(v int32) { a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(v)) }

func (a *x64) imm64(v int64) { a.buf = binary.LittleEndian.AppendUint64(a.buf, uint64(v)) }

func (a *x64) bind(l label) { a.labels[l] = len(a.buf) }

func (a *x64) rel32(l label) {
	a.fixups = append(a.fixups, fixup{at: len(a.buf), target: l})
	a.imm32(0)
}

func (a *x64) resolve() error {
	for _, f := range a.fixups {
		t, ok := a.labels[f.target]
		if !ok {
			return errors.Errorf("jump to unbound label %d", f.target)
		}
		binary.LittleEndian.PutUint32(a.buf[f.at:], uint32(int32(t-(f.at+4))))
	}
	return nil
}

func rex(w bool, reg, base int) byte {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if reg >= 8 {
		b |= 0x04
	}
	if base >= 8 {
		b |= 0x01
	}
	return b
}

// rex emits the REX prefix unless it would carry no bits.
func (a *x64) rex(w bool, reg, base int) {
	if r := rex(w, reg, base); r != 0x40 {
		a.emit(r)
	}
}

func (a *x64) modrmReg(reg, rm int) { a.emit(0xC0 | byte(reg&7)<<3 | byte(rm&7)) }

// modrmMem encodes [base+disp32]. rsp and r12 need a SIB byte.
func (a *x64) modrmMem(reg, base int, disp int32) {
	a.emit(0x80 | byte(reg&7)<<3 | byte(base&7))
	if base&7 == rsp {
		a.emit(0x24)
	}
	a.imm32(disp)
}

// aluRR emits a 64-bit "op r/m64, r64" with both operands registers:
// 0x01 ADD, 0x29 SUB, 0x31 XOR, 0x39 CMP, 0x85 TEST, 0x89 MOV.
func (a *x64) aluRR(opcode byte, dst, src int) {
	a.rex(true, src, dst)
	a.emit(opcode)
	a.modrmReg(src, dst)
}

// aluImm emits "op r/m64, imm32" (opcode 0x81) where ext selects the
// operation: 0 ADD, 4 AND, 5 SUB.
func (a *x64) aluImm(ext, dst int, v int32) {
	a.emit(rex(true, 0, dst), 0x81)
	a.modrmReg(ext, dst)
	a.imm32(v)
}

func (a *x64) mov(dst, src int) { a.aluRR(0x89, dst, src) }

func (a *x64) imul(dst, src int) {
	a.rex(true, dst, src)
	a.emit(0x0F, 0xAF)
	a.modrmReg(dst, src)
}

func (a *x64) movImm(dst int, v int64) {
	a.emit(rex(true, 0, dst), 0xB8+byte(dst&7))
	a.imm64(v)
}

func (a *x64) load(dst, base int, disp int32) {
	a.rex(true, dst, base)
	a.emit(0x8B)
	a.modrmMem(dst, base, disp)
}

// cmpMem emits "cmp r64, [base+disp]".
func (a *x64) cmpMem(r, base int, disp int32) {
	a.rex(true, r, base)
	a.emit(0x3B)
	a.modrmMem(r, base, disp)
}

func (a *x64) store(base int, disp int32, src int) {
	a.rex(true, src, base)
	a.emit(0x89)
	a.modrmMem(src, base, disp)
}

func (a *x64) storeImm(base int, disp, v int32) {
	a.rex(true, 0, base)
	a.emit(0xC7)
	a.modrmMem(0, base, disp)
	a.imm32(v)
}

// sse emits a scalar SSE2 operation between xmm registers. The mandatory
// prefix goes before REX.
func (a *x64) sse(prefix, op byte, dst, src int) {
	a.emit(prefix)
	a.rex(false, dst, src)
	a.emit(0x0F, op)
	a.modrmReg(dst, src)
}

// sseMem emits movsd between an xmm register and [base+disp]: op 0x10
// loads, 0x11 stores.
func (a *x64) sseMem(op byte, x, base int, disp int32) {
	a.emit(0xF2)
	a.rex(false, x, base)
	a.emit(0x0F, op)
	a.modrmMem(x, base, disp)
}

// movq copies a general register into the low lane of an xmm register.
func (a *x64) movq(x, r int) {
	a.emit(0x66)
	a.rex(true, x, r)
	a.emit(0x0F, 0x6E)
	a.modrmReg(x, r)
}

func (a *x64) push(r int) {
	if r >= 8 {
		a.emit(0x41)
	}
	a.emit(0x50 + byte(r&7))
}

func (a *x64) pop(r int) {
	if r >= 8 {
		a.emit(0x41)
	}
	a.emit(0x58 + byte(r&7))
}

func (a *x64) xor32(r int) {
	a.rex(false, r, r)
	a.emit(0x31)
	a.modrmReg(r, r)
}

func (a *x64) setcc(cc byte, r int) {
	a.rex(false, 0, r)
	a.emit(0x0F, 0x90|cc)
	a.modrmReg(0, r)
}

func (a *x64) jcc(cc byte, l label) {
	a.emit(0x0F, 0x80|cc)
	a.rel32(l)
}

func (a *x64) jmp(l label) {
	a.emit(0xE9)
	a.rel32(l)
}

func (a *x64) callReg(r int) {
	a.rex(false, 0, r)
	a.emit(0xFF)
	a.modrmReg(2, r)
}

func (a *x64) ret() { a.emit(0xC3) }

// x64Program is machine code translated to x86-64. The code starts with the
// entry stub
//
//	stub(heap, heapEnd, out, entry, stackSize uintptr)
//
// which saves the callee-saved registers, calls entry and writes R0, F0
// and the heap pointer to the result area at out. The machine stack is
// the stackSize bytes below the stub's frame, return address included.
type x64Program struct {
	code []byte
	// offsets maps each machine instruction address to the offset of its
	// translation.
	offsets map[uint32]int
}

// entry returns the code offset that runs the function at machine address
// pc.
func (p *x64Program) entry(pc uint32) (int, bool) {
	off, ok := p.offsets[pc]
	return off, ok
}

// faultSite is an out-of-line fault exit. ALLOC has two; PUSH, FPUSH and
// ENTER have one for stack overflow.
type faultSite struct {
	pc     uint32
	status int32
	at     label
}

// translate converts verified machine code to x86-64.
func translate(code []byte) (*x64Program, error) {
	a := newX64()
	a.stub()

	var sites []faultSite
	var pcs []uint32
	for pc := uint32(0); pc < uint32(len(code)); {
		in, err := cpu.Decode(code, pc)
		if err != nil {
			return nil, err
		}
		pcs = append(pcs, pc)
		a.bind(label(pc))
		faults, err := a.instr(in)
		if err != nil {
			return nil, errors.Wrapf(err, "%s at 0x%04X", in.Info().Name, pc)
		}
		sites = append(sites, faults...)
		pc += in.Len
	}

	for _, s := range sites {
		a.bind(s.at)
		a.storeImm(regOut, outStatus, s.status)
		a.storeImm(regOut, outPC, int32(s.pc))
		a.jmp(labUnwind)
	}
	a.bind(labUnwind)
	a.store(regOut, outHeap, regHeap)
	a.load(rsp, regOut, outSP)
	a.jmp(labExit)

	if err := a.resolve(); err != nil {
		return nil, err
	}

	prog := &x64Program{code: a.buf, offsets: make(map[uint32]int, len(pcs))}
	for _, pc := range pcs {
		prog.offsets[pc] = a.labels[label(pc)]
	}
	return prog, nil
}

// stub emits the entry trampoline. SysV passes heap, heapEnd, out, entry
// and stackSize in rdi, rsi, rdx, rcx and r8.
func (a *x64) stub() {
	for _, r := range calleeSaved {
		a.push(r)
	}
	a.mov(regOut, rdx)
	a.mov(regHeap, rdi)
	a.mov(regLimit, rsi)
	a.xor32(regZ)
	a.xor32(regN)
	a.store(regOut, outSP, rsp)
	a.mov(regTmp, rsp)
	a.aluRR(0x29, regTmp, r8)
	a.store(regOut, outFloor, regTmp)
	a.callReg(rcx)

	a.bind(labDone)
	a.store(regOut, outR0, rax)
	a.sseMem(0x11, 0, regOut, outF0)
	a.store(regOut, outHeap, regHeap)

	a.bind(labExit)
	for i := len(calleeSaved) - 1; i >= 0; i-- {
		a.pop(calleeSaved[i])
	}
	a.ret()
}

func disp32(v int64) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, errors.Errorf("displacement %d does not fit in 32 bits", v)
	}
	return int32(v), nil
}

var (
	intOps   = map[uint8]byte{cpu.OpADD: 0x01, cpu.OpSUB: 0x29}
	floatOps = map[uint8]byte{cpu.OpFADD: 0x58, cpu.OpFSUB: 0x5C, cpu.OpFMUL: 0x59, cpu.OpFDIV: 0x5E}
)

// stackCheck faults unless need bytes fit between rsp and the stack floor.
func (a *x64) stackCheck(pc uint32, need int32) faultSite {
	site := faultSite{pc: pc, status: statusStackOverflow, at: a.newLabel()}
	a.mov(regTmp, rsp)
	a.aluImm(5, regTmp, need)
	a.cmpMem(regTmp, regOut, outFloor)
	a.jcc(ccB, site.at)
	return site
}

// instr translates one machine instruction. It returns the fault exits the
// translation jumps to, which are bound after the last instruction.
func (a *x64) instr(in cpu.Instr) ([]faultSite, error) {
	ra, rb := hostReg[in.A%10], hostReg[in.B%10]
	xa, xb := int(in.A&7), int(in.B&7)

	switch in.Op {
	case cpu.OpHLT:
		a.load(rsp, regOut, outSP)
		a.jmp(labDone)
	case cpu.OpNOP:
		a.emit(0x90)
	case cpu.OpRET:
		a.ret()
	case cpu.OpENTER:
		size, err := disp32(in.Imm)
		if err != nil || size < 0 || size > math.MaxInt32-8 {
			return nil, errors.Errorf("bad frame size %d", in.Imm)
		}
		site := a.stackCheck(in.Addr, size+8)
		a.push(rbp)
		a.mov(rbp, rsp)
		if size > 0 {
			a.aluImm(5, rsp, size)
		}
		return []faultSite{site}, nil
	case cpu.OpLEAVE:
		a.emit(0xC9)

	case cpu.OpLDI:
		a.movImm(ra, in.Imm)
	case cpu.OpLDF:
		a.movImm(regTmp, in.Imm)
		a.movq(xa, regTmp)
	case cpu.OpMOV:
		a.mov(ra, rb)
	case cpu.OpFMOV:
		a.sse(0x66, 0x28, xa, xb) // movapd

	case cpu.OpADD, cpu.OpSUB:
		a.aluRR(intOps[in.Op], ra, rb)
	case cpu.OpMUL:
		a.imul(ra, rb)
	case cpu.OpFADD, cpu.OpFSUB, cpu.OpFMUL, cpu.OpFDIV:
		a.sse(0xF2, floatOps[in.Op], xa, xb)

	case cpu.OpLD, cpu.OpST, cpu.OpFLD, cpu.OpFST:
		d, err := disp32(in.Imm)
		if err != nil {
			return nil, err
		}
		switch in.Op {
		case cpu.OpLD:
			a.load(ra, rb, d)
		case cpu.OpST:
			a.store(ra, d, rb)
		case cpu.OpFLD:
			a.sseMem(0x10, xa, rb, d)
		case cpu.OpFST:
			a.sseMem(0x11, xb, ra, d)
		}

	case cpu.OpPUSH:
		site := a.stackCheck(in.Addr, 8)
		a.push(ra)
		return []faultSite{site}, nil
	case cpu.OpPOP:
		a.pop(ra)
	case cpu.OpFPUSH:
		site := a.stackCheck(in.Addr, 8)
		a.aluImm(5, rsp, 8)
		a.sseMem(0x11, xa, rsp, 0)
		return []faultSite{site}, nil
	case cpu.OpFPOP:
		a.sseMem(0x10, xa, rsp, 0)
		a.aluImm(0, rsp, 8)

	case cpu.OpALLOC:
		negative := faultSite{pc: in.Addr, status: statusNegativeAlloc, at: a.newLabel()}
		oom := faultSite{pc: in.Addr, status: statusOutOfMemory, at: a.newLabel()}
		a.mov(regTmp, rb)
		a.aluRR(0x85, regTmp, regTmp)
		a.jcc(ccS, negative.at)
		a.aluImm(0, regTmp, 7)
		a.aluImm(4, regTmp, -8)
		a.aluRR(0x01, regTmp, regHeap)
		a.aluRR(0x39, regTmp, regLimit)
		a.jcc(ccA, oom.at)
		a.mov(ra, regHeap)
		a.mov(regHeap, regTmp)
		return []faultSite{negative, oom}, nil

	case cpu.OpCMP:
		a.xor32(regZ)
		a.xor32(regN)
		a.aluRR(0x39, ra, rb)
		a.setcc(ccE, regZ)
		a.setcc(ccL, regN)

	case cpu.OpJMP:
		a.jmp(label(in.Imm))
	case cpu.OpJZ:
		a.aluRR(0x85, regZ, regZ)
		a.jcc(ccNE, label(in.Imm))
	case cpu.OpJNZ:
		a.aluRR(0x85, regZ, regZ)
		a.jcc(ccE, label(in.Imm))
	case cpu.OpJLT:
		a.aluRR(0x85, regN, regN)
		a.jcc(ccNE, label(in.Imm))
	case cpu.OpJGE:
		a.aluRR(0x85, regN, regN)
		a.jcc(ccE, label(in.Imm))

	default:
		return nil, errors.Errorf("no translation for opcode 0x%02X", in.Op)
	}
	return nil, nil
}
