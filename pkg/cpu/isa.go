package cpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

const (
	OpHLT   uint8 = 0x00
	OpNOP   uint8 = 0x01
	OpRET   uint8 = 0x02
	OpENTER uint8 = 0x03
	OpLEAVE uint8 = 0x04
	OpLDI   uint8 = 0x05
	OpLDF   uint8 = 0x06
	OpMOV   uint8 = 0x07
	OpFMOV  uint8 = 0x08
	OpADD   uint8 = 0x09
	OpSUB   uint8 = 0x0A
	OpMUL   uint8 = 0x0B
	OpFADD  uint8 = 0x0C
	OpFSUB  uint8 = 0x0D
	OpFMUL  uint8 = 0x0E
	OpFDIV  uint8 = 0x0F
	OpLD    uint8 = 0x10
	OpST    uint8 = 0x11
	OpFLD   uint8 = 0x12
	OpFST   uint8 = 0x13
	OpPUSH  uint8 = 0x14
	OpPOP   uint8 = 0x15
	OpFPUSH uint8 = 0x16
	OpFPOP  uint8 = 0x17
	OpALLOC uint8 = 0x18
	OpCMP   uint8 = 0x19
	OpJMP   uint8 = 0x1A
	OpJZ    uint8 = 0x1B
	OpJNZ   uint8 = 0x1C
	OpJLT   uint8 = 0x1D
	OpJGE   uint8 = 0x1E
)

// Register field values. R0-R7 and F0-F7 share the encodings 0-7; the
// operand form of the instruction decides which bank is meant. FP and SP
// are only valid as the base of a memory operand.
const (
	RegR0 uint8 = 0
	RegR1 uint8 = 1
	RegR2 uint8 = 2
	RegR3 uint8 = 3
	RegR4 uint8 = 4
	RegR5 uint8 = 5
	RegR6 uint8 = 6
	RegR7 uint8 = 7
	RegFP uint8 = 8
	RegSP uint8 = 9
)

// Form describes the operand layout of an instruction.
type Form uint8

const (
	FormNone     Form = iota // HLT
	FormImm                  // ENTER 16
	FormRegImm               // LDI R0, 24
	FormFRegImm              // LDF F0, 1.5
	FormReg                  // PUSH R0
	FormFReg                 // FPUSH F0
	FormRegReg               // MOV R0, R1
	FormFRegFReg             // FADD F0, F1
	FormRegMem               // LD R0, [R1+8]
	FormMemReg               // ST [R0+8], R1
	FormFRegMem              // FLD F0, [FP-8]
	FormMemFReg              // FST [FP-8], F0
	FormTarget               // JMP .L0
)

// HasImmediate reports whether instructions of this form carry the 8-byte
// immediate after the instruction word.
func (f Form) HasImmediate() bool {
	switch f {
	case FormImm, FormRegImm, FormFRegImm, FormRegMem, FormMemReg, FormFRegMem, FormMemFReg, FormTarget:
		return true
	}
	return false
}

// OpInfo names an opcode and its operand form.
type OpInfo struct {
	Name string
	Form Form
}

var opTable = map[uint8]OpInfo{
	OpHLT:   {"HLT", FormNone},
	OpNOP:   {"NOP", FormNone},
	OpRET:   {"RET", FormNone},
	OpENTER: {"ENTER", FormImm},
	OpLEAVE: {"LEAVE", FormNone},
	OpLDI:   {"LDI", FormRegImm},
	OpLDF:   {"LDF", FormFRegImm},
	OpMOV:   {"MOV", FormRegReg},
	OpFMOV:  {"FMOV", FormFRegFReg},
	OpADD:   {"ADD", FormRegReg},
	OpSUB:   {"SUB", FormRegReg},
	OpMUL:   {"MUL", FormRegReg},
	OpFADD:  {"FADD", FormFRegFReg},
	OpFSUB:  {"FSUB", FormFRegFReg},
	OpFMUL:  {"FMUL", FormFRegFReg},
	OpFDIV:  {"FDIV", FormFRegFReg},
	OpLD:    {"LD", FormRegMem},
	OpST:    {"ST", FormMemReg},
	OpFLD:   {"FLD", FormFRegMem},
	OpFST:   {"FST", FormMemFReg},
	OpPUSH:  {"PUSH", FormReg},
	OpPOP:   {"POP", FormReg},
	OpFPUSH: {"FPUSH", FormFReg},
	OpFPOP:  {"FPOP", FormFReg},
	OpALLOC: {"ALLOC", FormRegReg},
	OpCMP:   {"CMP", FormRegReg},
	OpJMP:   {"JMP", FormTarget},
	OpJZ:    {"JZ", FormTarget},
	OpJNZ:   {"JNZ", FormTarget},
	OpJLT:   {"JLT", FormTarget},
	OpJGE:   {"JGE", FormTarget},
}

var opByName = func() map[string]uint8 {
	m := make(map[string]uint8, len(opTable))
	for op, info := range opTable {
		m[info.Name] = op
	}
	return m
}()

// Lookup returns the opcode info for op.
func Lookup(op uint8) (OpInfo, bool) {
	info, ok := opTable[op]
	return info, ok
}

// OpcodeByName maps an upper-case mnemonic to its opcode.
func OpcodeByName(name string) (uint8, bool) {
	op, ok := opByName[strings.ToUpper(name)]
	return op, ok
}

const (
	wordSize = 4
	immSize  = 8
)

// InstructionLength returns the encoded size of op in bytes.
func InstructionLength(op uint8) (uint32, bool) {
	info, ok := opTable[op]
	if !ok {
		return 0, false
	}
	if info.Form.HasImmediate() {
		return wordSize + immSize, true
	}
	return wordSize, true
}

// EncodeInstruction packs an opcode and two register fields into an
// instruction word: op<<24 | a<<20 | b<<16.
func EncodeInstruction(op, a, b uint8) uint32 {
	return uint32(op)<<24 | uint32(a&0x0F)<<20 | uint32(b&0x0F)<<16
}

// Encode appends the little-endian encoding of one instruction to dst.
func Encode(dst []byte, op, a, b uint8, imm int64) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, EncodeInstruction(op, a, b))
	if info, ok := opTable[op]; ok && info.Form.HasImmediate() {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(imm))
	}
	return dst
}

// Instr is one decoded instruction.
type Instr struct {
	Addr uint32
	Len  uint32
	Op   uint8
	A    uint8
	B    uint8
	Imm  int64
}

// Info returns the opcode info of the instruction.
func (in Instr) Info() OpInfo { return opTable[in.Op] }

// Float returns the immediate reinterpreted as a float64 (LDF).
func (in Instr) Float() float64 { return math.Float64frombits(uint64(in.Imm)) }

// Decode reads the instruction at pc and checks its register fields
// against the operand form.
func Decode(code []byte, pc uint32) (Instr, error) {
	if uint64(pc)+wordSize > uint64(len(code)) {
		return Instr{}, errors.Errorf("pc 0x%04X outside code (%d bytes)", pc, len(code))
	}
	word := binary.LittleEndian.Uint32(code[pc:])
	in := Instr{
		Addr: pc,
		Len:  wordSize,
		Op:   uint8(word >> 24),
		A:    uint8(word>>20) & 0x0F,
		B:    uint8(word>>16) & 0x0F,
	}
	info, ok := opTable[in.Op]
	if !ok {
		return in, errors.Errorf("invalid opcode 0x%02X at 0x%04X", in.Op, pc)
	}
	if word&0xFFFF != 0 {
		return in, errors.Errorf("reserved bits set in %s at 0x%04X", info.Name, pc)
	}
	if info.Form.HasImmediate() {
		if uint64(pc)+wordSize+immSize > uint64(len(code)) {
			return in, errors.Errorf("truncated %s at 0x%04X", info.Name, pc)
		}
		in.Imm = int64(binary.LittleEndian.Uint64(code[pc+wordSize:]))
		in.Len += immSize
	}
	if err := checkFields(info, in.A, in.B); err != nil {
		return in, errors.Wrapf(err, "%s at 0x%04X", info.Name, pc)
	}
	return in, nil
}

func checkFields(info OpInfo, a, b uint8) error {
	data := func(r uint8) bool { return r <= RegR7 }
	base := func(r uint8) bool { return r <= RegSP }

	var okA, okB bool
	switch info.Form {
	case FormNone, FormImm, FormTarget:
		okA, okB = a == 0, b == 0
	case FormRegImm, FormFRegImm, FormReg, FormFReg:
		okA, okB = data(a), b == 0
	case FormRegReg, FormFRegFReg:
		okA, okB = data(a), data(b)
	case FormRegMem, FormFRegMem:
		okA, okB = data(a), base(b)
	case FormMemReg, FormMemFReg:
		okA, okB = base(a), data(b)
	}
	if !okA {
		return errors.Errorf("bad first register field %d", a)
	}
	if !okB {
		return errors.Errorf("bad second register field %d", b)
	}
	return nil
}

// RegName returns the assembler spelling of an integer or base register.
func RegName(r uint8) string {
	switch r {
	case RegFP:
		return "FP"
	case RegSP:
		return "SP"
	}
	return fmt.Sprintf("R%d", r)
}

// FRegName returns the assembler spelling of a float register.
func FRegName(r uint8) string { return fmt.Sprintf("F%d", r) }

func memOperand(base uint8, disp int64) string {
	switch {
	case disp == 0:
		return "[" + RegName(base) + "]"
	case disp < 0:
		return fmt.Sprintf("[%s-%d]", RegName(base), -disp)
	}
	return fmt.Sprintf("[%s+%d]", RegName(base), disp)
}

// String renders the instruction in assembler syntax. Jump targets are
// printed as absolute addresses.
func (in Instr) String() string {
	info, ok := opTable[in.Op]
	if !ok {
		return fmt.Sprintf(".BAD 0x%02X", in.Op)
	}
	switch info.Form {
	case FormImm:
		return fmt.Sprintf("%s %d", info.Name, in.Imm)
	case FormRegImm:
		return fmt.Sprintf("%s %s, %d", info.Name, RegName(in.A), in.Imm)
	case FormFRegImm:
		return fmt.Sprintf("%s %s, %s", info.Name, FRegName(in.A), formatFloat(in.Float()))
	case FormReg:
		return fmt.Sprintf("%s %s", info.Name, RegName(in.A))
	case FormFReg:
		return fmt.Sprintf("%s %s", info.Name, FRegName(in.A))
	case FormRegReg:
		return fmt.Sprintf("%s %s, %s", info.Name, RegName(in.A), RegName(in.B))
	case FormFRegFReg:
		return fmt.Sprintf("%s %s, %s", info.Name, FRegName(in.A), FRegName(in.B))
	case FormRegMem:
		return fmt.Sprintf("%s %s, %s", info.Name, RegName(in.A), memOperand(in.B, in.Imm))
	case FormMemReg:
		return fmt.Sprintf("%s %s, %s", info.Name, memOperand(in.A, in.Imm), RegName(in.B))
	case FormFRegMem:
		return fmt.Sprintf("%s %s, %s", info.Name, FRegName(in.A), memOperand(in.B, in.Imm))
	case FormMemFReg:
		return fmt.Sprintf("%s %s, %s", info.Name, memOperand(in.A, in.Imm), FRegName(in.B))
	case FormTarget:
		return fmt.Sprintf("%s 0x%04X", info.Name, in.Imm)
	}
	return info.Name
}
