// Package cpu implements the matscript register machine: an instruction
// set with eight integer and eight float registers, a downward stack and a
// bump-allocated heap in one flat byte memory.
package cpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"matscript/pkg/matrix"
)

const (
	DefaultStackSize = 64 << 10
	DefaultMaxMemory = 64 << 20

	// RecordSize is the size of a matrix record: data pointer, rows, cols.
	RecordSize = 24

	// nullSize bytes at address 0 are never addressable.
	nullSize = 8

	// returnSentinel is the return address pushed by Call. A RET that pops
	// it halts the machine.
	returnSentinel int64 = 0xFFFFFFFF
)

// Config sizes a CPU. Zero fields take the defaults.
type Config struct {
	StackSize int
	MaxMemory int
	// StepLimit aborts Run with a fault after this many instructions. Zero
	// means unlimited.
	StepLimit uint64
}

// Fault is a runtime error raised by the machine.
type Fault struct {
	PC  uint32
	Msg string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at pc=0x%04X: %s", f.PC, f.Msg)
}

type CPU struct {
	Regs  [8]int64
	FRegs [8]float64

	PC uint32
	SP int64
	FP int64

	Z bool
	N bool

	Halted bool

	Code   []byte
	Memory []byte

	MaxMemory int
	StepLimit uint64
	Steps     uint64

	heapStart int64
}

// NewCPU returns a machine with code loaded and an empty stack and heap.
func NewCPU(code []byte, cfg ...Config) *CPU {
	var c Config
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.StackSize <= 0 {
		c.StackSize = DefaultStackSize
	}
	c.StackSize = (c.StackSize + 7) &^ 7
	if c.MaxMemory <= 0 {
		c.MaxMemory = DefaultMaxMemory
	}

	top := int64(nullSize + c.StackSize)
	return &CPU{
		Code:      code,
		Memory:    make([]byte, top, top+4096),
		SP:        top,
		FP:        top,
		MaxMemory: c.MaxMemory,
		StepLimit: c.StepLimit,
		heapStart: top,
	}
}

// HeapUsed returns the number of heap bytes allocated so far.
func (c *CPU) HeapUsed() int64 { return int64(len(c.Memory)) - c.heapStart }

func (c *CPU) fault(pc uint32, format string, args ...any) error {
	return &Fault{PC: pc, Msg: fmt.Sprintf(format, args...)}
}

// Alloc reserves n zeroed bytes on the heap, rounded up to 8, and returns
// their address.
func (c *CPU) Alloc(n int64) (int64, error) {
	if n < 0 {
		return 0, errors.Errorf("negative allocation %d", n)
	}
	size := (n + 7) &^ 7
	if int64(len(c.Memory))+size > int64(c.MaxMemory) {
		return 0, errors.Errorf("out of memory: %d bytes requested, %d of %d in use", n, len(c.Memory), c.MaxMemory)
	}
	addr := int64(len(c.Memory))
	c.Memory = append(c.Memory, make([]byte, size)...)
	return addr, nil
}

func (c *CPU) checkAddr(addr int64) error {
	if addr < nullSize || addr+8 > int64(len(c.Memory)) {
		return errors.Errorf("bad address 0x%X", addr)
	}
	return nil
}

func (c *CPU) Read64(addr int64) (int64, error) {
	if err := c.checkAddr(addr); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(c.Memory[addr:])), nil
}

func (c *CPU) Write64(addr, val int64) error {
	if err := c.checkAddr(addr); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(c.Memory[addr:], uint64(val))
	return nil
}

func (c *CPU) ReadFloat(addr int64) (float64, error) {
	v, err := c.Read64(addr)
	return math.Float64frombits(uint64(v)), err
}

func (c *CPU) WriteFloat(addr int64, f float64) error {
	return c.Write64(addr, int64(math.Float64bits(f)))
}

func (c *CPU) push(v int64) error {
	if c.SP-8 < nullSize {
		return errors.New("stack overflow")
	}
	c.SP -= 8
	return c.Write64(c.SP, v)
}

func (c *CPU) pop() (int64, error) {
	if c.SP+8 > c.heapStart {
		return 0, errors.New("stack underflow")
	}
	v, err := c.Read64(c.SP)
	if err != nil {
		return 0, err
	}
	c.SP += 8
	return v, nil
}

// reg returns the integer register named by a base field: R0-R7, FP or SP.
func (c *CPU) reg(r uint8) *int64 {
	switch r {
	case RegFP:
		return &c.FP
	case RegSP:
		return &c.SP
	}
	return &c.Regs[r&7]
}

// Call runs the function at entry until it returns to the host.
func (c *CPU) Call(entry uint32) error {
	c.Halted = false
	if err := c.push(returnSentinel); err != nil {
		return c.fault(entry, "%v", err)
	}
	c.PC = entry
	return c.Run()
}

// Run steps until the machine halts or faults.
func (c *CPU) Run() error {
	for !c.Halted {
		if err := c.Step(); err != nil {
			c.Halted = true
			return err
		}
	}
	return nil
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	pc := c.PC
	if c.StepLimit > 0 && c.Steps >= c.StepLimit {
		return c.fault(pc, "step limit %d exceeded", c.StepLimit)
	}
	c.Steps++

	in, err := Decode(c.Code, pc)
	if err != nil {
		return c.fault(pc, "%v", err)
	}
	c.PC = pc + in.Len

	if err := c.exec(in); err != nil {
		return c.fault(pc, "%s: %v", in.Info().Name, err)
	}
	return nil
}

func (c *CPU) exec(in Instr) error {
	a, b := in.A, in.B

	switch in.Op {
	case OpHLT:
		c.Halted = true
	case OpNOP:
	case OpRET:
		ret, err := c.pop()
		if err != nil {
			return err
		}
		if ret == returnSentinel {
			c.Halted = true
			return nil
		}
		c.PC = uint32(ret)
	case OpENTER:
		if in.Imm < 0 {
			return errors.Errorf("negative frame size %d", in.Imm)
		}
		if err := c.push(c.FP); err != nil {
			return err
		}
		c.FP = c.SP
		if c.SP-in.Imm < nullSize {
			return errors.New("stack overflow")
		}
		c.SP -= in.Imm
	case OpLEAVE:
		c.SP = c.FP
		fp, err := c.pop()
		if err != nil {
			return err
		}
		c.FP = fp

	case OpLDI:
		c.Regs[a] = in.Imm
	case OpLDF:
		c.FRegs[a] = in.Float()
	case OpMOV:
		c.Regs[a] = c.Regs[b]
	case OpFMOV:
		c.FRegs[a] = c.FRegs[b]

	case OpADD:
		c.Regs[a] += c.Regs[b]
	case OpSUB:
		c.Regs[a] -= c.Regs[b]
	case OpMUL:
		c.Regs[a] *= c.Regs[b]
	case OpFADD:
		c.FRegs[a] += c.FRegs[b]
	case OpFSUB:
		c.FRegs[a] -= c.FRegs[b]
	case OpFMUL:
		c.FRegs[a] *= c.FRegs[b]
	case OpFDIV:
		c.FRegs[a] /= c.FRegs[b]

	case OpLD:
		v, err := c.Read64(*c.reg(b) + in.Imm)
		if err != nil {
			return err
		}
		c.Regs[a] = v
	case OpST:
		return c.Write64(*c.reg(a)+in.Imm, c.Regs[b])
	case OpFLD:
		f, err := c.ReadFloat(*c.reg(b) + in.Imm)
		if err != nil {
			return err
		}
		c.FRegs[a] = f
	case OpFST:
		return c.WriteFloat(*c.reg(a)+in.Imm, c.FRegs[b])

	case OpPUSH:
		return c.push(c.Regs[a])
	case OpPOP:
		v, err := c.pop()
		if err != nil {
			return err
		}
		c.Regs[a] = v
	case OpFPUSH:
		return c.push(int64(math.Float64bits(c.FRegs[a])))
	case OpFPOP:
		v, err := c.pop()
		if err != nil {
			return err
		}
		c.FRegs[a] = math.Float64frombits(uint64(v))

	case OpALLOC:
		addr, err := c.Alloc(c.Regs[b])
		if err != nil {
			return err
		}
		c.Regs[a] = addr

	case OpCMP:
		x, y := c.Regs[a], c.Regs[b]
		c.Z = x == y
		c.N = x < y
	case OpJMP:
		c.PC = uint32(in.Imm)
	case OpJZ:
		if c.Z {
			c.PC = uint32(in.Imm)
		}
	case OpJNZ:
		if !c.Z {
			c.PC = uint32(in.Imm)
		}
	case OpJLT:
		if c.N {
			c.PC = uint32(in.Imm)
		}
	case OpJGE:
		if !c.N {
			c.PC = uint32(in.Imm)
		}
	default:
		return errors.Errorf("unimplemented opcode 0x%02X", in.Op)
	}
	return nil
}

// ReadMatrix copies the matrix whose record lives at addr out of machine
// memory.
func (c *CPU) ReadMatrix(addr int64) (*matrix.Matrix, error) {
	data, err := c.Read64(addr)
	if err != nil {
		return nil, errors.Wrap(err, "matrix record")
	}
	rows, err := c.Read64(addr + 8)
	if err != nil {
		return nil, errors.Wrap(err, "matrix record")
	}
	cols, err := c.Read64(addr + 16)
	if err != nil {
		return nil, errors.Wrap(err, "matrix record")
	}
	if rows < 0 || cols < 0 || rows*cols > int64(len(c.Memory))/8 {
		return nil, errors.Errorf("matrix record at 0x%X has bad shape %dx%d", addr, rows, cols)
	}

	m := matrix.New(int(rows), int(cols))
	for i := range m.Data {
		f, err := c.ReadFloat(data + int64(i)*8)
		if err != nil {
			return nil, errors.Wrapf(err, "matrix element %d", i)
		}
		m.Data[i] = f
	}
	return m, nil
}

func formatFloat(v float64) string { return matrix.FormatFloat(v) }
