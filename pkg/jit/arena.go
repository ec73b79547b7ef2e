package jit

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"matscript/pkg/cpu"
	"matscript/pkg/matrix"
)

// outcome is the decoded result area of one native call.
type outcome struct {
	r0      int64
	f0      float64
	heapTop int64
	status  int64
	pc      uint32
}

func readOutcome(out []byte) outcome {
	le := binary.LittleEndian
	return outcome{
		r0:      int64(le.Uint64(out[outR0:])),
		f0:      math.Float64frombits(le.Uint64(out[outF0:])),
		heapTop: int64(le.Uint64(out[outHeap:])),
		status:  int64(le.Uint64(out[outStatus:])),
		pc:      uint32(le.Uint64(out[outPC:])),
	}
}

// fault turns a non-zero status into the same *cpu.Fault the interpreter
// raises for that condition. code is the machine code that ran.
func (o outcome) fault(code []byte, heapBase, heapSize int64) error {
	switch o.status {
	case statusOK:
		return nil
	case statusOutOfMemory:
		return &cpu.Fault{PC: o.pc, Msg: fmt.Sprintf("ALLOC: out of memory: %d of %d heap bytes in use", o.heapTop-heapBase, heapSize)}
	case statusNegativeAlloc:
		return &cpu.Fault{PC: o.pc, Msg: "ALLOC: negative allocation"}
	case statusStackOverflow:
		op := "?"
		if in, err := cpu.Decode(code, o.pc); err == nil {
			op = in.Info().Name
		}
		return &cpu.Fault{PC: o.pc, Msg: op + ": stack overflow"}
	}
	return &cpu.Fault{PC: o.pc, Msg: "unknown native status"}
}

// value copies the result of fn out of the arena mapped at base.
func (o outcome) value(fn Function, arena []byte, base int64) (Value, error) {
	if !fn.Return.IsMatrix() {
		return Value{Kind: ScalarKind, Scalar: o.f0}, nil
	}
	m, err := readArenaMatrix(arena, base, o.r0)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: MatrixKind, Matrix: m}, nil
}

// readArenaMatrix copies the matrix whose record is at absolute address
// addr out of mem, which is mapped at base.
func readArenaMatrix(mem []byte, base, addr int64) (*matrix.Matrix, error) {
	word := func(a int64) (int64, error) {
		off := a - base
		if off < 0 || off+8 > int64(len(mem)) {
			return 0, errors.Errorf("bad address 0x%X", a)
		}
		return int64(binary.LittleEndian.Uint64(mem[off:])), nil
	}

	var rec [3]int64
	for i := range rec {
		v, err := word(addr + int64(i)*8)
		if err != nil {
			return nil, errors.Wrap(err, "matrix record")
		}
		rec[i] = v
	}
	data, rows, cols := rec[0], rec[1], rec[2]
	if rows < 0 || cols < 0 || rows*cols > int64(len(mem))/8 {
		return nil, errors.Errorf("matrix record at 0x%X has bad shape %dx%d", addr, rows, cols)
	}

	m := matrix.New(int(rows), int(cols))
	for i := range m.Data {
		v, err := word(data + int64(i)*8)
		if err != nil {
			return nil, errors.Wrapf(err, "matrix element %d", i)
		}
		m.Data[i] = math.Float64frombits(uint64(v))
	}
	return m, nil
}

// arenaSize is the mapping needed for a call of fn: the result area plus
// its heap, capped by the heap limit.
func arenaSize(fn Function, heapLimit int64) (heap int64, total int) {
	heap = fn.HeapBytes
	if heap > heapLimit {
		heap = heapLimit
	}
	return heap, int(outSize + heap)
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}
