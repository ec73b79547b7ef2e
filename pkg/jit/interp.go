package jit

import (
	"matscript/pkg/cpu"
)

// interp runs verified code on a fresh cpu.CPU per call.
type interp struct {
	code []byte
	cfg  cpu.Config
}

func newInterp(code []byte, opts Options) *interp {
	return &interp{code: code, cfg: opts.machineConfig()}
}

func (b *interp) name() Backend { return BackendInterp }

func (b *interp) call(fn Function) (Value, error) {
	vm := cpu.NewCPU(b.code, b.cfg)
	if err := vm.Call(fn.Entry); err != nil {
		return Value{}, err
	}
	if !fn.Return.IsMatrix() {
		return Value{Kind: ScalarKind, Scalar: vm.FRegs[0]}, nil
	}
	m, err := vm.ReadMatrix(vm.Regs[0])
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: MatrixKind, Matrix: m}, nil
}
