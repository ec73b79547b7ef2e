package jit

import (
	"io"
	"log"

	"github.com/pkg/errors"

	"matscript/pkg/cpu"
)

// Backend names an executor for verified machine code.
type Backend string

const (
	// BackendInterp runs the code on the register machine in pkg/cpu.
	BackendInterp Backend = "interp"
	// BackendNative translates the code to x86-64 and calls it directly.
	BackendNative Backend = "native"
)

// Options controls an Engine. A nil *Options means defaults.
type Options struct {
	// Backend selects the executor. Empty means DefaultBackend, falling
	// back to the interpreter where native code cannot be mapped.
	Backend Backend
	// StackSize is the machine stack in bytes (default 64 KiB).
	StackSize int
	// MaxMemory caps null area, stack and heap together (default 64 MiB).
	MaxMemory int
	// StepLimit stops the interpreter after this many instructions. Zero
	// means unlimited. The native backend ignores it.
	StepLimit uint64
	// Logger receives load and run tracing. Nil discards it.
	Logger *log.Logger

	fallback bool
}

func (o *Options) normalize() Options {
	var n Options
	if o != nil {
		n = *o
	}
	if n.Backend == "" {
		n.Backend = DefaultBackend
		n.fallback = true
	}
	if n.StackSize <= 0 {
		n.StackSize = cpu.DefaultStackSize
	}
	if n.MaxMemory <= 0 {
		n.MaxMemory = cpu.DefaultMaxMemory
	}
	if n.Logger == nil {
		n.Logger = log.New(io.Discard, "", 0)
	}
	return n
}

func (o Options) machineConfig() cpu.Config {
	return cpu.Config{StackSize: o.StackSize, MaxMemory: o.MaxMemory, StepLimit: o.StepLimit}
}

// heapLimit is the heap space left once the null word and the stack are
// carved out of MaxMemory.
func (o Options) heapLimit() int64 {
	stack := int64((o.StackSize + 7) &^ 7)
	limit := int64(o.MaxMemory) - 8 - stack
	if limit < 0 {
		return 0
	}
	return limit
}

// ParseBackend checks a backend name given on a command line. The empty
// name is kept and selects DefaultBackend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case "", BackendInterp, BackendNative:
		return b, nil
	}
	return "", &JitError{Op: "load", Err: errors.Errorf("unknown backend %q (want interp or native)", s)}
}
