// Package jit turns a compiled module into executable code and runs its
// functions in-process, on the register machine or natively.
package jit

import (
	"log"

	"github.com/pkg/errors"

	"matscript/pkg/asm"
	"matscript/pkg/compiler"
	"matscript/pkg/cpu"
)

// Engine loads modules with one set of Options.
type Engine struct {
	opts Options
	log  *log.Logger
}

func New(opts *Options) *Engine {
	o := opts.normalize()
	return &Engine{opts: o, log: o.Logger}
}

// Backend reports the executor this engine loads modules for.
func (e *Engine) Backend() Backend { return e.opts.Backend }

// Function is one callable entry point of an Executable.
type Function struct {
	Name      string
	Entry     uint32 // code address
	Return    compiler.Shape
	HeapBytes int64
}

// Executable is a verified code image bound to a backend. Every Run gets a
// fresh machine: nothing survives a call.
type Executable struct {
	Name      string
	Code      []byte
	Assembly  string
	Functions []Function
	HeapBytes int64

	backend backend
	log     *log.Logger
}

// backend executes one function of verified code and copies its result out.
type backend interface {
	call(fn Function) (Value, error)
	name() Backend
}

// Load assembles the module, verifies the machine code and its entry
// points and prepares the configured backend.
func (e *Engine) Load(mod *compiler.Module) (*Executable, error) {
	img, err := asm.Assemble(mod.Assembly)
	if err != nil {
		return nil, &JitError{Op: "assemble", Err: err}
	}

	funcs := make([]Function, 0, len(mod.Functions))
	for _, sig := range mod.Functions {
		entry, ok := img.Labels[sig.Name]
		if !ok {
			return nil, &JitError{Op: "load", Func: sig.Name, Err: errors.New("no code for function")}
		}
		funcs = append(funcs, Function{Name: sig.Name, Entry: entry, Return: sig.Return, HeapBytes: sig.HeapBytes})
	}

	return e.bind(&Executable{
		Name:      mod.Name,
		Code:      img.Code,
		Assembly:  mod.Assembly,
		Functions: funcs,
		HeapBytes: mod.HeapBytes,
	})
}

// bind verifies exe and attaches the engine's backend to it.
func (e *Engine) bind(exe *Executable) (*Executable, error) {
	entries := make([]uint32, len(exe.Functions))
	for i, fn := range exe.Functions {
		entries[i] = fn.Entry
	}
	if err := cpu.Verify(exe.Code, entries...); err != nil {
		return nil, &JitError{Op: "verify", Err: err}
	}

	var err error
	switch e.opts.Backend {
	case BackendInterp:
		exe.backend = newInterp(exe.Code, e.opts)
	case BackendNative:
		exe.backend, err = newNative(exe.Code, e.opts)
		if err != nil && e.opts.fallback && errors.Is(err, ErrUnsupported) {
			e.log.Printf("load: %s: %v, using interp", exe.Name, err)
			exe.backend, err = newInterp(exe.Code, e.opts), nil
		}
	default:
		err = &JitError{Op: "load", Err: errors.Errorf("unknown backend %q", e.opts.Backend)}
	}
	if err != nil {
		return nil, err
	}
	exe.log = e.log
	e.log.Printf("load: %s, %d bytes of code, %d functions, backend %s",
		exe.Name, len(exe.Code), len(exe.Functions), exe.backend.name())
	return exe, nil
}

// Run loads mod and runs the function called name.
func (e *Engine) Run(mod *compiler.Module, name string) (Value, error) {
	exe, err := e.Load(mod)
	if err != nil {
		return Value{}, err
	}
	return exe.Run(name)
}

// Lookup returns the function called name.
func (x *Executable) Lookup(name string) (Function, bool) {
	for _, fn := range x.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// Run calls the function called name and returns its result.
func (x *Executable) Run(name string) (Value, error) {
	fn, ok := x.Lookup(name)
	if !ok {
		return Value{}, &JitError{Op: "run", Func: name, Err: ErrNoFunction}
	}
	v, err := x.backend.call(fn)
	if err != nil {
		return Value{}, &JitError{Op: "run", Func: name, Err: err}
	}
	x.log.Printf("run: fn %s -> %s", name, v.Shape())
	return v, nil
}
