package jit

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrJit matches every *JitError.
	ErrJit = errors.New("jit error")

	// ErrNoFunction is wrapped by a JitError when the requested function is
	// not in the executable.
	ErrNoFunction = errors.New("no such function")

	// ErrUnsupported is wrapped by a JitError when the native backend cannot
	// run on this platform.
	ErrUnsupported = errors.New("native backend not supported on this platform")
)

// JitError reports a failure to turn a module into executable code or to
// run it: assembly, verification, a missing entry point, or a runtime fault.
type JitError struct {
	Op   string // "assemble", "verify", "load", "translate", "run"
	Func string // function being loaded or run, when there is one
	Err  error
}

func (e *JitError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("jit %s fn %s: %v", e.Op, e.Func, e.Err)
	}
	return fmt.Sprintf("jit %s: %v", e.Op, e.Err)
}

func (e *JitError) Unwrap() error { return e.Err }

func (e *JitError) Is(target error) bool { return target == ErrJit }
