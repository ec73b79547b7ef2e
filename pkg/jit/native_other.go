//go:build !(linux && amd64)

package jit

// DefaultBackend is the executor used when Options.Backend is empty.
const DefaultBackend = BackendInterp

func newNative(code []byte, opts Options) (backend, error) {
	if _, err := translate(code); err != nil {
		return nil, &JitError{Op: "translate", Err: err}
	}
	return nil, &JitError{Op: "load", Err: ErrUnsupported}
}
