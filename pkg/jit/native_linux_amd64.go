//go:build linux && amd64

package jit

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultBackend is the executor used when Options.Backend is empty.
const DefaultBackend = BackendNative

var (
	execOnce sync.Once
	execErr  error
)

// checkExec maps one page, makes it executable and unmaps it. Sandboxes
// that refuse executable mappings fail here rather than on the first call.
func checkExec() error {
	execOnce.Do(func() {
		page, err := unix.Mmap(-1, 0, unix.Getpagesize(),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
		if err != nil {
			execErr = errors.Wrap(err, "map code")
			return
		}
		defer unix.Munmap(page)
		if err := unix.Mprotect(page, unix.PROT_READ|unix.PROT_EXEC); err != nil {
			execErr = errors.Wrap(err, "protect code")
		}
	})
	return execErr
}

// native runs translated code in fresh executable and heap mappings per
// call.
type native struct {
	code      []byte
	prog      *x64Program
	heapLimit int64
	stackSize int64
}

func newNative(code []byte, opts Options) (backend, error) {
	if err := checkExec(); err != nil {
		return nil, &JitError{Op: "load", Err: errors.Wrapf(ErrUnsupported, "%v", err)}
	}
	prog, err := translate(code)
	if err != nil {
		return nil, &JitError{Op: "translate", Err: err}
	}
	return &native{
		code:      code,
		prog:      prog,
		heapLimit: opts.heapLimit(),
		stackSize: int64((opts.StackSize + 7) &^ 7),
	}, nil
}

func (b *native) name() Backend { return BackendNative }

func (b *native) call(fn Function) (Value, error) {
	entry, ok := b.prog.entry(fn.Entry)
	if !ok {
		return Value{}, errors.Errorf("entry 0x%04X has no translation", fn.Entry)
	}
	page := unix.Getpagesize()

	text, err := unix.Mmap(-1, 0, roundUp(len(b.prog.code), page),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return Value{}, errors.Wrap(err, "map code")
	}
	defer unix.Munmap(text)
	copy(text, b.prog.code)
	if err := unix.Mprotect(text, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return Value{}, errors.Wrap(err, "protect code")
	}

	heap, size := arenaSize(fn, b.heapLimit)
	arena, err := unix.Mmap(-1, 0, roundUp(size, page),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return Value{}, errors.Wrap(err, "map heap")
	}
	defer unix.Munmap(arena)

	codeBase := uintptr(unsafe.Pointer(&text[0]))
	base := uintptr(unsafe.Pointer(&arena[0]))
	heapStart := base + outSize
	purego.SyscallN(codeBase, heapStart, heapStart+uintptr(heap), base, codeBase+uintptr(entry), uintptr(b.stackSize))

	out := readOutcome(arena[:outSize])
	if err := out.fault(b.code, int64(heapStart), heap); err != nil {
		return Value{}, err
	}
	return out.value(fn, arena, int64(base))
}
