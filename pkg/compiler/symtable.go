package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// slotSize is the frame space of one binding: a float64 or a record pointer.
const slotSize = 8

type Symbol struct {
	Offset int // negative offset from FP
	Shape  Shape
}

// SymbolTable maps the let bindings of the function being generated to
// frame slots. Locals are assigned negative offsets from FP.
type SymbolTable struct {
	function string
	locals   map[string]Symbol

	// Next available local offset (monotonically decreasing).
	nextLocal int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{}
}

func (s *SymbolTable) EnterFunction(name string) {
	s.function = name
	s.locals = make(map[string]Symbol)
	s.nextLocal = 0
}

func (s *SymbolTable) ExitFunction() {
	s.function = ""
	s.locals = nil
}

// Define binds name to a slot. A name that is already bound keeps its slot
// and takes the new shape; existed reports that case.
func (s *SymbolTable) Define(name string, shape Shape) (sym Symbol, existed bool) {
	if s.locals == nil {
		panic("Define called outside function")
	}
	if sym, ok := s.locals[name]; ok {
		sym.Shape = shape
		s.locals[name] = sym
		return sym, true
	}

	s.nextLocal -= slotSize
	sym = Symbol{Offset: s.nextLocal, Shape: shape}
	s.locals[name] = sym
	return sym, false
}

// Lookup returns the symbol and whether it was found.
func (s *SymbolTable) Lookup(name string) (Symbol, bool) {
	sym, ok := s.locals[name]
	return sym, ok
}

// FrameSize returns the bytes reserved so far by Define.
func (s *SymbolTable) FrameSize() int {
	return -s.nextLocal
}

// String returns a deterministically ordered dump of the table.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	if s.locals == nil {
		return "Locals: (no function)\n"
	}
	fmt.Fprintf(&sb, "Locals of %s:\n", s.function)
	names := make([]string, 0, len(s.locals))
	for name := range s.locals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sym := s.locals[name]
		fmt.Fprintf(&sb, "  %-20s  Offset: %d (%s)\n", name, sym.Offset, sym.Shape)
	}
	return sb.String()
}
