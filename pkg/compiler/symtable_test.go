package compiler

import (
	"strings"
	"testing"
)

func TestSymbolTable(t *testing.T) {
	t.Run("LocalAllocation", func(t *testing.T) {
		s := NewSymbolTable()
		s.EnterFunction("main")
		defer s.ExitFunction()

		a, existed := s.Define("a", ScalarShape())
		if existed {
			t.Error("a: expected a fresh slot")
		}
		b, _ := s.Define("b", MatrixShape(2, 2))

		if a.Offset != -8 {
			t.Errorf("a offset: expected -8, got %d", a.Offset)
		}
		if b.Offset != -16 {
			t.Errorf("b offset: expected -16, got %d", b.Offset)
		}
		if s.FrameSize() != 16 {
			t.Errorf("frame size: expected 16, got %d", s.FrameSize())
		}
	})

	t.Run("RebindingReusesSlot", func(t *testing.T) {
		s := NewSymbolTable()
		s.EnterFunction("main")
		defer s.ExitFunction()

		first, _ := s.Define("x", ScalarShape())
		second, existed := s.Define("x", MatrixShape(1, 3))
		if !existed {
			t.Error("expected existed = true on rebinding")
		}
		if first.Offset != second.Offset {
			t.Errorf("offsets differ: %d vs %d", first.Offset, second.Offset)
		}
		got, ok := s.Lookup("x")
		if !ok || got.Shape != MatrixShape(1, 3) {
			t.Errorf("lookup after rebinding: got %v %v", got, ok)
		}
		if s.FrameSize() != 8 {
			t.Errorf("frame size: expected 8, got %d", s.FrameSize())
		}
	})

	t.Run("FunctionsAreIsolated", func(t *testing.T) {
		s := NewSymbolTable()
		s.EnterFunction("f")
		s.Define("a", ScalarShape())
		s.ExitFunction()

		s.EnterFunction("main")
		defer s.ExitFunction()
		if _, ok := s.Lookup("a"); ok {
			t.Error("a leaked from f into main")
		}
		sym, _ := s.Define("b", ScalarShape())
		if sym.Offset != -8 {
			t.Errorf("b offset: expected -8, got %d", sym.Offset)
		}
	})

	t.Run("DefineOutsideFunctionPanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		NewSymbolTable().Define("a", ScalarShape())
	})

	t.Run("String", func(t *testing.T) {
		s := NewSymbolTable()
		if got := s.String(); got != "Locals: (no function)\n" {
			t.Errorf("empty table: got %q", got)
		}
		s.EnterFunction("main")
		s.Define("zeta", ScalarShape())
		s.Define("alpha", MatrixShape(2, 3))
		out := s.String()
		if !strings.HasPrefix(out, "Locals of main:") {
			t.Errorf("missing header: %q", out)
		}
		if strings.Index(out, "alpha") > strings.Index(out, "zeta") {
			t.Errorf("names not sorted: %q", out)
		}
		if !strings.Contains(out, "matrix(2x3)") {
			t.Errorf("missing shape: %q", out)
		}
	})
}
