package compiler

// FuncSig describes one generated function.
type FuncSig struct {
	Name   string
	Return Shape
	// HeapBytes is the exact number of heap bytes one call allocates.
	HeapBytes int64
}

// Module is the output of code generation: assembly for the register
// machine plus what the engine needs to call into it.
type Module struct {
	Name      string
	Assembly  string
	Functions []FuncSig
	// HeapBytes bounds the heap use of any single call into the module.
	HeapBytes int64
}

// Lookup returns the signature of the function called name.
func (m *Module) Lookup(name string) (FuncSig, bool) {
	for _, f := range m.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return FuncSig{}, false
}
