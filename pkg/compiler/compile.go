package compiler

import (
	"io"
	"log"

	"github.com/pkg/errors"
)

// Options controls compilation. A nil *Options means defaults.
type Options struct {
	// Name is recorded as the module name.
	Name string
	// Logger receives stage tracing. Nil discards it.
	Logger *log.Logger
	// DisableFolding keeps constant scalar expressions as written.
	DisableFolding bool
}

func (o *Options) normalize() Options {
	var n Options
	if o != nil {
		n = *o
	}
	if n.Name == "" {
		n.Name = "main"
	}
	if n.Logger == nil {
		n.Logger = log.New(io.Discard, "", 0)
	}
	return n
}

// Compile runs the whole front end and code generator over src. The first
// error aborts the pipeline and is returned as is: a *LexError, *ParseError
// or *CompileError.
func Compile(src string, opts *Options) (*Module, error) {
	o := opts.normalize()
	logger := o.Logger

	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	logger.Printf("lex: %d tokens", len(tokens))

	prog, err := Parse(tokens, src)
	if err != nil {
		return nil, err
	}
	logger.Printf("parse: %d functions", len(prog.Functions))

	if !o.DisableFolding {
		foldConstants(prog)
	}

	info, err := Infer(prog)
	if err != nil {
		return nil, err
	}
	for _, fn := range prog.Functions {
		logger.Printf("infer: fn %s -> %s", fn.Name, info.Returns[fn.Name])
	}

	mod, err := Generate(prog, info, NewSymbolTable())
	if err != nil {
		if _, ok := err.(*CompileError); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, "codegen")
	}
	mod.Name = o.Name
	logger.Printf("codegen: %d bytes of assembly, heap bound %d bytes", len(mod.Assembly), mod.HeapBytes)
	return mod, nil
}
