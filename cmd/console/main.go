// Command console compiles a MatrixScript file, runs its main function and
// prints the result.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"matscript/pkg/compiler"
	"matscript/pkg/jit"
	"matscript/pkg/render"
	"matscript/pkg/utils"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main without the process exit: 0 on success, 1 when any pipeline
// stage fails, 2 on bad usage.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.SetOutput(stderr)
	backendName := fs.String("backend", "", "executor: interp or native (default "+string(jit.DefaultBackend)+")")
	showAsm := fs.Bool("show-asm", false, "print the generated assembly")
	pngPath := fs.String("png", "", "also write a matrix result as a heatmap PNG")
	cell := fs.Int("cell", 16, "heatmap cell size in pixels")
	verbose := fs.Bool("v", false, "trace pipeline stages to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: console [flags] FILE")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	backend, err := jit.ParseBackend(*backendName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	var logger *log.Logger
	if *verbose {
		logger = log.New(stderr, "console: ", 0)
	}

	fullPath, src, err := utils.ReadSource(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if logger != nil {
		logger.Printf("compiling %s", fullPath)
	}

	mod, err := compiler.Compile(src, &compiler.Options{Name: utils.ModuleName(fullPath), Logger: logger})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *showAsm {
		fmt.Fprintf(stdout, "Generated Assembly:\n%s\n", mod.Assembly)
	}

	engine := jit.New(&jit.Options{Backend: backend, Logger: logger})
	v, err := engine.Run(mod, "main")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, v.Format())

	if *pngPath != "" {
		if v.Kind != jit.MatrixKind {
			fmt.Fprintln(stderr, "-png needs a matrix result")
			return 1
		}
		if err := render.SavePNG(*pngPath, v.Matrix, *cell); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	return 0
}
