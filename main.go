//go:build !js

// Command matscript compiles MatrixScript files into loadable images and
// runs them.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"matscript/pkg/compiler"
	"matscript/pkg/jit"
	"matscript/pkg/utils"
)

const imageExt = ".mxo"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("matscript", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inPath := fs.String("in", "", "input source file path")
	outPath := fs.String("out", "", "output image path (default: input with .mxo extension)")
	runProgram := fs.Bool("run", false, "run main of each compiled image")
	runBinPath := fs.String("run-bin", "", "run main of an existing image file")
	backendName := fs.String("backend", "", "executor: interp or native (default "+string(jit.DefaultBackend)+")")
	jobs := fs.Int("j", runtime.NumCPU(), "number of files compiled in parallel")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	inputs := fs.Args()
	if *inPath != "" {
		inputs = append([]string{*inPath}, inputs...)
	}

	if *runProgram && *runBinPath != "" {
		fmt.Fprintln(stderr, "use either -run or -run-bin, not both")
		return 2
	}
	if *outPath != "" && len(inputs) != 1 {
		fmt.Fprintln(stderr, "-out needs exactly one input file")
		return 2
	}
	if len(inputs) == 0 && *runBinPath == "" {
		fmt.Fprintln(stderr, "nothing to do: provide source files (or -in) to compile, -run to also run them, or -run-bin <file> to run an existing image")
		fs.Usage()
		return 2
	}
	if *jobs < 1 {
		fmt.Fprintln(stderr, "-j must be at least 1")
		return 2
	}
	backend, err := jit.ParseBackend(*backendName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	engine := jit.New(&jit.Options{Backend: backend})

	outputs := make([]string, len(inputs))
	for i, in := range inputs {
		outputs[i] = defaultOutputPath(in)
	}
	if *outPath != "" {
		outputs[0] = *outPath
	}

	// Each file runs its own pipeline; only the report lines are shared.
	var mu sync.Mutex
	report := func(format string, a ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(stdout, format, a...)
	}

	var g errgroup.Group
	g.SetLimit(*jobs)
	for i := range inputs {
		in, out := inputs[i], outputs[i]
		g.Go(func() error {
			size, err := buildImage(engine, in, out)
			if err != nil {
				return errors.Wrap(err, in)
			}
			report("compiled %d bytes -> %s\n", size, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var runTargets []string
	switch {
	case *runBinPath != "":
		runTargets = []string{*runBinPath}
	case *runProgram:
		runTargets = outputs
	}
	for _, target := range runTargets {
		v, err := runImage(engine, target)
		if err != nil {
			fmt.Fprintf(stderr, "run failed for %q: %v\n", target, err)
			return 1
		}
		fmt.Fprintf(stdout, "%s: %s\n", target, v.Format())
	}
	return 0
}

func defaultOutputPath(inPath string) string {
	if strings.HasSuffix(inPath, imageExt) {
		return inPath + imageExt
	}
	return utils.ReplaceExt(inPath, imageExt)
}

// buildImage compiles the source at in, loads it to check the code and
// writes the image to out. It returns the machine code size.
func buildImage(engine *jit.Engine, in, out string) (int, error) {
	fullPath, src, err := utils.ReadSource(in)
	if err != nil {
		return 0, err
	}
	mod, err := compiler.Compile(src, &compiler.Options{Name: utils.ModuleName(fullPath)})
	if err != nil {
		return 0, err
	}
	exe, err := engine.Load(mod)
	if err != nil {
		return 0, err
	}
	if err := jit.SaveImageFile(out, exe); err != nil {
		return 0, err
	}
	return len(exe.Code), nil
}

func runImage(engine *jit.Engine, path string) (jit.Value, error) {
	img, err := jit.OpenImageFile(path)
	if err != nil {
		return jit.Value{}, err
	}
	exe, err := engine.LoadImage(img)
	if err != nil {
		return jit.Value{}, err
	}
	return exe.Run("main")
}
