//go:build desktop

// Command desktop compiles a MatrixScript file, runs its main function and
// shows a matrix result as a heatmap. Hovering a cell prints its value.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"matscript/pkg/compiler"
	"matscript/pkg/grid"
	"matscript/pkg/jit"
	"matscript/pkg/matrix"
	"matscript/pkg/render"
	"matscript/pkg/utils"
)

const (
	maxWindow = 512
	statusBar = 16
)

type Game struct {
	m        *matrix.Matrix
	title    string
	cell     int
	heatmap  *ebiten.Image // built on the first Draw
	rendered *image.RGBA
}

func newGame(title string, m *matrix.Matrix) *Game {
	cell := cellSize(m.Rows, m.Cols)
	return &Game{m: m, title: title, cell: cell, rendered: render.Heatmap(m, cell)}
}

// cellSize picks the largest cell that keeps the heatmap inside maxWindow.
func cellSize(rows, cols int) int {
	side := max(rows, cols)
	if side == 0 {
		return 1
	}
	return max(1, maxWindow/side)
}

// cellAt maps a cursor position to the element under it.
func (g *Game) cellAt(x, y int) (row, col int, ok bool) {
	col, row, ok = grid.CellAt(x, y, g.cell, g.m.Cols, g.m.Rows)
	return row, col, ok
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.heatmap == nil {
		g.heatmap = ebiten.NewImageFromImage(g.rendered)
	}
	screen.DrawImage(g.heatmap, nil)

	status := fmt.Sprintf("%s: %dx%d", g.title, g.m.Rows, g.m.Cols)
	if row, col, ok := g.cellAt(ebiten.CursorPosition()); ok {
		status += fmt.Sprintf("  [%d][%d] = %s", row, col, matrix.FormatFloat(g.m.At(row, col)))
	}
	ebitenutil.DebugPrintAt(screen, status, 0, g.m.Rows*g.cell)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return max(g.m.Cols*g.cell, 256), g.m.Rows*g.cell + statusBar
}

func main() {
	backendName := flag.String("backend", "", "executor: interp or native (default "+string(jit.DefaultBackend)+")")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: desktop [-backend interp|native] FILE")
		os.Exit(2)
	}
	backend, err := jit.ParseBackend(*backendName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fullPath, src, err := utils.ReadSource(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	name := utils.ModuleName(fullPath)
	mod, err := compiler.Compile(src, &compiler.Options{Name: name})
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}
	v, err := jit.New(&jit.Options{Backend: backend}).Run(mod, "main")
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	if v.Kind != jit.MatrixKind {
		// Nothing to draw for a scalar.
		fmt.Println(v.Format())
		return
	}

	game := newGame(name, v.Matrix)
	w, h := game.Layout(0, 0)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle("MatrixScript: " + name)
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
