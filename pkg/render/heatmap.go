// Package render draws matrix results as images.
package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"matscript/pkg/grid"
	"matscript/pkg/matrix"
)

// NaNColor marks elements that are not a number.
var NaNColor = color.RGBA{R: 0xFF, A: 0xFF}

// grayLevels maps m's elements onto 0..255, darkest for the smallest finite
// value. Infinities clamp to the ends. A matrix whose finite elements are
// all equal is drawn mid-gray.
func grayLevels(m *matrix.Matrix) []color.RGBA {
	lo, hi, _ := m.MinMax()

	px := make([]color.RGBA, len(m.Data))
	for i, v := range m.Data {
		var g uint8
		switch {
		case math.IsNaN(v):
			px[i] = NaNColor
			continue
		case math.IsInf(v, 1):
			g = 0xFF
		case math.IsInf(v, -1):
			g = 0
		case hi == lo:
			g = 0x80
		default:
			g = uint8(math.Round((v - lo) / (hi - lo) * 255))
		}
		px[i] = color.RGBA{R: g, G: g, B: g, A: 0xFF}
	}
	return px
}

// Heatmap renders m with one cell x cell square per element. Row 0 is at
// the top.
func Heatmap(m *matrix.Matrix, cell int) *image.RGBA {
	if cell < 1 {
		cell = 1
	}
	src := image.NewRGBA(image.Rect(0, 0, m.Cols, m.Rows))
	for i, c := range grayLevels(m) {
		x, y := grid.GetGridCoords(i, m.Cols)
		src.SetRGBA(x, y, c)
	}
	if cell == 1 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, m.Cols*cell, m.Rows*cell))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// WritePNG encodes the heatmap of m as a PNG.
func WritePNG(w io.Writer, m *matrix.Matrix, cell int) error {
	if m.Rows == 0 || m.Cols == 0 {
		return errors.Errorf("cannot render a %dx%d matrix", m.Rows, m.Cols)
	}
	return errors.Wrap(png.Encode(w, Heatmap(m, cell)), "encode png")
}

// SavePNG writes the heatmap of m to filename.
func SavePNG(filename string, m *matrix.Matrix, cell int) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WritePNG(f, m, cell); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
