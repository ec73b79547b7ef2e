//go:build desktop

package main

import (
	"testing"

	"matscript/pkg/matrix"
)

func TestCellSize(t *testing.T) {
	tests := []struct{ rows, cols, want int }{
		{2, 2, 256},
		{1, 3, 170},
		{600, 1, 1},
		{0, 0, 1},
	}
	for _, tt := range tests {
		if got := cellSize(tt.rows, tt.cols); got != tt.want {
			t.Errorf("cellSize(%d, %d) = %d, want %d", tt.rows, tt.cols, got, tt.want)
		}
	}
}

func TestCellAt(t *testing.T) {
	g := newGame("t", matrix.FromRows([][]float64{{1, 2, 3}, {4, 5, 6}}))
	if g.cell != 170 {
		t.Fatalf("cell = %d", g.cell)
	}
	if b := g.rendered.Bounds(); b.Dx() != 510 || b.Dy() != 340 {
		t.Errorf("heatmap %dx%d", b.Dx(), b.Dy())
	}
	tests := []struct {
		x, y     int
		row, col int
		ok       bool
	}{
		{0, 0, 0, 0, true},
		{171, 5, 0, 1, true},
		{509, 339, 1, 2, true},
		{510, 0, 0, 0, false},
		{0, 340, 0, 0, false},
		{-1, 3, 0, 0, false},
	}
	for _, tt := range tests {
		row, col, ok := g.cellAt(tt.x, tt.y)
		if ok != tt.ok || row != tt.row || col != tt.col {
			t.Errorf("cellAt(%d, %d) = %d, %d, %v", tt.x, tt.y, row, col, ok)
		}
	}
}
