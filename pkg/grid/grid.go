// Package grid converts between row-major element indices and cell
// coordinates.
package grid

// GetGridCoords returns the column x and row y of element index in a grid
// cols wide.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// CellAt returns the cell holding pixel (px, py) when every cell is size
// pixels square, or false when the pixel lies outside a cols x rows grid.
func CellAt(px, py, size, cols, rows int) (x, y int, ok bool) {
	if px < 0 || py < 0 || size < 1 {
		return 0, 0, false
	}
	x, y = px/size, py/size
	if x >= cols || y >= rows {
		return 0, 0, false
	}
	return x, y, true
}
