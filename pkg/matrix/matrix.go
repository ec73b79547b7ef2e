// Package matrix holds the host-side view of a matrix produced by compiled
// code: dimensions plus a row-major copy of the elements.
package matrix

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Matrix is a dense row-major matrix of float64 values.
type Matrix struct {
	Rows int
	Cols int
	Data []float64 // len(Data) == Rows*Cols
}

// New returns a zeroed rows x cols matrix.
func New(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// FromRows builds a matrix from nested rows. It panics on ragged input and
// is meant for tests and fixtures.
func FromRows(rows [][]float64) *Matrix {
	if len(rows) == 0 {
		return &Matrix{}
	}
	m := New(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.Cols {
			panic(fmt.Sprintf("matrix: row %d has %d elements, want %d", i, len(row), m.Cols))
		}
		copy(m.Data[i*m.Cols:], row)
	}
	return m
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

// Equal reports whether m and o have the same shape and identical elements.
func (m *Matrix) Equal(o *Matrix) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Rows != o.Rows || m.Cols != o.Cols || len(m.Data) != len(o.Data) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// MinMax returns the smallest and largest finite element. NaN and the
// infinities are skipped; ok is false when no finite element is left.
func (m *Matrix) MinMax() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range m.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// FormatFloat renders v the way results are printed everywhere in matscript.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// String renders the matrix row by row, one row per line:
//
//	[[6, 8],
//	 [10, 12]]
func (m *Matrix) String() string {
	if m == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < m.Rows; i++ {
		if i > 0 {
			sb.WriteString(",\n ")
		}
		sb.WriteByte('[')
		for j := 0; j < m.Cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(FormatFloat(m.At(i, j)))
		}
		sb.WriteByte(']')
	}
	sb.WriteByte(']')
	return sb.String()
}
