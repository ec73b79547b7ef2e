package matrix

import (
	"math"
	"testing"
)

func TestFromRowsAndAt(t *testing.T) {
	m := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	if m.Rows != 2 || m.Cols != 3 {
		t.Fatalf("shape: got %dx%d, want 2x3", m.Rows, m.Cols)
	}
	if got := m.At(1, 2); got != 6 {
		t.Errorf("At(1,2): got %v, want 6", got)
	}
	if got := m.At(0, 1); got != 2 {
		t.Errorf("At(0,1): got %v, want 2", got)
	}
}

func TestFromRowsRagged(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for ragged rows")
		}
	}()
	FromRows([][]float64{{1, 2}, {3}})
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		m    *Matrix
		want string
	}{
		{"2x2", FromRows([][]float64{{6, 8}, {10, 12}}), "[[6, 8],\n [10, 12]]"},
		{"1x3", FromRows([][]float64{{1.5, -2, 3}}), "[[1.5, -2, 3]]"},
		{"nil", nil, "<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	a := FromRows([][]float64{{1, 2}, {3, 4}})
	b := FromRows([][]float64{{1, 2}, {3, 4}})
	c := FromRows([][]float64{{1, 2, 3, 4}})
	if !a.Equal(b) {
		t.Errorf("identical matrices compare unequal")
	}
	if a.Equal(c) {
		t.Errorf("2x2 and 1x4 compare equal")
	}
}

func TestMinMax(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name   string
		data   []float64
		lo, hi float64
		ok     bool
	}{
		{"Plain", []float64{1, 2, 3, 4}, 1, 4, true},
		{"Negative", []float64{-3, 0.5, -7}, -7, 0.5, true},
		{"SkipsNaN", []float64{nan, 2, nan, -1}, -1, 2, true},
		{"SkipsInf", []float64{-inf, 5, inf}, 5, 5, true},
		{"NoFinite", []float64{nan, inf, -inf}, 0, 0, false},
		{"Empty", nil, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Matrix{Rows: 1, Cols: len(tt.data), Data: tt.data}
			lo, hi, ok := m.MinMax()
			if lo != tt.lo || hi != tt.hi || ok != tt.ok {
				t.Errorf("got (%v, %v, %v), want (%v, %v, %v)", lo, hi, ok, tt.lo, tt.hi, tt.ok)
			}
		})
	}
}
