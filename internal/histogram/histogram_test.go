package histogram

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/nvandessel/latwalk/internal/lattice"
)

func TestArray_AddAt(t *testing.T) {
	a := New[float64](3, 4, 5)
	idx := [3]int{2, 1, 4}
	a.Add(idx[:], 1.5)
	a.Add(idx[:], 2)
	if got := a.At(2, 1, 4); got != 3.5 {
		t.Errorf("At(2,1,4) = %v, want 3.5", got)
	}
	if got := a.Sum(); got != 3.5 {
		t.Errorf("Sum() = %v, want 3.5", got)
	}
	if a.Len() != 60 {
		t.Errorf("Len() = %d, want 60", a.Len())
	}
}

func TestArray_OffsetPanics(t *testing.T) {
	tests := []struct {
		name string
		idx  []int
	}{
		{"negative", []int{-1, 0}},
		{"too large", []int{0, 2}},
		{"wrong rank", []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New[int64](2, 2)
			defer func() {
				if recover() == nil {
					t.Errorf("Offset(%v) did not panic", tt.idx)
				}
			}()
			a.Offset(tt.idx)
		})
	}
}

func TestArray_Merge(t *testing.T) {
	a := New[float64](2, 2)
	b := New[float64](2, 2)
	a.Set([]int{0, 1}, 1)
	b.Set([]int{0, 1}, 2)
	b.Set([]int{1, 1}, 4)
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if !slices.Equal(a.Data, []float64{0, 3, 0, 4}) {
		t.Errorf("Data = %v, want [0 3 0 4]", a.Data)
	}

	c := New[float64](2, 3)
	if err := a.Merge(c); !errors.Is(err, ErrExtentsMismatch) {
		t.Errorf("Merge() with other shape error = %v, want ErrExtentsMismatch", err)
	}
}

func TestArray_JSONValidate(t *testing.T) {
	a := New[int64](2, 3)
	a.Set([]int{1, 2}, 7)
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Array[int64]
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if decoded.At(1, 2) != 7 {
		t.Errorf("At(1,2) = %d, want 7", decoded.At(1, 2))
	}

	decoded.Data = decoded.Data[:5]
	if err := decoded.Validate(); err == nil {
		t.Error("Validate() on truncated data returned nil")
	}
}

func walkOf(ps ...lattice.Point) []lattice.Point { return ps }

func TestBestTable_Offer(t *testing.T) {
	b := NewBestTable(3, 3, 2)
	first := walkOf(lattice.Point{0, 0}, lattice.Point{1, 0}, lattice.Point{2, 0})
	second := walkOf(lattice.Point{0, 0}, lattice.Point{-1, 0}, lattice.Point{-2, 0})

	tests := []struct {
		name    string
		w       float64
		points  []lattice.Point
		changed bool
		want    []lattice.Point
	}{
		{"first record", 2, first, true, first},
		{"equal weight ignored", 2, second, false, first},
		{"smaller weight ignored", 1, second, false, first},
		{"larger weight replaces", 3, second, true, second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Offer(1, 2, tt.w, tt.points); got != tt.changed {
				t.Errorf("Offer() = %v, want %v", got, tt.changed)
			}
			if got := b.Walk(1, 2); !slices.Equal(got, tt.want) {
				t.Errorf("Walk(1,2) = %v, want %v", got, tt.want)
			}
		})
	}
	if b.Weight(1, 2) != 3 {
		t.Errorf("Weight(1,2) = %v, want 3", b.Weight(1, 2))
	}
	if b.Filled() != 1 {
		t.Errorf("Filled() = %d, want 1", b.Filled())
	}
	if b.Walk(0, 0) != nil {
		t.Errorf("Walk(0,0) = %v, want nil", b.Walk(0, 0))
	}
}

func TestBestTable_MergeTieBreak(t *testing.T) {
	hi := walkOf(lattice.Point{0, 0}, lattice.Point{1, 0})
	lo := walkOf(lattice.Point{0, 0}, lattice.Point{-1, 0})

	a := NewBestTable(1, 2, 1)
	a.Offer(0, 0, 5, hi)
	a.Offer(0, 1, 1, hi)

	b := NewBestTable(1, 2, 1)
	b.Offer(0, 0, 5, lo)
	b.Offer(0, 1, 2, hi)

	// Merging in either order gives the same table.
	ab, ba := a.Clone(), b.Clone()
	if err := ab.Merge(b); err != nil {
		t.Fatal(err)
	}
	if err := ba.Merge(a); err != nil {
		t.Fatal(err)
	}
	for _, tbl := range []*BestTable{ab, ba} {
		if got := tbl.Walk(0, 0); !slices.Equal(got, lo) {
			t.Errorf("tie Walk(0,0) = %v, want %v", got, lo)
		}
		if got := tbl.Weight(0, 1); got != 2 {
			t.Errorf("Weight(0,1) = %v, want 2", got)
		}
	}
	if !slices.Equal(ab.Walks.Data, ba.Walks.Data) || !slices.Equal(ab.Weights.Data, ba.Weights.Data) {
		t.Error("merge result depends on order")
	}
}
