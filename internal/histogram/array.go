// Package histogram provides the dense multi-dimensional arrays used for the
// weighted observable accumulators and the best-sample tables, together with
// the reductions needed to combine results from independent workers.
package histogram

import (
	"errors"
	"fmt"
	"slices"
)

// ErrExtentsMismatch is returned when combining arrays of different shapes.
var ErrExtentsMismatch = errors.New("histogram: extents mismatch")

// Number is the element type of an Array.
type Number interface {
	~int64 | ~float64
}

// Array is a dense row-major array with fixed extents.
type Array[T Number] struct {
	Extents []int `json:"extents"`
	Data    []T   `json:"data"`
}

// New allocates a zeroed array with the given extents.
func New[T Number](extents ...int) *Array[T] {
	size := 1
	for _, e := range extents {
		if e <= 0 {
			panic(fmt.Sprintf("histogram: non-positive extent in %v", extents))
		}
		size *= e
	}
	return &Array[T]{
		Extents: slices.Clone(extents),
		Data:    make([]T, size),
	}
}

// Offset returns the flat position of idx. It panics if idx is out of range.
func (a *Array[T]) Offset(idx []int) int {
	if len(idx) != len(a.Extents) {
		panic(fmt.Sprintf("histogram: index %v has rank %d, want %d", idx, len(idx), len(a.Extents)))
	}
	off := 0
	for d, i := range idx {
		if i < 0 || i >= a.Extents[d] {
			panic(fmt.Sprintf("histogram: index %v out of range for extents %v", idx, a.Extents))
		}
		off = off*a.Extents[d] + i
	}
	return off
}

// At returns the value at idx.
func (a *Array[T]) At(idx ...int) T { return a.Data[a.Offset(idx)] }

// Set stores v at idx.
func (a *Array[T]) Set(idx []int, v T) { a.Data[a.Offset(idx)] = v }

// Add adds v to the value at idx.
func (a *Array[T]) Add(idx []int, v T) { a.Data[a.Offset(idx)] += v }

// Len returns the number of cells.
func (a *Array[T]) Len() int { return len(a.Data) }

// Sum returns the sum over all cells.
func (a *Array[T]) Sum() T {
	var s T
	for _, v := range a.Data {
		s += v
	}
	return s
}

// SameShape reports whether a and b have identical extents.
func (a *Array[T]) SameShape(b *Array[T]) bool {
	return slices.Equal(a.Extents, b.Extents)
}

// Merge adds every cell of b into a.
func (a *Array[T]) Merge(b *Array[T]) error {
	if !a.SameShape(b) {
		return fmt.Errorf("%w: %v vs %v", ErrExtentsMismatch, a.Extents, b.Extents)
	}
	for i, v := range b.Data {
		a.Data[i] += v
	}
	return nil
}

// Clone returns a deep copy of a.
func (a *Array[T]) Clone() *Array[T] {
	return &Array[T]{Extents: slices.Clone(a.Extents), Data: slices.Clone(a.Data)}
}

// Validate checks that Data matches Extents, as required after decoding.
func (a *Array[T]) Validate() error {
	if a == nil {
		return errors.New("histogram: nil array")
	}
	size := 1
	for _, e := range a.Extents {
		if e <= 0 {
			return fmt.Errorf("histogram: non-positive extent in %v", a.Extents)
		}
		size *= e
	}
	if len(a.Data) != size {
		return fmt.Errorf("histogram: %d cells for extents %v, want %d", len(a.Data), a.Extents, size)
	}
	return nil
}
