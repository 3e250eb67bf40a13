// Package walk implements the live lattice walk mutated by the sampler.
//
// A Walk is an ordered sequence of points starting at the lattice origin. It
// is indexed two ways: by position in the sequence and by point identity.
// Both indexes are updated in the same call for every Append and RemoveLast,
// so membership and step-adjacency queries stay O(1) amortized while the walk
// grows and shrinks one point at a time under depth-first backtracking.
package walk

import (
	"iter"
	"strings"

	"github.com/nvandessel/latwalk/internal/lattice"
)

// Walk is an append/remove-last sequence of lattice points. It is not safe
// for concurrent use.
type Walk struct {
	lattice lattice.Lattice
	points  []lattice.Point

	// occurrences maps a point to the stack of sequence positions holding it.
	// Entries whose stack is empty are kept so their backing arrays are reused.
	occurrences map[lattice.Point][]int
}

// New creates a walk on l holding only the origin. capacity is the expected
// maximum number of steps.
func New(l lattice.Lattice, capacity int) *Walk {
	if capacity < 0 {
		capacity = 0
	}
	w := &Walk{
		lattice:     l,
		points:      make([]lattice.Point, 0, capacity+1),
		occurrences: make(map[lattice.Point][]int, capacity+1),
	}
	w.push(l.Origin())
	return w
}

// Lattice returns the lattice the walk lives on.
func (w *Walk) Lattice() lattice.Lattice { return w.lattice }

// Append adds p as the new last point. No adjacency or self-avoidance check
// is made.
func (w *Walk) Append(p lattice.Point) {
	w.push(p)
}

// RemoveLast removes the most recently appended point. It panics if only the
// origin remains.
func (w *Walk) RemoveLast() {
	if len(w.points) <= 1 {
		panic("walk: RemoveLast on a walk holding only the origin")
	}
	last := len(w.points) - 1
	p := w.points[last]
	occ := w.occurrences[p]
	w.occurrences[p] = occ[:len(occ)-1]
	w.points = w.points[:last]
}

func (w *Walk) push(p lattice.Point) {
	w.occurrences[p] = append(w.occurrences[p], len(w.points))
	w.points = append(w.points, p)
}

// Contains reports whether p appears anywhere in the walk.
func (w *Walk) Contains(p lattice.Point) bool {
	return len(w.occurrences[p]) > 0
}

// Occurrences returns how many times p appears in the walk.
func (w *Walk) Occurrences(p lattice.Point) int {
	return len(w.occurrences[p])
}

// IsStepAdjacent reports whether, for some occurrence of y, the point just
// before or just after it in walk order is x.
func (w *Walk) IsStepAdjacent(x, y lattice.Point) bool {
	for _, i := range w.occurrences[y] {
		if i > 0 && w.points[i-1] == x {
			return true
		}
		if i+1 < len(w.points) && w.points[i+1] == x {
			return true
		}
	}
	return false
}

// Len returns the number of steps, which excludes the origin.
func (w *Walk) Len() int { return len(w.points) - 1 }

// At returns the i-th point; At(0) is the origin.
func (w *Walk) At(i int) lattice.Point { return w.points[i] }

// First returns the origin.
func (w *Walk) First() lattice.Point { return w.points[0] }

// Last returns the most recently appended point.
func (w *Walk) Last() lattice.Point { return w.points[len(w.points)-1] }

// Points returns the underlying sequence. Callers must not modify it and must
// not retain it across mutations.
func (w *Walk) Points() []lattice.Point { return w.points }

// All iterates the points from the origin to the last point.
func (w *Walk) All() iter.Seq2[int, lattice.Point] {
	return func(yield func(int, lattice.Point) bool) {
		for i, p := range w.points {
			if !yield(i, p) {
				return
			}
		}
	}
}

// Backward iterates the points from the last point back to the origin.
func (w *Walk) Backward() iter.Seq2[int, lattice.Point] {
	return func(yield func(int, lattice.Point) bool) {
		for i := len(w.points) - 1; i >= 0; i-- {
			if !yield(i, w.points[i]) {
				return
			}
		}
	}
}

// String renders the walk as "(0,0) -- (1,0) -- ...".
func (w *Walk) String() string {
	var b strings.Builder
	for i, p := range w.points {
		if i > 0 {
			b.WriteString(" -- ")
		}
		b.WriteString(p.String())
	}
	return b.String()
}
