package observables

import (
	"github.com/nvandessel/latwalk/internal/lattice"
	"github.com/nvandessel/latwalk/internal/walk"
)

// NearestNeighbour counts pairs of walk points that are lattice neighbours
// but not consecutive in walk order. Contacts with the origin are not counted.
type NearestNeighbour struct {
	count int
	buf   []lattice.Point
}

// NewNearestNeighbour creates a tracker for walks on l.
func NewNearestNeighbour(l lattice.Lattice) *NearestNeighbour {
	return &NearestNeighbour{buf: make([]lattice.Point, 0, l.Coordination())}
}

// RegisterStep adds the contacts made by the last point of w.
func (nn *NearestNeighbour) RegisterStep(w *walk.Walk) {
	nn.count += nn.contacts(w)
}

// UnregisterStep removes the contacts made by the last point of w.
func (nn *NearestNeighbour) UnregisterStep(w *walk.Walk) {
	nn.count -= nn.contacts(w)
	if nn.count < 0 {
		panic("observables: nearest-neighbour count went negative")
	}
}

// Count returns the current number of contacts.
func (nn *NearestNeighbour) Count() int { return nn.count }

func (nn *NearestNeighbour) contacts(w *walk.Walk) int {
	x := w.Last()
	origin := w.First()
	c := 0
	nn.buf = w.Lattice().AppendNeighbours(nn.buf[:0], x)
	for _, y := range nn.buf {
		if y == origin {
			continue
		}
		if w.Contains(y) && !w.IsStepAdjacent(x, y) {
			c++
		}
	}
	return c
}
