// Package lattice defines the lattice geometry consumed by walks and trackers:
// points, neighbour enumeration, coordination number and the faces bordering
// each lattice edge.
package lattice

import (
	"fmt"
	"sort"
	"strings"
)

// Point is a lattice coordinate. Points are comparable and usable as map keys.
type Point [2]int

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p[0] + q[0], p[1] + q[1]} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p[0] - q[0], p[1] - q[1]} }

// Scale returns p*k.
func (p Point) Scale(k int) Point { return Point{p[0] * k, p[1] * k} }

// Sum returns the sum of the coordinates.
func (p Point) Sum() int { return p[0] + p[1] }

// NormSquare returns |p|^2 in lattice coordinates.
func (p Point) NormSquare() int64 {
	x, y := int64(p[0]), int64(p[1])
	return x*x + y*y
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p[0], p[1]) }

// Lattice is the geometry a walk lives on.
type Lattice interface {
	// Name identifies the lattice in configs and checkpoints.
	Name() string

	// Coordination is the number of neighbours of every point.
	Coordination() int

	// Origin is the fixed first point of every walk.
	Origin() Point

	// AppendNeighbours appends the Coordination() neighbours of p to dst.
	AppendNeighbours(dst []Point, p Point) []Point

	// FacesFromStep returns the two faces bordering the edge x -> y.
	// The result is deterministic and depends on the order of x and y.
	FacesFromStep(x, y Point) (Point, Point)
}

// Neighbours returns a freshly allocated slice of the neighbours of p.
func Neighbours(l Lattice, p Point) []Point {
	return l.AppendNeighbours(make([]Point, 0, l.Coordination()), p)
}

// Adjacent reports whether x and y are lattice neighbours.
func Adjacent(l Lattice, x, y Point) bool {
	var buf [8]Point
	for _, n := range l.AppendNeighbours(buf[:0], x) {
		if n == y {
			return true
		}
	}
	return false
}

var registry = map[string]func() Lattice{
	"hexagonal": func() Lattice { return Hexagonal{} },
	"square":    func() Lattice { return Square{} },
}

// Names returns the registered lattice names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName looks up a lattice by name (case-insensitive).
func ByName(name string) (Lattice, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown lattice %q (valid: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}
