package lattice

// Square is the square lattice Z^2.
type Square struct{}

func (Square) Name() string      { return "square" }
func (Square) Coordination() int { return 4 }
func (Square) Origin() Point     { return Point{0, 0} }

func (Square) AppendNeighbours(dst []Point, p Point) []Point {
	return append(dst,
		Point{p[0] + 1, p[1]},
		Point{p[0] - 1, p[1]},
		Point{p[0], p[1] + 1},
		Point{p[0], p[1] - 1},
	)
}

// FacesFromStep returns the doubled-coordinate centres of the unit squares
// on the left and on the right of the directed edge x -> y.
func (Square) FacesFromStep(x, y Point) (Point, Point) {
	m := x.Add(y)
	d := y.Sub(x)
	left := Point{-d[1], d[0]}
	return m.Add(left), m.Sub(left)
}
