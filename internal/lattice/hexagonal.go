package lattice

// Hexagonal is the honeycomb lattice in brick-wall coordinates. Every point
// has a left and a right neighbour; points with even coordinate sum connect
// upwards, odd ones downwards.
type Hexagonal struct{}

func (Hexagonal) Name() string      { return "hexagonal" }
func (Hexagonal) Coordination() int { return 3 }
func (Hexagonal) Origin() Point     { return Point{0, 0} }

func (Hexagonal) AppendNeighbours(dst []Point, p Point) []Point {
	vertical := 1
	if isOdd(p.Sum()) {
		vertical = -1
	}
	return append(dst,
		Point{p[0] + 1, p[1]},
		Point{p[0] - 1, p[1]},
		Point{p[0], p[1] + vertical},
	)
}

// FacesFromStep maps the edge x -> y to the centres of the two hexagons it
// borders, in doubled coordinates.
func (Hexagonal) FacesFromStep(x, y Point) (Point, Point) {
	if x[0] == y[0] {
		m := x.Add(y)
		return m.Add(Point{2, 0}), m.Sub(Point{2, 0})
	}
	lo, hi := x, y
	if isOdd(x.Sum()) {
		lo, hi = y, x
	}
	return lo.Scale(2).Sub(Point{0, 1}), hi.Scale(2).Add(Point{0, 1})
}

func isOdd(n int) bool { return n%2 != 0 }
