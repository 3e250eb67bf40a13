package observables

import (
	"github.com/nvandessel/latwalk/internal/walk"
)

// Radius keeps the running vector sum of the walk points and the running sum
// of their squared norms, from which the squared radius of gyration and the
// mean-square radius follow.
type Radius struct {
	sum     [2]int64
	normSum int64
}

// NewRadius creates an empty accumulator.
func NewRadius() *Radius { return &Radius{} }

// RegisterStep adds the last point of w.
func (r *Radius) RegisterStep(w *walk.Walk) {
	p := w.Last()
	r.sum[0] += int64(p[0])
	r.sum[1] += int64(p[1])
	r.normSum += p.NormSquare()
}

// UnregisterStep removes the last point of w.
func (r *Radius) UnregisterStep(w *walk.Walk) {
	p := w.Last()
	r.sum[0] -= int64(p[0])
	r.sum[1] -= int64(p[1])
	r.normSum -= p.NormSquare()
}

// CenterOfMassNormSquare returns |sum of points|^2.
func (r *Radius) CenterOfMassNormSquare() float64 {
	x, y := float64(r.sum[0]), float64(r.sum[1])
	return x*x + y*y
}

// NormSquareSum returns the sum of |p|^2 over the walk points.
func (r *Radius) NormSquareSum() float64 { return float64(r.normSum) }
