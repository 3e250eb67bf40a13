// Package cell composes the walk and its trackers into the simulation cell
// driven by a growth-and-backtrack sampler.
//
// The sampler calls Atmosphere to list admissible next points, RegisterStep
// to grow the walk, and UnregisterStep when its recursion returns. Register
// and unregister calls must nest in strict LIFO order; the cell assumes this
// and does not verify it. Breaking the contract (for example unregistering at
// length zero) panics, since it means the driving recursion is wrong.
package cell

import (
	"fmt"
	"time"

	"github.com/nvandessel/latwalk/internal/histogram"
	"github.com/nvandessel/latwalk/internal/lattice"
	"github.com/nvandessel/latwalk/internal/observables"
	"github.com/nvandessel/latwalk/internal/walk"
)

// Number of bin indices handed to the sampler: walk length, nearest-neighbour
// count and face-contact level count.
const NumIndices = 3

// Names of the weighted observable accumulators.
const (
	SlotRe2W = "Re2W"
	SlotRg2W = "Rg2W"
	SlotRm2W = "Rm2W"
)

// DefaultContactLevel is the face-contact multiplicity used as third index.
const DefaultContactLevel = 2

// Params fixes the shape of a simulation.
type Params struct {
	Lattice lattice.Lattice

	// N is the target walk length.
	N int

	// Mu is the sampling bias parameter. The cell only carries it for the
	// checkpoint; the sampler interprets it.
	Mu float64

	// ContactLevel selects which face-contact multiplicity is binned.
	ContactLevel int
}

// Validate checks that the parameters describe a usable cell.
func (p Params) Validate() error {
	if p.Lattice == nil {
		return fmt.Errorf("lattice is required")
	}
	if p.N < 1 {
		return fmt.Errorf("target length must be positive, got %d", p.N)
	}
	if p.ContactLevel < 1 || p.ContactLevel > p.Lattice.Coordination() {
		return fmt.Errorf("contact level must be between 1 and %d, got %d", p.Lattice.Coordination(), p.ContactLevel)
	}
	return nil
}

// Extents returns the size of each bin axis. Both count axes get room for
// their maximum on any supported lattice.
func (p Params) Extents() [NumIndices]int {
	faces := max(p.N+2, 2*p.N/p.ContactLevel+1)
	return [NumIndices]int{p.N + 1, p.N + 2, faces}
}

// WeightCorrector may adjust the weight of a sample as it is registered.
// It sees the walk after the new point has been appended.
type WeightCorrector func(w *walk.Walk, weight float64) float64

// Cell owns the walk, its trackers and the weighted histograms.
type Cell struct {
	params Params

	walk   *walk.Walk
	nn     *observables.NearestNeighbour
	faces  *observables.FaceContact
	radius *observables.Radius

	indices [NumIndices]int

	re2w, rg2w, rm2w *histogram.Array[float64]
	best             *histogram.BestTable

	corrector WeightCorrector
	samples   uint64
	started   time.Time
	buf       []lattice.Point
}

// Option configures a Cell.
type Option func(*Cell)

// WithWeightCorrector installs fn as the register-time weight hook.
func WithWeightCorrector(fn WeightCorrector) Option {
	return func(c *Cell) { c.corrector = fn }
}

// New creates a cell holding a walk at the origin and empty histograms.
func New(p Params, opts ...Option) (*Cell, error) {
	if p.ContactLevel == 0 {
		p.ContactLevel = DefaultContactLevel
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cell params: %w", err)
	}
	ext := p.Extents()
	c := &Cell{
		params:  p,
		walk:    walk.New(p.Lattice, p.N),
		nn:      observables.NewNearestNeighbour(p.Lattice),
		faces:   observables.NewFaceContact(p.Lattice),
		radius:  observables.NewRadius(),
		re2w:    histogram.New[float64](ext[:]...),
		rg2w:    histogram.New[float64](ext[:]...),
		rm2w:    histogram.New[float64](ext[:]...),
		best:    histogram.NewBestTable(ext[1], ext[2], p.N),
		started: time.Now(),
		buf:     make([]lattice.Point, 0, p.Lattice.Coordination()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Params returns the parameters the cell was built with.
func (c *Cell) Params() Params { return c.params }

// Walk returns the live walk. Callers must not mutate it.
func (c *Cell) Walk() *walk.Walk { return c.walk }

// Indices returns the current (length, contacts, face-contact) bin.
func (c *Cell) Indices() [NumIndices]int { return c.indices }

// NearestNeighbours returns the current nearest-neighbour contact count.
func (c *Cell) NearestNeighbours() int { return c.nn.Count() }

// FaceContacts returns the face-contact tracker.
func (c *Cell) FaceContacts() *observables.FaceContact { return c.faces }

// Samples returns the number of registered steps, including any restored count.
func (c *Cell) Samples() uint64 { return c.samples }

// Atmosphere returns the neighbours of the last point not yet on the walk.
// A fresh slice is returned on every call.
func (c *Cell) Atmosphere() []lattice.Point {
	c.buf = c.params.Lattice.AppendNeighbours(c.buf[:0], c.walk.Last())
	out := make([]lattice.Point, 0, len(c.buf))
	for _, p := range c.buf {
		if !c.walk.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// RegisterStep appends p, updates every tracker and accumulates the weighted
// observables into the new bin. weight may be adjusted by the installed
// WeightCorrector; without one it is left untouched.
func (c *Cell) RegisterStep(p lattice.Point, weight *float64) {
	c.samples++

	c.walk.Append(p)
	c.nn.RegisterStep(c.walk)
	c.faces.RegisterStep(c.walk)
	c.radius.RegisterStep(c.walk)
	c.updateIndices()

	if c.corrector != nil {
		*weight = c.corrector(c.walk, *weight)
	}
	w := *weight

	n := float64(c.walk.Len())
	re2 := float64(c.walk.Last().NormSquare())
	b := c.radius.CenterOfMassNormSquare()
	sq := c.radius.NormSquareSum()
	rg2 := sq/n - b/n/n
	rm2 := sq / n

	idx := c.indices[:]
	c.re2w.Add(idx, w*re2)
	c.rg2w.Add(idx, w*rg2)
	c.rm2w.Add(idx, w*rm2)

	if c.walk.Len() == c.params.N {
		c.best.Offer(c.indices[1], c.indices[2], w, c.walk.Points())
	}
}

// UnregisterStep undoes the most recent RegisterStep. The histograms keep
// what was accumulated. It panics if the walk is at the origin.
func (c *Cell) UnregisterStep() {
	if c.walk.Len() == 0 {
		panic("cell: UnregisterStep with no registered step")
	}
	c.radius.UnregisterStep(c.walk)
	c.faces.UnregisterStep(c.walk)
	c.nn.UnregisterStep(c.walk)
	c.walk.RemoveLast()
	c.updateIndices()
}

func (c *Cell) updateIndices() {
	c.indices[0] = c.walk.Len()
	c.indices[1] = c.nn.Count()
	c.indices[2] = c.faces.Level(c.params.ContactLevel)
}

// Histograms returns the weighted accumulators keyed by slot name.
func (c *Cell) Histograms() map[string]*histogram.Array[float64] {
	return map[string]*histogram.Array[float64]{
		SlotRe2W: c.re2w,
		SlotRg2W: c.rg2w,
		SlotRm2W: c.rm2w,
	}
}

// Best returns the best-sample table.
func (c *Cell) Best() *histogram.BestTable { return c.best }

// Restore replaces the accumulators, best-sample table and sample counter
// with previously saved ones, typically read back from a checkpoint. Shapes
// must match.
func (c *Cell) Restore(hists map[string]*histogram.Array[float64], best *histogram.BestTable, samples uint64) error {
	replaced := make(map[string]*histogram.Array[float64], 3)
	for name, cur := range c.Histograms() {
		h, ok := hists[name]
		if !ok {
			return fmt.Errorf("missing histogram %s", name)
		}
		if err := h.Validate(); err != nil {
			return fmt.Errorf("histogram %s: %w", name, err)
		}
		if !cur.SameShape(h) {
			return fmt.Errorf("histogram %s: %w: have %v, want %v", name, histogram.ErrExtentsMismatch, h.Extents, cur.Extents)
		}
		replaced[name] = h.Clone()
	}
	if err := best.Validate(); err != nil {
		return fmt.Errorf("best samples: %w", err)
	}
	if !c.best.Weights.SameShape(best.Weights) || !c.best.Walks.SameShape(best.Walks) {
		return fmt.Errorf("best samples: %w", histogram.ErrExtentsMismatch)
	}
	c.re2w, c.rg2w, c.rm2w = replaced[SlotRe2W], replaced[SlotRg2W], replaced[SlotRm2W]
	c.best = best.Clone()
	c.samples = samples
	return nil
}

// Merge folds the accumulators and best samples of other into c. Both cells
// must share Params. Used to reduce results of independent workers.
func (c *Cell) Merge(other *Cell) error {
	if c.params.Extents() != other.params.Extents() {
		return fmt.Errorf("merge: %w", histogram.ErrExtentsMismatch)
	}
	if err := c.re2w.Merge(other.re2w); err != nil {
		return fmt.Errorf("merge %s: %w", SlotRe2W, err)
	}
	if err := c.rg2w.Merge(other.rg2w); err != nil {
		return fmt.Errorf("merge %s: %w", SlotRg2W, err)
	}
	if err := c.rm2w.Merge(other.rm2w); err != nil {
		return fmt.Errorf("merge %s: %w", SlotRm2W, err)
	}
	if err := c.best.Merge(other.best); err != nil {
		return fmt.Errorf("merge best samples: %w", err)
	}
	c.samples += other.samples
	return nil
}
