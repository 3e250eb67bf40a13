package cell

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/latwalk/internal/histogram"
	"github.com/nvandessel/latwalk/internal/lattice"
	"github.com/nvandessel/latwalk/internal/walk"
)

func newCell(t *testing.T, l lattice.Lattice, n int, opts ...Option) *Cell {
	t.Helper()
	c, err := New(Params{Lattice: l, N: n, Mu: 1}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"no lattice", Params{N: 4}},
		{"zero length", Params{Lattice: lattice.Hexagonal{}, N: 0}},
		{"contact level too high", Params{Lattice: lattice.Hexagonal{}, N: 4, ContactLevel: 4}},
		{"negative contact level", Params{Lattice: lattice.Square{}, N: 4, ContactLevel: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.params); err == nil {
				t.Errorf("New(%+v) error = nil, want error", tt.params)
			}
		})
	}
}

func TestNew_DefaultsContactLevel(t *testing.T) {
	c := newCell(t, lattice.Hexagonal{}, 4)
	if c.Params().ContactLevel != DefaultContactLevel {
		t.Errorf("ContactLevel = %d, want %d", c.Params().ContactLevel, DefaultContactLevel)
	}
	if got, want := c.Params().Extents(), [NumIndices]int{5, 6, 6}; got != want {
		t.Errorf("Extents() = %v, want %v", got, want)
	}
}

func TestAtmosphere(t *testing.T) {
	c := newCell(t, lattice.Hexagonal{}, 4)
	atm := c.Atmosphere()
	if len(atm) != 3 {
		t.Fatalf("Atmosphere() at origin = %v, want 3 points", atm)
	}

	w := 1.0
	c.RegisterStep(lattice.Point{1, 0}, &w)
	atm = c.Atmosphere()
	if slices.Contains(atm, lattice.Point{0, 0}) {
		t.Errorf("Atmosphere() = %v contains the occupied origin", atm)
	}
	if len(atm) != 2 {
		t.Errorf("Atmosphere() = %v, want 2 points", atm)
	}

	// A fresh slice each call.
	atm[0] = lattice.Point{99, 99}
	if slices.Contains(c.Atmosphere(), lattice.Point{99, 99}) {
		t.Error("Atmosphere() returned a shared slice")
	}
}

func TestRegisterStep_Observables(t *testing.T) {
	c := newCell(t, lattice.Hexagonal{}, 4)
	w := 2.0

	c.RegisterStep(lattice.Point{1, 0}, &w)
	if got := c.Indices(); got != [NumIndices]int{1, 0, 0} {
		t.Fatalf("Indices() = %v, want [1 0 0]", got)
	}
	h := c.Histograms()
	if got := h[SlotRe2W].At(1, 0, 0); got != 2 {
		t.Errorf("Re2W[1,0,0] = %v, want 2", got)
	}
	if got := h[SlotRg2W].At(1, 0, 0); got != 0 {
		t.Errorf("Rg2W[1,0,0] = %v, want 0", got)
	}
	if got := h[SlotRm2W].At(1, 0, 0); got != 2 {
		t.Errorf("Rm2W[1,0,0] = %v, want 2", got)
	}

	w = 1.0
	c.RegisterStep(lattice.Point{1, -1}, &w)
	// sum=(2,-1), |sum|^2=5, sum of norms=3, n=2
	if got := h[SlotRe2W].At(2, 0, 0); got != 2 {
		t.Errorf("Re2W[2,0,0] = %v, want 2", got)
	}
	if got := h[SlotRg2W].At(2, 0, 0); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("Rg2W[2,0,0] = %v, want 0.25", got)
	}
	if got := h[SlotRm2W].At(2, 0, 0); got != 1.5 {
		t.Errorf("Rm2W[2,0,0] = %v, want 1.5", got)
	}
	if c.Samples() != 2 {
		t.Errorf("Samples() = %d, want 2", c.Samples())
	}
}

func TestUnregisterStep_RestoresState(t *testing.T) {
	c := newCell(t, lattice.Hexagonal{}, 8)
	steps := []lattice.Point{{1, 0}, {1, -1}, {2, -1}, {3, -1}, {3, 0}, {2, 0}}

	type state struct {
		indices [NumIndices]int
		hist    []int
		points  []lattice.Point
	}
	snap := func() state {
		return state{c.Indices(), c.FaceContacts().Histogram(), slices.Clone(c.Walk().Points())}
	}

	var states []state
	for _, p := range steps {
		states = append(states, snap())
		w := 1.0
		c.RegisterStep(p, &w)
	}
	if c.NearestNeighbours() != 1 {
		t.Fatalf("NearestNeighbours() = %d, want 1", c.NearestNeighbours())
	}
	before := c.Histograms()[SlotRe2W].Sum()

	for i := len(steps) - 1; i >= 0; i-- {
		c.UnregisterStep()
		got := snap()
		want := states[i]
		if got.indices != want.indices || !slices.Equal(got.hist, want.hist) || !slices.Equal(got.points, want.points) {
			t.Fatalf("after undoing step %d state = %+v, want %+v", i+1, got, want)
		}
	}
	if after := c.Histograms()[SlotRe2W].Sum(); after != before {
		t.Errorf("Re2W sum changed on unregister: %v -> %v", before, after)
	}
}

func TestUnregisterStep_PanicsAtOrigin(t *testing.T) {
	c := newCell(t, lattice.Square{}, 2)
	defer func() {
		if recover() == nil {
			t.Error("UnregisterStep() at origin did not panic")
		}
	}()
	c.UnregisterStep()
}

func TestBestSample_StrictlyGreater(t *testing.T) {
	c := newCell(t, lattice.Hexagonal{}, 2)
	grow := func(p1, p2 lattice.Point, weight float64) {
		w := 1.0
		c.RegisterStep(p1, &w)
		w = weight
		c.RegisterStep(p2, &w)
		c.UnregisterStep()
		c.UnregisterStep()
	}

	a1, a2 := lattice.Point{1, 0}, lattice.Point{2, 0}
	b1, b2 := lattice.Point{-1, 0}, lattice.Point{-2, 0}

	grow(a1, a2, 3)
	if got := c.Best().Walk(0, 0); !slices.Equal(got, []lattice.Point{{0, 0}, a1, a2}) {
		t.Fatalf("Best().Walk(0,0) = %v", got)
	}

	grow(b1, b2, 3)
	if got := c.Best().Walk(0, 0); got[1] != a1 {
		t.Errorf("equal weight replaced the record: %v", got)
	}
	grow(b1, b2, 1)
	if got := c.Best().Walk(0, 0); got[1] != a1 {
		t.Errorf("smaller weight replaced the record: %v", got)
	}
	grow(b1, b2, 4)
	if got := c.Best().Walk(0, 0); got[1] != b1 {
		t.Errorf("larger weight did not replace the record: %v", got)
	}
	if c.Best().Weight(0, 0) != 4 {
		t.Errorf("Weight(0,0) = %v, want 4", c.Best().Weight(0, 0))
	}
}

func TestBestSample_OnlyAtFullLength(t *testing.T) {
	c := newCell(t, lattice.Hexagonal{}, 3)
	w := 100.0
	c.RegisterStep(lattice.Point{1, 0}, &w)
	c.RegisterStep(lattice.Point{2, 0}, &w)
	if c.Best().Filled() != 0 {
		t.Errorf("Filled() = %d before full length, want 0", c.Best().Filled())
	}
}

func TestWeightCorrector(t *testing.T) {
	var seen int
	c := newCell(t, lattice.Hexagonal{}, 2, WithWeightCorrector(func(w *walk.Walk, weight float64) float64 {
		seen = w.Len()
		return weight * 10
	}))
	w := 1.5
	c.RegisterStep(lattice.Point{1, 0}, &w)
	if w != 15 {
		t.Errorf("weight = %v, want 15", w)
	}
	if seen != 1 {
		t.Errorf("corrector saw length %d, want 1", seen)
	}
	if got := c.Histograms()[SlotRe2W].At(1, 0, 0); got != 15 {
		t.Errorf("Re2W[1,0,0] = %v, want corrected weight 15", got)
	}
}

func TestWeight_UntouchedWithoutCorrector(t *testing.T) {
	c := newCell(t, lattice.Square{}, 2)
	w := 0.75
	c.RegisterStep(lattice.Point{1, 0}, &w)
	if w != 0.75 {
		t.Errorf("weight = %v, want 0.75", w)
	}
}

func TestRestore(t *testing.T) {
	src := newCell(t, lattice.Hexagonal{}, 2)
	w := 2.0
	src.RegisterStep(lattice.Point{1, 0}, &w)
	src.RegisterStep(lattice.Point{2, 0}, &w)

	dst := newCell(t, lattice.Hexagonal{}, 2)
	if err := dst.Restore(src.Histograms(), src.Best(), src.Samples()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := dst.Histograms()[SlotRe2W].Sum(); got != src.Histograms()[SlotRe2W].Sum() {
		t.Errorf("restored Re2W sum = %v", got)
	}
	if dst.Samples() != 2 {
		t.Errorf("restored Samples() = %d, want 2", dst.Samples())
	}
	if dst.Best().Weight(0, 0) != 2 {
		t.Errorf("restored best weight = %v, want 2", dst.Best().Weight(0, 0))
	}

	// Restored data is a copy.
	src.Histograms()[SlotRe2W].Data[0] = 42
	if dst.Histograms()[SlotRe2W].Data[0] == 42 {
		t.Error("Restore() aliased the source histogram")
	}

	other := newCell(t, lattice.Hexagonal{}, 5)
	if err := other.Restore(src.Histograms(), src.Best(), src.Samples()); !errors.Is(err, histogram.ErrExtentsMismatch) {
		t.Errorf("Restore() with other shape error = %v, want ErrExtentsMismatch", err)
	}

	hists := src.Histograms()
	delete(hists, SlotRm2W)
	if err := dst.Restore(hists, src.Best(), 0); err == nil {
		t.Error("Restore() with missing slot returned nil")
	}
}

func TestMerge(t *testing.T) {
	a := newCell(t, lattice.Square{}, 1)
	b := newCell(t, lattice.Square{}, 1)
	w := 1.0
	a.RegisterStep(lattice.Point{1, 0}, &w)
	w = 2.0
	b.RegisterStep(lattice.Point{0, 1}, &w)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := a.Histograms()[SlotRe2W].At(1, 0, 0); got != 3 {
		t.Errorf("merged Re2W[1,0,0] = %v, want 3", got)
	}
	if a.Best().Weight(0, 0) != 2 {
		t.Errorf("merged best weight = %v, want 2", a.Best().Weight(0, 0))
	}
	if a.Samples() != 2 {
		t.Errorf("merged Samples() = %d, want 2", a.Samples())
	}

	c := newCell(t, lattice.Square{}, 3)
	if err := a.Merge(c); err == nil {
		t.Error("Merge() of different shapes returned nil")
	}
}

func TestStats(t *testing.T) {
	s := Stats{Elapsed: 2 * time.Second, Samples: 4000, Tours: 10}
	if s.SamplesPerSecond() != 2000 {
		t.Errorf("SamplesPerSecond() = %v, want 2000", s.SamplesPerSecond())
	}
	if s.ToursPerSecond() != 5 {
		t.Errorf("ToursPerSecond() = %v, want 5", s.ToursPerSecond())
	}
	if !strings.Contains(s.String(), "4,000 samples") {
		t.Errorf("String() = %q, want it to contain %q", s.String(), "4,000 samples")
	}
	if (Stats{}).SamplesPerSecond() != 0 {
		t.Error("SamplesPerSecond() with zero elapsed should be 0")
	}
}
