package observables

import (
	"slices"
	"testing"

	"github.com/nvandessel/latwalk/internal/lattice"
	"github.com/nvandessel/latwalk/internal/walk"
)

// harness applies steps to a walk and all trackers in the same order the
// simulation cell does.
type harness struct {
	w  *walk.Walk
	nn *NearestNeighbour
	fc *FaceContact
	r  *Radius
}

func newHarness(l lattice.Lattice) *harness {
	return &harness{
		w:  walk.New(l, 32),
		nn: NewNearestNeighbour(l),
		fc: NewFaceContact(l),
		r:  NewRadius(),
	}
}

func (h *harness) push(p lattice.Point) {
	h.w.Append(p)
	h.nn.RegisterStep(h.w)
	h.fc.RegisterStep(h.w)
	h.r.RegisterStep(h.w)
}

func (h *harness) pop() {
	h.r.UnregisterStep(h.w)
	h.fc.UnregisterStep(h.w)
	h.nn.UnregisterStep(h.w)
	h.w.RemoveLast()
}

// bruteContacts counts lattice-adjacent pairs at least two steps apart,
// excluding the origin.
func bruteContacts(w *walk.Walk) int {
	l := w.Lattice()
	c := 0
	for i := 1; i <= w.Len(); i++ {
		for j := i + 2; j <= w.Len(); j++ {
			if lattice.Adjacent(l, w.At(i), w.At(j)) {
				c++
			}
		}
	}
	return c
}

// bruteFaces recomputes every face's event count from scratch: the number of
// maximal runs of consecutive step indices touching it.
func bruteFaces(w *walk.Walk) map[lattice.Point]int {
	l := w.Lattice()
	touches := make(map[lattice.Point][]int)
	for n := 1; n <= w.Len(); n++ {
		a, b := l.FacesFromStep(w.At(n-1), w.At(n))
		touches[a] = append(touches[a], n)
		touches[b] = append(touches[b], n)
	}
	events := make(map[lattice.Point]int)
	for f, ns := range touches {
		runs := 0
		for i, n := range ns {
			if i == 0 || ns[i-1] != n-1 {
				runs++
			}
		}
		events[f] = runs
	}
	return events
}

func bruteHistogram(events map[lattice.Point]int, size int) []int {
	h := make([]int, size)
	for _, c := range events {
		if c > 0 {
			h[c]++
		}
	}
	return h
}

func (h *harness) check(t *testing.T) {
	t.Helper()
	if got, want := h.nn.Count(), bruteContacts(h.w); got != want {
		t.Fatalf("nearest-neighbour Count() = %d, want %d (walk %s)", got, want, h.w)
	}
	events := bruteFaces(h.w)
	hist := h.fc.Histogram()
	if want := bruteHistogram(events, len(hist)); !slices.Equal(hist, want) {
		t.Fatalf("face Histogram() = %v, want %v (walk %s)", hist, want, h.w)
	}
	h.fc.ForEachFace(func(f lattice.Point, ev, touches int) {
		if ev != events[f] {
			t.Fatalf("Events(%v) = %d, want %d (walk %s)", f, ev, events[f], h.w)
		}
	})
	var sx, sy, norm int64
	for _, p := range h.w.All() {
		sx += int64(p[0])
		sy += int64(p[1])
		norm += p.NormSquare()
	}
	if got := h.r.NormSquareSum(); got != float64(norm) {
		t.Fatalf("NormSquareSum() = %v, want %v", got, norm)
	}
	if got := h.r.CenterOfMassNormSquare(); got != float64(sx*sx+sy*sy) {
		t.Fatalf("CenterOfMassNormSquare() = %v, want %v", got, sx*sx+sy*sy)
	}
}

// exhaust walks every self-avoiding walk up to maxLen, checking the trackers
// against brute force after every mutation.
func exhaust(t *testing.T, h *harness, maxLen int) int {
	t.Helper()
	h.check(t)
	if h.w.Len() == maxLen {
		return 1
	}
	total := 0
	for _, p := range lattice.Neighbours(h.w.Lattice(), h.w.Last()) {
		if h.w.Contains(p) {
			continue
		}
		h.push(p)
		total += exhaust(t, h, maxLen)
		h.pop()
		h.check(t)
	}
	return total
}

func TestTrackers_MatchBruteForce(t *testing.T) {
	tests := []struct {
		name   string
		l      lattice.Lattice
		maxLen int
		walks  int
	}{
		{"hexagonal", lattice.Hexagonal{}, 9, 648},
		{"square", lattice.Square{}, 7, 2172},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.l)
			if got := exhaust(t, h, tt.maxLen); got != tt.walks {
				t.Errorf("enumerated %d walks of length %d, want %d", got, tt.maxLen, tt.walks)
			}
		})
	}
}

func TestTrackers_RoundTripToOrigin(t *testing.T) {
	h := newHarness(lattice.Hexagonal{})
	before := h.fc.Histogram()

	steps := []lattice.Point{{1, 0}, {1, -1}, {2, -1}, {3, -1}, {3, 0}, {2, 0}, {2, 1}}
	for _, p := range steps {
		h.push(p)
	}
	for range steps {
		h.pop()
	}

	if h.nn.Count() != 0 {
		t.Errorf("Count() = %d at length 0, want 0", h.nn.Count())
	}
	if after := h.fc.Histogram(); !slices.Equal(before, after) {
		t.Errorf("Histogram() = %v after round trip, want %v", after, before)
	}
	h.fc.ForEachFace(func(f lattice.Point, events, touches int) {
		if events != 0 || touches != 0 {
			t.Errorf("face %v holds events=%d touches=%d at length 0", f, events, touches)
		}
	})
	if h.r.NormSquareSum() != 0 || h.r.CenterOfMassNormSquare() != 0 {
		t.Errorf("radius accumulators not reset: %v %v", h.r.NormSquareSum(), h.r.CenterOfMassNormSquare())
	}
}

func TestSingleStep(t *testing.T) {
	h := newHarness(lattice.Hexagonal{})
	h.push(lattice.Point{1, 0})
	if h.nn.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.nn.Count())
	}
	if h.fc.Level(2) != 0 || h.fc.Level(3) != 0 {
		t.Errorf("Level(2) = %d, Level(3) = %d, want 0, 0", h.fc.Level(2), h.fc.Level(3))
	}
	if h.fc.Level(1) != 2 {
		t.Errorf("Level(1) = %d, want 2", h.fc.Level(1))
	}
}

func TestNearestNeighbour_HexagonalContact(t *testing.T) {
	h := newHarness(lattice.Hexagonal{})
	// Walk around the hexagon below (1,0) and (2,0); the sixth step lands next
	// to the first step's point.
	steps := []lattice.Point{{1, 0}, {1, -1}, {2, -1}, {3, -1}, {3, 0}}
	for _, p := range steps {
		h.push(p)
		if h.nn.Count() != 0 {
			t.Fatalf("Count() = %d after %v, want 0", h.nn.Count(), p)
		}
	}

	h.push(lattice.Point{2, 0})
	if h.nn.Count() != 1 {
		t.Fatalf("Count() = %d after closing the hexagon, want 1", h.nn.Count())
	}

	h.pop()
	if h.nn.Count() != 0 {
		t.Errorf("Count() = %d after undoing the contact, want 0", h.nn.Count())
	}
}

func TestNearestNeighbour_OriginExcluded(t *testing.T) {
	h := newHarness(lattice.Hexagonal{})
	// Go round the hexagon above the origin; the last point neighbours the origin.
	for _, p := range []lattice.Point{{1, 0}, {2, 0}, {2, 1}, {1, 1}, {0, 1}} {
		h.push(p)
	}
	if !lattice.Adjacent(lattice.Hexagonal{}, h.w.Last(), h.w.First()) {
		t.Fatal("test walk does not end next to the origin")
	}
	if h.nn.Count() != 0 {
		t.Errorf("Count() = %d, want 0 for a contact with the origin", h.nn.Count())
	}
}

func TestFaceContact_RunFolding(t *testing.T) {
	h := newHarness(lattice.Square{})
	shared := lattice.Point{3, 1} // square [1,2]x[0,1]
	revisited := lattice.Point{1, 1}

	h.push(lattice.Point{1, 0}) // bottom of [0,1]x[0,1]
	if h.fc.Events(revisited) != 1 {
		t.Fatalf("Events(%v) = %d, want 1", revisited, h.fc.Events(revisited))
	}

	h.push(lattice.Point{2, 0})
	if h.fc.Events(shared) != 1 {
		t.Fatalf("Events(%v) = %d after first touch, want 1", shared, h.fc.Events(shared))
	}
	level1 := h.fc.Level(1)

	h.push(lattice.Point{2, 1}) // consecutive edge on the same face
	if h.fc.Events(shared) != 1 {
		t.Errorf("Events(%v) = %d after consecutive touch, want 1", shared, h.fc.Events(shared))
	}
	if h.fc.Touches(shared) != 2 {
		t.Errorf("Touches(%v) = %d, want 2", shared, h.fc.Touches(shared))
	}
	// The new edge's other face (5,1) joins level 1; the shared face stays put.
	if h.fc.Level(1) != level1+1 {
		t.Errorf("Level(1) = %d, want %d", h.fc.Level(1), level1+1)
	}

	h.push(lattice.Point{1, 1})
	h.push(lattice.Point{0, 1}) // top of [0,1]x[0,1], four steps after its bottom
	if h.fc.Events(revisited) != 2 {
		t.Fatalf("Events(%v) = %d after separate approach, want 2", revisited, h.fc.Events(revisited))
	}
	if h.fc.Level(2) != 1 {
		t.Errorf("Level(2) = %d, want 1", h.fc.Level(2))
	}

	h.pop()
	if h.fc.Events(revisited) != 1 || h.fc.Level(2) != 0 {
		t.Errorf("after undo Events(%v) = %d, Level(2) = %d, want 1, 0", revisited, h.fc.Events(revisited), h.fc.Level(2))
	}
}

func TestFaceContact_UnregisterPanicsOnEmptyWalk(t *testing.T) {
	l := lattice.Hexagonal{}
	fc := NewFaceContact(l)
	w := walk.New(l, 1)
	defer func() {
		if recover() == nil {
			t.Error("UnregisterStep() on empty walk did not panic")
		}
	}()
	fc.UnregisterStep(w)
}
