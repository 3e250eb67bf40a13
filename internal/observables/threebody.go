package observables

import (
	"fmt"

	"github.com/nvandessel/latwalk/internal/lattice"
	"github.com/nvandessel/latwalk/internal/walk"
)

// faceRecord is the state of one lattice face: how many separate contact
// events touch it, and the step indices of the edges that touched it, most
// recent last.
type faceRecord struct {
	events  int
	touches []int
}

// FaceContact tracks, for every face bordered by walk edges, the number of
// contact events on it, and keeps a histogram of faces per event count.
//
// Edges with consecutive step indices touching the same face fold into a
// single event; only a gap in the touch history starts a new one.
type FaceContact struct {
	lattice lattice.Lattice
	faces   map[lattice.Point]*faceRecord

	// levels[c] is the number of faces holding exactly c events, c > 0.
	// levels[0] is always zero.
	levels []int
}

// NewFaceContact creates a tracker for walks on l.
func NewFaceContact(l lattice.Lattice) *FaceContact {
	return &FaceContact{
		lattice: l,
		faces:   make(map[lattice.Point]*faceRecord),
		levels:  make([]int, l.Coordination()+1),
	}
}

// RegisterStep records the two faces of the last edge of w.
func (fc *FaceContact) RegisterStep(w *walk.Walk) {
	n := w.Len()
	if n < 1 {
		panic("observables: FaceContact.RegisterStep on an empty walk")
	}
	a, b := fc.lattice.FacesFromStep(w.At(n-1), w.At(n))
	fc.touch(a, n)
	fc.touch(b, n)
}

// UnregisterStep forgets the two faces of the last edge of w.
func (fc *FaceContact) UnregisterStep(w *walk.Walk) {
	n := w.Len()
	if n < 1 {
		panic("observables: FaceContact.UnregisterStep on an empty walk")
	}
	a, b := fc.lattice.FacesFromStep(w.At(n-1), w.At(n))
	fc.untouch(b, n)
	fc.untouch(a, n)
}

func (fc *FaceContact) touch(f lattice.Point, n int) {
	rec, ok := fc.faces[f]
	if !ok {
		rec = &faceRecord{}
		fc.faces[f] = rec
	}
	rec.touches = append(rec.touches, n)
	if k := len(rec.touches); k == 1 || rec.touches[k-2] != n-1 {
		fc.move(rec.events, rec.events+1)
		rec.events++
	}
}

func (fc *FaceContact) untouch(f lattice.Point, n int) {
	rec, ok := fc.faces[f]
	if !ok || len(rec.touches) == 0 {
		panic(fmt.Sprintf("observables: face %v untouched at step %d was never touched", f, n))
	}
	k := len(rec.touches)
	if rec.touches[k-1] != n {
		panic(fmt.Sprintf("observables: face %v last touched at step %d, unregistering step %d", f, rec.touches[k-1], n))
	}
	rec.touches = rec.touches[:k-1]
	if k == 1 || rec.touches[k-2] != n-1 {
		if rec.events == 0 {
			panic(fmt.Sprintf("observables: contact events of face %v went negative", f))
		}
		fc.move(rec.events, rec.events-1)
		rec.events--
	}
}

// move shifts one face from level from to level to.
func (fc *FaceContact) move(from, to int) {
	if to >= len(fc.levels) {
		fc.levels = append(fc.levels, make([]int, to-len(fc.levels)+1)...)
	}
	if from > 0 {
		fc.levels[from]--
	}
	if to > 0 {
		fc.levels[to]++
	}
}

// Level returns the number of faces currently holding exactly c contact
// events. Level(0) is always zero; untouched faces are not counted.
func (fc *FaceContact) Level(c int) int {
	if c <= 0 || c >= len(fc.levels) {
		return 0
	}
	return fc.levels[c]
}

// Histogram returns a copy of the per-level face counts.
func (fc *FaceContact) Histogram() []int {
	out := make([]int, len(fc.levels))
	copy(out, fc.levels)
	return out
}

// Events returns the current contact-event count of face f.
func (fc *FaceContact) Events(f lattice.Point) int {
	if rec, ok := fc.faces[f]; ok {
		return rec.events
	}
	return 0
}

// Touches returns the number of step indices on the touch stack of face f.
func (fc *FaceContact) Touches(f lattice.Point) int {
	if rec, ok := fc.faces[f]; ok {
		return len(rec.touches)
	}
	return 0
}

// ForEachFace calls fn for every face record ever created, including inert
// ones with no remaining touches.
func (fc *FaceContact) ForEachFace(fn func(face lattice.Point, events, touches int)) {
	for f, rec := range fc.faces {
		fn(f, rec.events, len(rec.touches))
	}
}
