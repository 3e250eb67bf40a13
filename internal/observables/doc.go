// Package observables holds the incremental trackers updated on every walk
// step: the nearest-neighbour contact count, the face-contact (three-body)
// multiplicity histogram and the radius accumulators.
//
// Every tracker follows the same contract. RegisterStep is called right after
// a point has been appended to the walk; UnregisterStep is called while that
// point is still the last one, right before it is removed. Calls must nest in
// strict LIFO order. A tracker never rescans the whole walk.
package observables
