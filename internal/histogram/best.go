package histogram

import (
	"fmt"
	"slices"

	"github.com/nvandessel/latwalk/internal/lattice"
)

// BestTable records, per (nearest-neighbour, face-contact) bin, the largest
// weight seen among full-length walks and that walk's coordinates.
type BestTable struct {
	Weights *Array[float64] `json:"weights"`
	Walks   *Array[int64]   `json:"walks"`
}

// NewBestTable allocates a table with contacts x faces bins for walks of
// length n.
func NewBestTable(contacts, faces, n int) *BestTable {
	return &BestTable{
		Weights: New[float64](contacts, faces),
		Walks:   New[int64](contacts, faces, n+1, 2),
	}
}

// WalkLen returns the number of steps of the recorded walks.
func (b *BestTable) WalkLen() int { return b.Walks.Extents[2] - 1 }

// Weight returns the best weight recorded for bin (m1, m2); zero if none.
func (b *BestTable) Weight(m1, m2 int) float64 { return b.Weights.At(m1, m2) }

// Offer records points for bin (m1, m2) if w is strictly greater than the
// stored weight. It reports whether the record changed.
func (b *BestTable) Offer(m1, m2 int, w float64, points []lattice.Point) bool {
	bin := []int{m1, m2}
	if !(w > b.Weights.At(bin...)) {
		return false
	}
	if len(points) != b.WalkLen()+1 {
		panic(fmt.Sprintf("histogram: offered walk has %d points, want %d", len(points), b.WalkLen()+1))
	}
	b.Weights.Set(bin, w)
	row := b.row(m1, m2)
	for i, p := range points {
		row[2*i] = int64(p[0])
		row[2*i+1] = int64(p[1])
	}
	return true
}

// Walk returns the recorded walk for bin (m1, m2), or nil if the bin is empty.
func (b *BestTable) Walk(m1, m2 int) []lattice.Point {
	if b.Weight(m1, m2) == 0 {
		return nil
	}
	row := b.row(m1, m2)
	out := make([]lattice.Point, len(row)/2)
	for i := range out {
		out[i] = lattice.Point{int(row[2*i]), int(row[2*i+1])}
	}
	return out
}

func (b *BestTable) row(m1, m2 int) []int64 {
	start := b.Walks.Offset([]int{m1, m2, 0, 0})
	return b.Walks.Data[start : start+(b.WalkLen()+1)*2]
}

// Filled returns the number of bins holding a record.
func (b *BestTable) Filled() int {
	n := 0
	for _, w := range b.Weights.Data {
		if w > 0 {
			n++
		}
	}
	return n
}

// Merge folds other into b bin by bin. The larger weight wins; on an exact
// tie the lexicographically smaller coordinate sequence wins, so merging is
// independent of worker order.
func (b *BestTable) Merge(other *BestTable) error {
	if !b.Weights.SameShape(other.Weights) || !b.Walks.SameShape(other.Walks) {
		return fmt.Errorf("%w: best tables %v/%v vs %v/%v", ErrExtentsMismatch,
			b.Weights.Extents, b.Walks.Extents, other.Weights.Extents, other.Walks.Extents)
	}
	for m1 := 0; m1 < b.Weights.Extents[0]; m1++ {
		for m2 := 0; m2 < b.Weights.Extents[1]; m2++ {
			w, ow := b.Weight(m1, m2), other.Weight(m1, m2)
			if ow == 0 {
				continue
			}
			mine, theirs := b.row(m1, m2), other.row(m1, m2)
			if ow > w || (ow == w && slices.Compare(theirs, mine) < 0) {
				b.Weights.Set([]int{m1, m2}, ow)
				copy(mine, theirs)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of b.
func (b *BestTable) Clone() *BestTable {
	return &BestTable{Weights: b.Weights.Clone(), Walks: b.Walks.Clone()}
}

// Validate checks the table's internal consistency after decoding.
func (b *BestTable) Validate() error {
	if b == nil {
		return fmt.Errorf("histogram: nil best table")
	}
	if err := b.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	if err := b.Walks.Validate(); err != nil {
		return fmt.Errorf("walks: %w", err)
	}
	if len(b.Weights.Extents) != 2 || len(b.Walks.Extents) != 4 ||
		b.Weights.Extents[0] != b.Walks.Extents[0] ||
		b.Weights.Extents[1] != b.Walks.Extents[1] || b.Walks.Extents[3] != 2 {
		return fmt.Errorf("%w: weights %v, walks %v", ErrExtentsMismatch, b.Weights.Extents, b.Walks.Extents)
	}
	return nil
}
