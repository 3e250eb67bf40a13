// Package checkpoint persists the state a simulation needs to resume: run
// parameters, the weighted observable histograms, the best-sample table and
// any histograms owned by the driver. The random generator state is never
// part of a checkpoint; a resumed run starts from a freshly seeded one.
package checkpoint

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nvandessel/latwalk/internal/cell"
	"github.com/nvandessel/latwalk/internal/histogram"
	"github.com/nvandessel/latwalk/internal/lattice"
)

// Title is written in the TITLE slot of every checkpoint.
const Title = "latwalk"

// Slot names for the best-sample table.
const (
	SlotSampledWeights = "sampled_weights"
	SlotSampledWalks   = "sampled_walks"
)

var (
	// ErrChecksumMismatch is returned when a checkpoint payload is corrupt.
	ErrChecksumMismatch = errors.New("checkpoint checksum mismatch")

	// ErrUnsupportedVersion is returned for checkpoints of an unknown format.
	ErrUnsupportedVersion = errors.New("unsupported checkpoint version")
)

// Checkpoint is the persisted state of one run.
type Checkpoint struct {
	Title        string    `json:"TITLE"`
	N            int       `json:"N"`
	Mu           float64   `json:"mu"`
	Lattice      string    `json:"lattice"`
	ContactLevel int       `json:"contact_level"`
	Time         time.Time `json:"time"`
	Samples      uint64    `json:"samples"`
	Tours        uint64    `json:"tours"`

	// Histograms holds Re2W, Rg2W and Rm2W.
	Histograms map[string]*histogram.Array[float64] `json:"histograms"`

	// Counts holds integer histograms owned by the driver, such as Cn.
	Counts map[string]*histogram.Array[int64] `json:"counts,omitempty"`

	SampledWeights *histogram.Array[float64] `json:"sampled_weights"`
	SampledWalks   *histogram.Array[int64]   `json:"sampled_walks"`
}

// FromCell captures c. counts are the driver's own histograms.
func FromCell(c *cell.Cell, tours uint64, counts map[string]*histogram.Array[int64]) *Checkpoint {
	p := c.Params()
	cp := &Checkpoint{
		Title:        Title,
		N:            p.N,
		Mu:           p.Mu,
		Lattice:      p.Lattice.Name(),
		ContactLevel: p.ContactLevel,
		Time:         time.Now().UTC(),
		Samples:      c.Samples(),
		Tours:        tours,
		Histograms:   make(map[string]*histogram.Array[float64]),
		Counts:       make(map[string]*histogram.Array[int64], len(counts)),
	}
	for name, h := range c.Histograms() {
		cp.Histograms[name] = h.Clone()
	}
	for name, h := range counts {
		cp.Counts[name] = h.Clone()
	}
	best := c.Best().Clone()
	cp.SampledWeights = best.Weights
	cp.SampledWalks = best.Walks
	return cp
}

// Params rebuilds the cell parameters stored in the checkpoint.
func (cp *Checkpoint) Params() (cell.Params, error) {
	l, err := lattice.ByName(cp.Lattice)
	if err != nil {
		return cell.Params{}, err
	}
	return cell.Params{Lattice: l, N: cp.N, Mu: cp.Mu, ContactLevel: cp.ContactLevel}, nil
}

// Best returns the best-sample table stored in the checkpoint.
func (cp *Checkpoint) Best() *histogram.BestTable {
	return &histogram.BestTable{Weights: cp.SampledWeights, Walks: cp.SampledWalks}
}

// Resume creates a cell with the checkpoint's parameters, histograms and
// sample count. The walk starts again at the origin.
func (cp *Checkpoint) Resume(opts ...cell.Option) (*cell.Cell, error) {
	params, err := cp.Params()
	if err != nil {
		return nil, fmt.Errorf("resuming checkpoint: %w", err)
	}
	c, err := cell.New(params, opts...)
	if err != nil {
		return nil, fmt.Errorf("resuming checkpoint: %w", err)
	}
	if err := c.Restore(cp.Histograms, cp.Best(), cp.Samples); err != nil {
		return nil, fmt.Errorf("resuming checkpoint: %w", err)
	}
	return c, nil
}

// Slots lists the named slots present in the checkpoint, sorted.
func (cp *Checkpoint) Slots() []string {
	slots := []string{"N", "TITLE", "contact_level", "lattice", "mu", "samples", "time", "tours"}
	for name := range cp.Histograms {
		slots = append(slots, name)
	}
	for name := range cp.Counts {
		slots = append(slots, name)
	}
	if cp.SampledWeights != nil {
		slots = append(slots, SlotSampledWeights)
	}
	if cp.SampledWalks != nil {
		slots = append(slots, SlotSampledWalks)
	}
	sort.Strings(slots)
	return slots
}

// Validate checks that the checkpoint can be resumed.
func (cp *Checkpoint) Validate() error {
	if cp.Title != Title {
		return fmt.Errorf("unexpected checkpoint title %q", cp.Title)
	}
	if _, err := cp.Params(); err != nil {
		return err
	}
	for _, name := range []string{cell.SlotRe2W, cell.SlotRg2W, cell.SlotRm2W} {
		h, ok := cp.Histograms[name]
		if !ok {
			return fmt.Errorf("missing slot %s", name)
		}
		if err := h.Validate(); err != nil {
			return fmt.Errorf("slot %s: %w", name, err)
		}
	}
	for name, h := range cp.Counts {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("slot %s: %w", name, err)
		}
	}
	if err := cp.Best().Validate(); err != nil {
		return fmt.Errorf("best samples: %w", err)
	}
	return nil
}

// Merge folds other into cp: accumulators and counts are summed, best
// samples keep the heavier walk and samples and tours add up. Both
// checkpoints must describe the same parameters.
func (cp *Checkpoint) Merge(other *Checkpoint) error {
	if cp.Lattice != other.Lattice || cp.N != other.N || cp.ContactLevel != other.ContactLevel {
		return fmt.Errorf("merge: parameters differ: %s N=%d level=%d vs %s N=%d level=%d",
			cp.Lattice, cp.N, cp.ContactLevel, other.Lattice, other.N, other.ContactLevel)
	}
	for name, h := range other.Histograms {
		cur, ok := cp.Histograms[name]
		if !ok {
			return fmt.Errorf("merge: missing slot %s", name)
		}
		if err := cur.Merge(h); err != nil {
			return fmt.Errorf("merge %s: %w", name, err)
		}
	}
	for name, h := range other.Counts {
		cur, ok := cp.Counts[name]
		if !ok {
			if cp.Counts == nil {
				cp.Counts = make(map[string]*histogram.Array[int64])
			}
			cp.Counts[name] = h.Clone()
			continue
		}
		if err := cur.Merge(h); err != nil {
			return fmt.Errorf("merge %s: %w", name, err)
		}
	}
	if err := cp.Best().Merge(other.Best()); err != nil {
		return fmt.Errorf("merge best samples: %w", err)
	}
	cp.Samples += other.Samples
	cp.Tours += other.Tours
	if other.Time.After(cp.Time) {
		cp.Time = other.Time
	}
	return nil
}
