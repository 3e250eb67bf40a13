// Package enumerate drives a simulation cell through every self-avoiding walk
// up to the target length by plain depth-first growth and backtracking, with
// unit weight per walk. It is the reference driver for the cell contract and
// yields exact per-bin walk counts.
package enumerate

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/latwalk/internal/cell"
	"github.com/nvandessel/latwalk/internal/histogram"
	"github.com/nvandessel/latwalk/internal/lattice"
)

// SlotCounts names the per-bin walk count histogram in checkpoints.
const SlotCounts = "Cn"

// cancelCheckEvery is how many registered steps pass between context checks.
const cancelCheckEvery = 4096

// Options configures a run.
type Options struct {
	// Workers bounds the number of concurrent subtrees. Values below 2 run
	// on the calling goroutine.
	Workers int

	// ProgressEvery calls OnProgress after this many registered steps.
	ProgressEvery uint64
	OnProgress    func(cell.Stats)

	// Cell options applied to every cell created by the run.
	CellOptions []cell.Option
}

// Result holds the reduced output of a run.
type Result struct {
	Cell   *cell.Cell
	Counts *histogram.Array[int64]
	Tours  uint64
}

// Stats reports progress of the reduced result.
func (r *Result) Stats() cell.Stats { return r.Cell.Stats(r.Tours) }

// Run enumerates every walk of length 1..N described by params.
func Run(ctx context.Context, params cell.Params, opts Options) (*Result, error) {
	if opts.Workers > 1 {
		return runParallel(ctx, params, opts)
	}
	c, err := cell.New(params, opts.CellOptions...)
	if err != nil {
		return nil, err
	}
	e := newEnumerator(c, opts)
	if err := e.grow(ctx); err != nil {
		return nil, fmt.Errorf("enumeration interrupted at %d samples: %w", c.Samples(), err)
	}
	return &Result{Cell: c, Counts: e.counts, Tours: 1}, nil
}

type enumerator struct {
	cell   *cell.Cell
	counts *histogram.Array[int64]
	target int
	opts   Options
}

func newEnumerator(c *cell.Cell, opts Options) *enumerator {
	ext := c.Params().Extents()
	return &enumerator{
		cell:   c,
		counts: histogram.New[int64](ext[:]...),
		target: c.Params().N,
		opts:   opts,
	}
}

// step registers p, recurses, and always unregisters p before returning.
func (e *enumerator) step(ctx context.Context, p lattice.Point) error {
	w := 1.0
	e.cell.RegisterStep(p, &w)
	defer e.cell.UnregisterStep()

	idx := e.cell.Indices()
	e.counts.Add(idx[:], 1)

	if s := e.cell.Samples(); s%cancelCheckEvery == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if e.opts.OnProgress != nil && e.opts.ProgressEvery > 0 && e.cell.Samples()%e.opts.ProgressEvery == 0 {
		e.opts.OnProgress(e.cell.Stats(0))
	}
	return e.grow(ctx)
}

func (e *enumerator) grow(ctx context.Context) error {
	if e.cell.Walk().Len() == e.target {
		return nil
	}
	for _, p := range e.cell.Atmosphere() {
		if err := e.step(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// runParallel fans out over the first step. Every worker owns its own cell;
// only the final reduction is shared.
func runParallel(ctx context.Context, params cell.Params, opts Options) (*Result, error) {
	root, err := cell.New(params, opts.CellOptions...)
	if err != nil {
		return nil, err
	}
	total := newEnumerator(root, opts)
	first := root.Atmosphere()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, p := range first {
		g.Go(func() error {
			c, err := cell.New(params, opts.CellOptions...)
			if err != nil {
				return err
			}
			e := newEnumerator(c, opts)
			if err := e.step(gctx, p); err != nil {
				return fmt.Errorf("subtree %v: %w", p, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if err := total.cell.Merge(c); err != nil {
				return err
			}
			return total.counts.Merge(e.counts)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enumeration interrupted: %w", err)
	}
	return &Result{Cell: root, Counts: total.counts, Tours: 1}, nil
}

// WalksOfLength returns the number of walks of length n counted in r.
func (r *Result) WalksOfLength(n int) int64 {
	ext := r.Counts.Extents
	var sum int64
	for m1 := 0; m1 < ext[1]; m1++ {
		for m2 := 0; m2 < ext[2]; m2++ {
			sum += r.Counts.At(n, m1, m2)
		}
	}
	return sum
}
