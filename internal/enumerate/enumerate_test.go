package enumerate

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/nvandessel/latwalk/internal/cell"
	"github.com/nvandessel/latwalk/internal/lattice"
)

func TestRun_WalkCounts(t *testing.T) {
	tests := []struct {
		name string
		l    lattice.Lattice
		want []int64
	}{
		// Self-avoiding walk counts for lengths 1..N.
		{"hexagonal", lattice.Hexagonal{}, []int64{3, 6, 12, 24, 48, 90, 174, 336}},
		{"square", lattice.Square{}, []int64{4, 12, 36, 100, 284, 780}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := cell.Params{Lattice: tt.l, N: len(tt.want)}
			res, err := Run(context.Background(), params, Options{})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			for n, want := range tt.want {
				if got := res.WalksOfLength(n + 1); got != want {
					t.Errorf("WalksOfLength(%d) = %d, want %d", n+1, got, want)
				}
			}
			if res.Cell.Walk().Len() != 0 {
				t.Errorf("walk length %d after run, want 0", res.Cell.Walk().Len())
			}
			if res.Cell.NearestNeighbours() != 0 {
				t.Errorf("NearestNeighbours() = %d after run, want 0", res.Cell.NearestNeighbours())
			}
		})
	}
}

func TestRun_EndToEndDistance(t *testing.T) {
	res, err := Run(context.Background(), cell.Params{Lattice: lattice.Square{}, N: 2}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	re2 := res.Cell.Histograms()[cell.SlotRe2W]
	var sum float64
	for m1 := 0; m1 < re2.Extents[1]; m1++ {
		for m2 := 0; m2 < re2.Extents[2]; m2++ {
			sum += re2.At(2, m1, m2)
		}
	}
	// 4 straight walks with Re2=4 and 8 bent ones with Re2=2.
	if sum != 32 {
		t.Errorf("sum of Re2 over length-2 walks = %v, want 32", sum)
	}
	if res.Cell.Best().Filled() == 0 {
		t.Error("no best sample recorded at full length")
	}
}

func TestRun_ParallelMatchesSerial(t *testing.T) {
	params := cell.Params{Lattice: lattice.Hexagonal{}, N: 10}
	serial, err := Run(context.Background(), params, Options{})
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := Run(context.Background(), params, Options{Workers: 3})
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(serial.Counts.Data, parallel.Counts.Data) {
		t.Error("parallel counts differ from serial counts")
	}
	if serial.Cell.Samples() != parallel.Cell.Samples() {
		t.Errorf("Samples() serial = %d, parallel = %d", serial.Cell.Samples(), parallel.Cell.Samples())
	}
	for name, h := range serial.Cell.Histograms() {
		ph := parallel.Cell.Histograms()[name]
		for i, v := range h.Data {
			if math.Abs(v-ph.Data[i]) > 1e-9*math.Max(1, math.Abs(v)) {
				t.Fatalf("%s cell %d serial = %v, parallel = %v", name, i, v, ph.Data[i])
			}
		}
	}
	if !slices.Equal(serial.Cell.Best().Weights.Data, parallel.Cell.Best().Weights.Data) {
		t.Error("best weights differ between serial and parallel runs")
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, cell.Params{Lattice: lattice.Hexagonal{}, N: 14}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_Progress(t *testing.T) {
	var calls int
	_, err := Run(context.Background(), cell.Params{Lattice: lattice.Square{}, N: 5}, Options{
		ProgressEvery: 100,
		OnProgress:    func(cell.Stats) { calls++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	// 4+12+36+100+284 = 436 registered steps.
	if calls != 4 {
		t.Errorf("OnProgress called %d times, want 4", calls)
	}
}

func TestRun_InvalidParams(t *testing.T) {
	if _, err := Run(context.Background(), cell.Params{Lattice: lattice.Square{}}, Options{}); err == nil {
		t.Error("Run() with N=0 returned nil error")
	}
}
