package enumerate

import (
	"github.com/nvandessel/latwalk/internal/cell"
	"github.com/nvandessel/latwalk/internal/histogram"
)

// LengthSummary holds the weighted averages of one walk length, with all
// contact bins folded together.
type LengthSummary struct {
	N     int     `json:"n"`
	Walks int64   `json:"walks"`
	Re2   float64 `json:"re2"`
	Rg2   float64 `json:"rg2"`
	Rm2   float64 `json:"rm2"`
}

// Summarize divides the accumulators by the walk counts per length. Lengths
// without walks are skipped. With unit weights the result is the exact
// mean of every observable over all walks of that length.
func Summarize(hists map[string]*histogram.Array[float64], counts *histogram.Array[int64]) []LengthSummary {
	re2, rg2, rm2 := hists[cell.SlotRe2W], hists[cell.SlotRg2W], hists[cell.SlotRm2W]
	ext := counts.Extents

	var out []LengthSummary
	for n := 1; n < ext[0]; n++ {
		s := LengthSummary{N: n}
		for m1 := 0; m1 < ext[1]; m1++ {
			for m2 := 0; m2 < ext[2]; m2++ {
				s.Walks += counts.At(n, m1, m2)
				s.Re2 += re2.At(n, m1, m2)
				s.Rg2 += rg2.At(n, m1, m2)
				s.Rm2 += rm2.At(n, m1, m2)
			}
		}
		if s.Walks == 0 {
			continue
		}
		w := float64(s.Walks)
		s.Re2 /= w
		s.Rg2 /= w
		s.Rm2 /= w
		out = append(out, s)
	}
	return out
}

// Summary returns Summarize over the result's cell and counts.
func (r *Result) Summary() []LengthSummary {
	return Summarize(r.Cell.Histograms(), r.Counts)
}
