package cell

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats is a progress snapshot of a running cell.
type Stats struct {
	Elapsed time.Duration `json:"elapsed"`
	Samples uint64        `json:"samples"`
	Tours   uint64        `json:"tours"`
}

// Stats reports progress since the cell was created. tours is supplied by
// the driver, which owns that count.
func (c *Cell) Stats(tours uint64) Stats {
	return Stats{Elapsed: time.Since(c.started), Samples: c.samples, Tours: tours}
}

// SamplesPerSecond returns the average sample rate.
func (s Stats) SamplesPerSecond() float64 { return rate(s.Samples, s.Elapsed) }

// ToursPerSecond returns the average tour rate.
func (s Stats) ToursPerSecond() float64 { return rate(s.Tours, s.Elapsed) }

func rate(n uint64, d time.Duration) float64 {
	secs := d.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(n) / secs
}

func (s Stats) String() string {
	return fmt.Sprintf("%s tours (%s tours/sec) %s samples (%s samples/sec) in %s",
		humanize.Comma(int64(s.Tours)),
		humanize.SIWithDigits(s.ToursPerSecond(), 1, ""),
		humanize.Comma(int64(s.Samples)),
		humanize.SIWithDigits(s.SamplesPerSecond(), 1, ""),
		s.Elapsed.Round(time.Millisecond))
}
