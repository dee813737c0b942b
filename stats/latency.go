package stats

import (
	"fmt"
	"math"
	"sort"
)

// Accumulator keeps count, sum, min and max of latency samples in microseconds.
// Samples may be negative when the clocks of the two hosts disagree.
type Accumulator struct {
	Count int64
	Sum   int64
	Min   int64
	Max   int64
}

func (a *Accumulator) Add(v int64) {
	if a.Count == 0 || v < a.Min {
		a.Min = v
	}
	if a.Count == 0 || v > a.Max {
		a.Max = v
	}
	a.Count++
	a.Sum += v
}

func (a Accumulator) Avg() float64 {
	if a.Count == 0 {
		return 0
	}
	return float64(a.Sum) / float64(a.Count)
}

func (a Accumulator) String() string {
	if a.Count == 0 {
		return "no samples"
	}
	return fmt.Sprintf("min= %d, avg= %.0f, max= %d", a.Min, a.Avg(), a.Max)
}

// DefaultPercentiles are reported after every interval and at the end of a run.
var DefaultPercentiles = []float64{100.0, 99.9, 99.0, 90.0}

// Percentile summarises the lowest Percent of the samples.
type Percentile struct {
	Percent    float64
	Count      int
	TotalCount int
	Min        int64
	Avg        float64
	Max        int64
	Deviation  float64 // NaN with fewer than two samples
}

func (p Percentile) String() string {
	return fmt.Sprintf("%5.1f %% : cnt= %d/%d, min= %d, avg= %.0f, max= %d, dev= %.2f",
		p.Percent, p.Count, p.TotalCount, p.Min, p.Avg, p.Max, p.Deviation)
}

// Percentiles sorts a copy of samples and, for every requested percent, reports
// on the lowest int(len*percent/100) values. Percents that select no sample
// yield a zero Percentile.
func Percentiles(samples []int64, percents []float64) []Percentile {
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]Percentile, 0, len(percents))
	for _, pct := range percents {
		n := int(float64(len(sorted)) * pct / 100.0)
		if n < 1 {
			out = append(out, Percentile{})
			continue
		}
		values := sorted[:n]
		var sum float64
		for _, v := range values {
			sum += float64(v)
		}
		mean := sum / float64(n)
		dev := math.NaN()
		if n > 1 {
			var sq float64
			for _, v := range values {
				d := float64(v) - mean
				sq += d * d
			}
			dev = math.Sqrt(sq / float64(n-1))
		}
		out = append(out, Percentile{
			Percent:    pct,
			Count:      n,
			TotalCount: len(sorted),
			Min:        values[0],
			Avg:        mean,
			Max:        values[n-1],
			Deviation:  dev,
		})
	}
	return out
}
