package slowdigest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Percentile returns the nearest-rank p-quantile of sorted, which must be in
// ascending order: the sample at offset ceil(n*p)-1, clamped to [0, n-1].
// It returns 0 when there are no samples.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	// Empirical picks the first sample whose cumulative count reaches n*p,
	// which is the nearest-rank definition.
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Histogram holds Query_time counts per bucket of dividers.
type Histogram []float64

// bucket bounds in microseconds
var divider = []float64{0, 1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, math.Inf(1)}
var dividerLabel = []string{
	"<1us",
	"1us",
	"10us",
	"100us",
	"1ms",
	"10ms",
	"100ms",
	"1s",
	"10s~",
}

const maxLength = 75

func (h Histogram) String() string {
	var max float64
	for _, c := range h {
		if c > max {
			max = c
		}
	}

	var b strings.Builder
	for i, label := range dividerLabel {
		length := 0
		if i < len(h) && max > 0 {
			length = int(maxLength / max * h[i])
		}
		fmt.Fprintf(&b, "%6s: %s\n", label, strings.Repeat("#", length))
	}

	return b.String()
}

func (s *SlowQuerySummary) ComputeHistogram() Histogram {
	src := make([]float64, 0, len(s.QueryTimes))
	top := divider[len(divider)-1]
	for _, t := range s.QueryTimes {
		v := t * 1000 * 1000
		if !(v >= 0) {
			continue
		}
		// huge samples overflow to +Inf once scaled; count them in the last bucket
		if v >= top {
			v = math.MaxFloat64
		}
		src = append(src, v)
	}

	if len(src) == 0 {
		return make(Histogram, len(dividerLabel))
	}
	sort.Float64s(src)

	return Histogram(stat.Histogram(nil, divider, src, nil))
}
