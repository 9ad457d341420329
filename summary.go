package slowdigest

import (
	"math"
	"time"
)

// SlowQuerySummary accumulates the executions of one fingerprint.
//
// QueryTimes keeps every observed Query_time so percentiles are exact; memory
// grows with the number of queries in the group.
type SlowQuerySummary struct {
	Fingerprint       string
	Sample            string
	WorstSample       string
	TotalQueryCount   int
	TotalTime         float64
	MinTime           float64
	MaxTime           float64
	TotalLockTime     float64
	TotalRowsSent     uint64
	TotalRowsExamined uint64
	QueryTimes        []float64
	FirstSeen         time.Time
	LastSeen          time.Time
}

// newSlowQuerySummary returns an empty summary. MinTime starts at +Inf, so a
// zero value SlowQuerySummary is not a valid empty accumulator.
func newSlowQuerySummary(fingerprint string) *SlowQuerySummary {
	return &SlowQuerySummary{
		Fingerprint: fingerprint,
		MinTime:     math.Inf(1),
	}
}

func (s *SlowQuerySummary) appendQueryTime(info *SlowQueryInfo) {
	qt := info.QueryTime.QueryTime

	s.TotalQueryCount += 1
	s.TotalTime += qt
	s.TotalLockTime += info.QueryTime.LockTime
	s.TotalRowsSent += info.QueryTime.RowsSent
	s.TotalRowsExamined += info.QueryTime.RowsExamined

	if qt < s.MinTime {
		s.MinTime = qt
	}
	// ties keep the first maximal sample
	if qt > s.MaxTime {
		s.MaxTime = qt
		s.WorstSample = info.RawQuery
	}
	s.QueryTimes = append(s.QueryTimes, qt)

	if !info.Time.IsZero() {
		s.observe(info.Time, info.Time)
	}

	if s.Sample == "" {
		s.Sample = info.RawQuery
	}
}

func (s *SlowQuerySummary) observe(first, last time.Time) {
	if s.FirstSeen.IsZero() || first.Before(s.FirstSeen) {
		s.FirstSeen = first
	}
	if s.LastSeen.IsZero() || last.After(s.LastSeen) {
		s.LastSeen = last
	}
}

// merge folds o into s. The receiver is treated as the earlier source: its
// Sample wins when set, and it keeps WorstSample when both MaxTimes are equal.
func (s *SlowQuerySummary) merge(o *SlowQuerySummary) {
	s.TotalQueryCount += o.TotalQueryCount
	s.TotalTime += o.TotalTime
	s.TotalLockTime += o.TotalLockTime
	s.TotalRowsSent += o.TotalRowsSent
	s.TotalRowsExamined += o.TotalRowsExamined

	s.MinTime = math.Min(s.MinTime, o.MinTime)
	if o.MaxTime > s.MaxTime {
		s.MaxTime = o.MaxTime
		s.WorstSample = o.WorstSample
	}
	s.QueryTimes = append(s.QueryTimes, o.QueryTimes...)

	if !o.FirstSeen.IsZero() {
		s.observe(o.FirstSeen, o.LastSeen)
	}

	if s.Sample == "" {
		s.Sample = o.Sample
	}
}
