package slowdigest

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"time"

	"golang.org/x/xerrors"

	"github.com/akito0107/slowdigest/internal/dart"
)

var ErrInvalidTimezone = xerrors.New("invalid timezone offset")

// Report is the ranked result of one run.
type Report struct {
	TotalQueryCount int           `json:"total_query_count"`
	UniqueQueries   int           `json:"unique_queries"`
	TotalTime       float64       `json:"total_time"`
	Items           []*ReportItem `json:"items"`
}

type ReportItem struct {
	Rank          int       `json:"rank"`
	QueryID       string    `json:"query_id"`
	Kind          string    `json:"kind"`
	Count         int       `json:"count"`
	Share         float64   `json:"share"`
	TotalTime     float64   `json:"total_time"`
	MeanTime      float64   `json:"mean_time"`
	MinTime       float64   `json:"min_time"`
	MaxTime       float64   `json:"max_time"`
	P95           float64   `json:"p95"`
	P99           float64   `json:"p99"`
	TotalLockTime float64   `json:"total_lock_time"`
	MeanLockTime  float64   `json:"mean_lock_time"`
	RowsSent      uint64    `json:"rows_sent"`
	RowsExamined  uint64    `json:"rows_examined"`
	Ratio         float64   `json:"ratio"`
	TimeRange     string    `json:"time_range"`
	Fingerprint   string    `json:"fingerprint"`
	Sample        string    `json:"sample"`
	WorstSample   string    `json:"worst_sample"`
	Histogram     Histogram `json:"histogram"`
}

const timeRangeLayout = "2006-01-02 15:04:05 -0700"

const OtherKind = "OTHER"

var statementKinds = dart.Must(dart.Build([]string{
	"SELECT",
	"INSERT",
	"UPDATE",
	"DELETE",
	"REPLACE",
	"WITH",
	"ALTER",
	"CREATE",
	"DROP",
	"SHOW",
	"CALL",
	"SET",
}))

// Summarize ranks the collected groups by total time and returns at most
// limit of them; a negative limit keeps every group. Time ranges are printed
// in loc, or UTC when loc is nil.
func (s *Summarizer) Summarize(limit int, loc *time.Location) *Report {
	if loc == nil {
		loc = time.UTC
	}

	summaries := make([]*SlowQuerySummary, 0, len(s.m))
	for _, summary := range s.m {
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].TotalTime > summaries[j].TotalTime
	})

	if limit >= 0 && limit < len(summaries) {
		summaries = summaries[:limit]
	}

	report := &Report{
		TotalQueryCount: s.totalCount,
		UniqueQueries:   len(s.m),
		TotalTime:       s.totalTime,
		Items:           make([]*ReportItem, 0, len(summaries)),
	}
	for i, summary := range summaries {
		item := newReportItem(summary, loc)
		item.Rank = i + 1
		if s.totalTime > 0 {
			item.Share = summary.TotalTime / s.totalTime * 100
		}
		report.Items = append(report.Items, item)
	}

	return report
}

func newReportItem(s *SlowQuerySummary, loc *time.Location) *ReportItem {
	item := &ReportItem{
		QueryID:       QueryID(s.Fingerprint),
		Kind:          StatementKind(s.Fingerprint),
		Count:         s.TotalQueryCount,
		TotalTime:     s.TotalTime,
		MaxTime:       s.MaxTime,
		TotalLockTime: s.TotalLockTime,
		RowsSent:      s.TotalRowsSent,
		RowsExamined:  s.TotalRowsExamined,
		TimeRange:     TimeRange(s.FirstSeen, s.LastSeen, loc),
		Fingerprint:   s.Fingerprint,
		Sample:        s.Sample,
		WorstSample:   s.WorstSample,
		Histogram:     s.ComputeHistogram(),
	}

	if s.TotalQueryCount > 0 {
		item.MeanTime = s.TotalTime / float64(s.TotalQueryCount)
		item.MeanLockTime = s.TotalLockTime / float64(s.TotalQueryCount)
		item.MinTime = s.MinTime
	}
	item.Ratio = Ratio(s.TotalRowsExamined, s.TotalRowsSent)

	sorted := make([]float64, len(s.QueryTimes))
	copy(sorted, s.QueryTimes)
	sort.Float64s(sorted)
	item.P95 = Percentile(sorted, 0.95)
	item.P99 = Percentile(sorted, 0.99)

	return item
}

// Ratio returns examined/sent, or 0 when no rows were sent.
func Ratio(examined, sent uint64) float64 {
	if sent == 0 {
		return 0
	}
	return float64(examined) / float64(sent)
}

// QueryID is the hex MD5 digest of a fingerprint.
func QueryID(fingerprint string) string {
	sum := md5.Sum([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}

// StatementKind returns the upper-case leading verb of a fingerprint, or
// OtherKind.
func StatementKind(fingerprint string) string {
	b := []byte(fingerprint)
	if !statementKinds.Match(b) {
		return OtherKind
	}
	if k, ok := statementKinds.Lookup(b); ok {
		return k
	}
	return OtherKind
}

// TimeRange formats the span between first and last in loc. It returns "N/A"
// when no timestamp was observed.
func TimeRange(first, last time.Time, loc *time.Location) string {
	if first.IsZero() || last.IsZero() {
		return "N/A"
	}
	return first.In(loc).Format(timeRangeLayout) + " - " + last.In(loc).Format(timeRangeLayout)
}

var offsetPattern = regexp.MustCompile(`^([+-])(\d{2}):?(\d{2})$`)

// ParseTimezoneOffset parses a fixed UTC offset such as "+09:00", "-0530" or
// "Z" into a location.
func ParseTimezoneOffset(s string) (*time.Location, error) {
	if s == "Z" || s == "z" {
		return time.UTC, nil
	}
	m := offsetPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, xerrors.Errorf("%q: %w", s, ErrInvalidTimezone)
	}
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	if hours > 23 || minutes > 59 {
		return nil, xerrors.Errorf("%q out of range: %w", s, ErrInvalidTimezone)
	}

	offset := hours*3600 + minutes*60
	if m[1] == "-" {
		offset = -offset
	}
	return time.FixedZone(s, offset), nil
}
