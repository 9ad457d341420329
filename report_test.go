package slowdigest

import (
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/xerrors"
)

func TestPercentile(t *testing.T) {
	tenths := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	twenty := make([]float64, 20)
	for i := range twenty {
		twenty[i] = float64(i + 1)
	}

	cases := []struct {
		name   string
		sorted []float64
		p      float64
		expect float64
	}{
		{name: "empty", sorted: nil, p: 0.95, expect: 0},
		{name: "single p95", sorted: []float64{0.42}, p: 0.95, expect: 0.42},
		{name: "single p0", sorted: []float64{0.42}, p: 0, expect: 0.42},
		{name: "single p100", sorted: []float64{0.42}, p: 1, expect: 0.42},
		{name: "ten p95", sorted: tenths, p: 0.95, expect: 1.0},
		{name: "ten p99", sorted: tenths, p: 0.99, expect: 1.0},
		{name: "ten p50", sorted: tenths, p: 0.5, expect: 0.5},
		{name: "ten p100", sorted: tenths, p: 1, expect: 1.0},
		{name: "ten p0", sorted: tenths, p: 0, expect: 0.1},
		{name: "twenty p95", sorted: twenty, p: 0.95, expect: 19},
		{name: "twenty p99", sorted: twenty, p: 0.99, expect: 20},
		{name: "three p95", sorted: []float64{0.1, 0.2, 1.5}, p: 0.95, expect: 1.5},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Percentile(c.sorted, c.p); got != c.expect {
				t.Errorf("Percentile(%v, %v) = %v, want %v", c.sorted, c.p, got, c.expect)
			}
		})
	}
}

func TestPercentile_nearestRank(t *testing.T) {
	for n := 1; n <= 200; n++ {
		sorted := make([]float64, n)
		for i := range sorted {
			sorted[i] = float64(i)
		}
		for _, p := range []float64{0.01, 0.25, 0.5, 0.9, 0.95, 0.99} {
			idx := int(math.Ceil(float64(n)*p)) - 1
			if idx < 0 {
				idx = 0
			}
			if idx > n-1 {
				idx = n - 1
			}
			if got := Percentile(sorted, p); got != sorted[idx] {
				t.Errorf("n=%d p=%v: got %v, want %v", n, p, got, sorted[idx])
			}
		}
	}
}

func TestRatio(t *testing.T) {
	cases := []struct {
		examined, sent uint64
		expect         float64
	}{
		{examined: 7000, sent: 40, expect: 175},
		{examined: 10, sent: 4, expect: 2.5},
		{examined: 100, sent: 0, expect: 0},
		{examined: 0, sent: 0, expect: 0},
	}
	for _, c := range cases {
		if got := Ratio(c.examined, c.sent); got != c.expect {
			t.Errorf("Ratio(%d, %d) = %v, want %v", c.examined, c.sent, got, c.expect)
		}
	}
}

func TestStatementKind(t *testing.T) {
	cases := map[string]string{
		"select * from t where id = ?":         "SELECT",
		"insert into t values (?)":             "INSERT",
		"replace into t values (?)":            "REPLACE",
		"update t set a = ?":                   "UPDATE",
		"with x as (select ?) select * from x": "WITH",
		"set names ?":                          "SET",
		"(select ?) union (select ?)":          OtherKind,
		"selectx ?":                            OtherKind,
		"":                                     OtherKind,
	}
	for fingerprint, expect := range cases {
		if got := StatementKind(fingerprint); got != expect {
			t.Errorf("StatementKind(%q) = %q, want %q", fingerprint, got, expect)
		}
	}
}

func TestQueryID(t *testing.T) {
	if got, want := QueryID("select ?"), "1fe1379fe2a31b8d16219655761820a2"; got != want {
		t.Errorf("QueryID() = %q, want %q", got, want)
	}
}

func TestParseTimezoneOffset(t *testing.T) {
	cases := []struct {
		in      string
		offset  int
		wantErr bool
	}{
		{in: "+00:00", offset: 0},
		{in: "+09:00", offset: 9 * 3600},
		{in: "-05:30", offset: -(5*3600 + 30*60)},
		{in: "+0545", offset: 5*3600 + 45*60},
		{in: "Z", offset: 0},
		{in: "", wantErr: true},
		{in: "JST", wantErr: true},
		{in: "+9:00", wantErr: true},
		{in: "+24:00", wantErr: true},
		{in: "+09:60", wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			loc, err := ParseTimezoneOffset(c.in)
			if c.wantErr {
				if !xerrors.Is(err, ErrInvalidTimezone) {
					t.Errorf("err = %v, want ErrInvalidTimezone", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if _, offset := time.Date(2023, 1, 1, 0, 0, 0, 0, loc).Zone(); offset != c.offset {
				t.Errorf("offset = %d, want %d", offset, c.offset)
			}
		})
	}
}

func TestTimeRange(t *testing.T) {
	jst, err := ParseTimezoneOffset("+09:00")
	if err != nil {
		t.Fatal(err)
	}

	if got := TimeRange(time.Time{}, time.Time{}, time.UTC); got != "N/A" {
		t.Errorf("TimeRange() = %q, want N/A", got)
	}
	got := TimeRange(at(0), at(45), jst)
	if want := "2023-10-27 19:00:00 +0900 - 2023-10-27 19:45:00 +0900"; got != want {
		t.Errorf("TimeRange() = %q, want %q", got, want)
	}
}

func digestSummarizer(t testing.TB) *Summarizer {
	t.Helper()
	f, err := os.Open("./testdata/mysql-slow.digest.log")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s := NewSummarizer(NewFingerprinter(NewRules()))
	if _, err := s.CollectAll(NewSlowQueryScanner(f)); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSummarizer_Summarize(t *testing.T) {
	jst, err := ParseTimezoneOffset("+09:00")
	if err != nil {
		t.Fatal(err)
	}

	report := digestSummarizer(t).Summarize(20, jst)

	ordersFingerprint := "select * from orders where user_id = ? and status = ?;"
	updateFingerprint := "update stock set qty = qty - ? where item_id = ?;"
	expect := &Report{
		TotalQueryCount: 4,
		UniqueQueries:   2,
		TotalTime:       2.1,
		Items: []*ReportItem{
			{
				Rank:          1,
				QueryID:       "629437345ea3ab2e4c268676f6182a51",
				Kind:          "SELECT",
				Count:         3,
				Share:         1.8 / 2.1 * 100,
				TotalTime:     1.8,
				MeanTime:      0.6,
				MinTime:       0.1,
				MaxTime:       1.5,
				P95:           1.5,
				P99:           1.5,
				TotalLockTime: 0.0005,
				MeanLockTime:  0.0005 / 3,
				RowsSent:      40,
				RowsExamined:  7000,
				Ratio:         175,
				TimeRange:     "2023-10-27 18:00:00 +0900 - 2023-10-27 20:00:00 +0900",
				Fingerprint:   ordersFingerprint,
				Sample:        "SELECT * FROM orders WHERE user_id = 7 AND status = 'open';",
				WorstSample:   "SELECT * FROM orders WHERE user_id = 8 AND status = 'closed';",
				Histogram:     Histogram{0, 0, 0, 0, 0, 0, 2, 1, 0},
			},
			{
				Rank:          2,
				QueryID:       QueryID(updateFingerprint),
				Kind:          "UPDATE",
				Count:         1,
				Share:         0.3 / 2.1 * 100,
				TotalTime:     0.3,
				MeanTime:      0.3,
				MinTime:       0.3,
				MaxTime:       0.3,
				P95:           0.3,
				P99:           0.3,
				TotalLockTime: 0.01,
				MeanLockTime:  0.01,
				RowsSent:      0,
				RowsExamined:  0,
				Ratio:         0,
				TimeRange:     "2023-10-27 18:10:00 +0900 - 2023-10-27 18:10:00 +0900",
				Fingerprint:   updateFingerprint,
				Sample:        "UPDATE stock SET qty = qty - 1 WHERE item_id = 3;",
				WorstSample:   "UPDATE stock SET qty = qty - 1 WHERE item_id = 3;",
				Histogram:     Histogram{0, 0, 0, 0, 0, 0, 1, 0, 0},
			},
		},
	}

	if diff := cmp.Diff(expect, report, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("diff: %s", diff)
	}
}

func TestSummarizer_Summarize_limit(t *testing.T) {
	s := NewSummarizer(NewFingerprinter(NewRules()))
	s.Collect(info("SELECT * FROM a", 1, time.Time{}))
	s.Collect(info("SELECT * FROM b", 3, time.Time{}))
	s.Collect(info("SELECT * FROM c", 2, time.Time{}))
	s.Collect(info("SELECT * FROM d", 0.5, time.Time{}))

	cases := []struct {
		name   string
		limit  int
		expect []string
	}{
		{name: "zero", limit: 0, expect: []string{}},
		{name: "two", limit: 2, expect: []string{"select * from b", "select * from c"}},
		{name: "more than groups", limit: 10, expect: []string{"select * from b", "select * from c", "select * from a", "select * from d"}},
		{name: "unbounded", limit: -1, expect: []string{"select * from b", "select * from c", "select * from a", "select * from d"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			report := s.Summarize(c.limit, nil)

			got := make([]string, 0, len(report.Items))
			for i, item := range report.Items {
				if item.Rank != i+1 {
					t.Errorf("item %d has rank %d", i, item.Rank)
				}
				if item.TimeRange != "N/A" {
					t.Errorf("TimeRange = %q, want N/A", item.TimeRange)
				}
				got = append(got, item.Fingerprint)
			}
			if diff := cmp.Diff(c.expect, got); diff != "" {
				t.Errorf("diff: %s", diff)
			}
			if report.UniqueQueries != 4 || report.TotalQueryCount != 4 {
				t.Errorf("totals = %d/%d, want 4/4", report.UniqueQueries, report.TotalQueryCount)
			}
		})
	}
}

func TestSummarizer_Summarize_empty(t *testing.T) {
	report := NewSummarizer(NewFingerprinter(NewRules())).Summarize(20, time.UTC)
	if len(report.Items) != 0 || report.TotalQueryCount != 0 {
		t.Errorf("expected an empty report, got %+v", report)
	}
}

func TestSummarizer_Summarize_doesNotReorderSamples(t *testing.T) {
	s := NewSummarizer(NewFingerprinter(NewRules()))
	s.Collect(info("SELECT 1", 0.9, time.Time{}))
	s.Collect(info("SELECT 2", 0.1, time.Time{}))

	s.Summarize(1, nil)

	if diff := cmp.Diff([]float64{0.9, 0.1}, s.Map()["select ?"].QueryTimes); diff != "" {
		t.Errorf("diff: %s", diff)
	}
}
