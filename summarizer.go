package slowdigest

// Summarizer groups SlowQueryInfo records by fingerprint. A Summarizer is not
// safe for concurrent use; give each goroutine its own and Merge them.
type Summarizer struct {
	fp         *Fingerprinter
	m          map[string]*SlowQuerySummary
	totalTime  float64
	totalCount int
}

func NewSummarizer(fp *Fingerprinter) *Summarizer {
	return &Summarizer{
		fp: fp,
		m:  make(map[string]*SlowQuerySummary),
	}
}

func (s *Summarizer) Map() map[string]*SlowQuerySummary {
	return s.m
}

func (s *Summarizer) TotalQueryTime() float64 {
	return s.totalTime
}

func (s *Summarizer) TotalQueryCount() int {
	return s.totalCount
}

func (s *Summarizer) Collect(i *SlowQueryInfo) {
	key := s.fp.Fingerprint(i.RawQuery)
	summary, ok := s.m[key]
	if !ok {
		summary = newSlowQuerySummary(key)
		s.m[key] = summary
	}
	summary.appendQueryTime(i)
	s.totalTime += i.QueryTime.QueryTime
	s.totalCount++
}

// CollectAll drains sc and returns the number of records collected.
func (s *Summarizer) CollectAll(sc *SlowQueryScanner) (int, error) {
	n := 0
	for sc.Next() {
		s.Collect(sc.SlowQueryInfo())
		n++
	}
	return n, sc.Err()
}

// Merge folds o into s. o must have been fed records that came after the ones
// fed to s; first seen samples are taken from s.
func (s *Summarizer) Merge(o *Summarizer) {
	for key, summary := range o.m {
		if cur, ok := s.m[key]; ok {
			cur.merge(summary)
			continue
		}
		s.m[key] = summary
	}
	s.totalTime += o.totalTime
	s.totalCount += o.totalCount
}
