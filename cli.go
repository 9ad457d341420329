package slowdigest

import (
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source is one slow query log stream.
type Source struct {
	Name   string
	Reader io.Reader
}

type Options struct {
	// Limit caps the number of reported groups; negative means no cap.
	Limit    int
	Format   Format
	Location *time.Location
	// Concurrency is the number of sources read at once. Values below 1 read
	// sources one by one.
	Concurrency int
}

func Run(w io.Writer, sources []Source, opt Options) error {
	summarizer := Analyze(sources, opt.Concurrency)

	return Render(w, summarizer.Summarize(opt.Limit, opt.Location), opt.Format)
}

// Analyze parses and aggregates every source. A source that fails mid-stream
// is logged and contributes the queries read before the failure. Partial
// results are merged in source order, so the outcome does not depend on
// concurrency.
func Analyze(sources []Source, concurrency int) *Summarizer {
	fp := NewFingerprinter(NewRules())
	if concurrency < 1 {
		concurrency = 1
	}

	partials := make([]*Summarizer, len(sources))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			partials[i] = collectSource(fp, src)
			return nil
		})
	}
	_ = g.Wait()

	summarizer := NewSummarizer(fp)
	for _, p := range partials {
		summarizer.Merge(p)
	}
	return summarizer
}

func collectSource(fp *Fingerprinter, src Source) *Summarizer {
	s := NewSummarizer(fp)
	logger := log.WithField("source", src.Name)

	n, err := s.CollectAll(NewSlowQueryScanner(src.Reader))
	if err != nil {
		logger.WithError(err).Warnf("read failed after %d queries, skipping the rest of this source", n)
		return s
	}
	logger.Debugf("%d queries parsed", n)

	return s
}
