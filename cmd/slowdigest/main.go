package main

import (
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/akito0107/slowdigest"
	"github.com/akito0107/slowdigest/internal/config"
)

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	files       stringList
	limit       int
	format      string
	output      string
	timezone    string
	concurrency int
	configPath  string
	profile     string
	verbose     bool
}

func newFlagSet(o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("slowdigest", flag.ExitOnError)
	fs.Var(&o.files, "f", "slow log filepath, repeatable (default stdin)")
	fs.IntVar(&o.limit, "n", config.DefaultLimit, "number of queries to report")
	fs.StringVar(&o.format, "format", config.DefaultFormat, "output format: table, html or json")
	fs.StringVar(&o.output, "o", "", "output filepath (default stdout)")
	fs.StringVar(&o.timezone, "tz", config.DefaultTimezone, "UTC offset used to print time ranges, e.g. +09:00")
	fs.IntVar(&o.concurrency, "j", 1, "number of log files read concurrently")
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.profile, "profile", "", "write a cpu, mem or trace profile to the current directory")
	fs.BoolVar(&o.verbose, "v", false, "verbose logging")
	return fs
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var o options
	fs := newFlagSet(&o)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if o.verbose {
		log.SetLevel(log.DebugLevel)
	}
	if p := startProfile(o.profile); p != nil {
		defer p.Stop()
	}

	cfg, err := resolveConfig(&o, fs)
	if err != nil {
		return err
	}

	loc, err := slowdigest.ParseTimezoneOffset(cfg.Timezone)
	if err != nil {
		log.WithError(err).Warn("falling back to UTC")
		loc = time.UTC
	}
	format, err := slowdigest.ParseFormat(cfg.Format)
	if err != nil {
		log.WithError(err).Warnf("falling back to %v", format)
	}

	sources, closeAll := openSources(cfg.Files)
	defer closeAll()

	opt := slowdigest.Options{
		Limit:       cfg.Limit,
		Format:      format,
		Location:    loc,
		Concurrency: cfg.Concurrency,
	}
	if cfg.Output == "" {
		return slowdigest.Run(os.Stdout, sources, opt)
	}
	return writeOutput(cfg.Output, func(w io.Writer) error {
		return slowdigest.Run(w, sources, opt)
	})
}

// writeOutput creates path, hands it to write and closes it. A failed close
// is reported since it can lose the tail of the report.
func writeOutput(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("create output: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("close output: %w", err)
	}
	return nil
}

// resolveConfig layers the config file, if any, over the defaults and the
// explicitly set flags over both.
func resolveConfig(o *options, fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "f":
			cfg.Files = o.files
		case "n":
			cfg.Limit = o.limit
		case "format":
			cfg.Format = o.format
		case "o":
			cfg.Output = o.output
		case "tz":
			cfg.Timezone = o.timezone
		case "j":
			cfg.Concurrency = o.concurrency
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSources opens every readable path and warns about the rest. No paths
// means stdin.
func openSources(paths []string) ([]slowdigest.Source, func()) {
	if len(paths) == 0 {
		return []slowdigest.Source{{Name: "stdin", Reader: os.Stdin}}, func() {}
	}

	var files []*os.File
	sources := make([]slowdigest.Source, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			log.WithError(err).Warnf("could not open %s", path)
			continue
		}
		files = append(files, f)
		sources = append(sources, slowdigest.Source{Name: path, Reader: f})
	}

	return sources, func() {
		for _, f := range files {
			f.Close()
		}
	}
}

func startProfile(mode string) interface{ Stop() } {
	switch mode {
	case "":
		return nil
	case "cpu":
		return profile.Start(profile.ProfilePath("."), profile.CPUProfile)
	case "mem":
		return profile.Start(profile.ProfilePath("."), profile.MemProfile)
	case "trace":
		return profile.Start(profile.ProfilePath("."), profile.TraceProfile)
	}
	log.Warnf("unknown profile mode %q, profiling disabled", mode)
	return nil
}
