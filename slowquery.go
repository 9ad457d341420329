package slowdigest

import (
	"bufio"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// SlowQueryScanner splits a slow query log into blocks and parses each
// block into a SlowQueryInfo. Use it like bufio.Scanner:
//
//	sc := NewSlowQueryScanner(f)
//	for sc.Next() {
//		info := sc.SlowQueryInfo()
//	}
//	if err := sc.Err(); err != nil {
//		// the source failed mid-stream
//	}
type SlowQueryScanner struct {
	reader  *bufio.Reader
	lineBuf []byte
	block   []string
	hasSQL  bool
	current *SlowQueryInfo
	err     error
	done    bool
}

const ioBufSize = 64 * 1024

const (
	userHostPrefix   = "# User@Host:"
	timePrefix       = "# Time:"
	annotationMarker = "#"
	queryTimeMarker  = "Query_time:"
)

// session variable assignments written by the server in front of a statement
var sessionVariablePrefixes = []string{
	"SET timestamp=",
	"SET insert_id=",
	"SET last_insert_id=",
}

// banner the server writes at the top of the file and after every log flush
var serverHeaderLine = regexp.MustCompile(`^(\S.*, Version: .*started with:|Tcp port: \d+\s+Unix socket: .*|Time\s+Id\s+Command\s+Argument)$`)

// metrics line written without the annotation marker
var bareMetricsLine = regexp.MustCompile(`^Query_time:\s*\S+\s+Lock_time:\s*\S+\s+Rows_sent:\s*\S+\s+Rows_examined:\s*\S+`)

var (
	queryTimeField    = regexp.MustCompile(`Query_time:\s*(\S*)`)
	lockTimeField     = regexp.MustCompile(`Lock_time:\s*(\S*)`)
	rowsSentField     = regexp.MustCompile(`Rows_sent:\s*(\S*)`)
	rowsExaminedField = regexp.MustCompile(`Rows_examined:\s*(\S*)`)
)

var timeLayouts = []string{
	time.RFC3339Nano,
	// MySQL 5.x: "# Time: 231027 10:00:00"
	"060102 15:04:05",
}

func NewSlowQueryScanner(r io.Reader) *SlowQueryScanner {
	return &SlowQueryScanner{
		reader: bufio.NewReaderSize(r, ioBufSize),
	}
}

// SlowQueryInfo returns the record produced by the last successful call to Next.
func (s *SlowQueryScanner) SlowQueryInfo() *SlowQueryInfo {
	return s.current
}

// Err returns the first non-EOF read error. Records returned before the
// error are valid; the block that was being read when it happened is dropped.
func (s *SlowQueryScanner) Err() error {
	return s.err
}

func (s *SlowQueryScanner) Next() bool {
	if s.err != nil || s.done {
		return false
	}
	for {
		line, err := s.nextLine()
		if err == io.EOF {
			s.done = true
			return s.flush()
		} else if err != nil {
			s.err = err
			s.block = s.block[:0]
			return false
		}

		if isBoundaryLine(line) && s.hasSQL {
			ok := s.flush()
			s.push(line)
			if ok {
				return true
			}
			continue
		}
		s.push(line)
	}
}

func (s *SlowQueryScanner) push(line string) {
	s.block = append(s.block, line)
	if t := strings.TrimSpace(line); t != "" && !isDirectiveLine(t) && !isMetricsLine(t) {
		s.hasSQL = true
	}
}

func (s *SlowQueryScanner) flush() bool {
	if len(s.block) == 0 {
		return false
	}
	info, ok := parseBlock(s.block)
	s.block = s.block[:0]
	s.hasSQL = false
	if !ok {
		return false
	}
	s.current = info
	return true
}

func (s *SlowQueryScanner) nextLine() (string, error) {
	s.lineBuf = s.lineBuf[:0]
	for {
		l, isPrefix, err := s.reader.ReadLine()
		if err != nil {
			if err == io.EOF && len(s.lineBuf) > 0 {
				return toLine(s.lineBuf), nil
			}
			return "", err
		}
		s.lineBuf = append(s.lineBuf, l...)
		if !isPrefix {
			return toLine(s.lineBuf), nil
		}
	}
}

func toLine(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func isBoundaryLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, userHostPrefix) || strings.HasPrefix(t, timePrefix)
}

// isMetricsLine reports whether t is a "# Query_time:" annotation. SQL text
// that merely mentions Query_time: is not.
func isMetricsLine(t string) bool {
	if strings.HasPrefix(t, annotationMarker) {
		return strings.Contains(t, queryTimeMarker)
	}
	return bareMetricsLine.MatchString(t)
}

func isDirectiveLine(t string) bool {
	if strings.HasPrefix(t, annotationMarker) {
		return true
	}
	for _, p := range sessionVariablePrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return serverHeaderLine.MatchString(t)
}

type QueryTime struct {
	QueryTime    float64
	LockTime     float64
	RowsSent     uint64
	RowsExamined uint64
}

type SlowQueryInfo struct {
	// Time is zero when the block had no parsable "# Time:" line.
	Time      time.Time
	UserHost  string
	RawQuery  string
	QueryTime QueryTime
}

// parseBlock extracts a record from the lines of one block. It reports false
// when the block holds no SQL text.
func parseBlock(lines []string) (*SlowQueryInfo, bool) {
	var info SlowQueryInfo
	sqlLines := make([]string, 0, len(lines))

	for _, line := range lines {
		t := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(t, userHostPrefix):
			info.UserHost = strings.TrimSpace(t[len(userHostPrefix):])
		case strings.HasPrefix(t, timePrefix):
			info.Time = parseTime(strings.TrimSpace(t[len(timePrefix):]))
		case isMetricsLine(t):
			parseQueryTime(&info.QueryTime, t)
		case isDirectiveLine(t):
		default:
			sqlLines = append(sqlLines, t)
		}
	}

	info.RawQuery = strings.TrimSpace(strings.Join(sqlLines, "\n"))
	if info.RawQuery == "" {
		return nil, false
	}
	return &info, true
}

func parseTime(str string) time.Time {
	str = strings.Join(strings.Fields(str), " ")
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseQueryTime reads the four metrics of a "# Query_time:" line. Fields that
// are missing or malformed are left at zero.
func parseQueryTime(q *QueryTime, str string) {
	q.QueryTime = floatField(queryTimeField, str)
	q.LockTime = floatField(lockTimeField, str)
	q.RowsSent = uintField(rowsSentField, str)
	q.RowsExamined = uintField(rowsExaminedField, str)
}

func floatField(re *regexp.Regexp, str string) float64 {
	m := re.FindStringSubmatch(str)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func uintField(re *regexp.Regexp, str string) uint64 {
	m := re.FindStringSubmatch(str)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
