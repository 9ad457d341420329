package slowdigest

import (
	"regexp"
	"strings"
)

// Placeholder replaces every literal value in a fingerprint.
const Placeholder = "?"

// Rules is the compiled, read-only set of normalization patterns. Build it
// once with NewRules and share it between Fingerprinters.
type Rules struct {
	use        *regexp.Regexp
	comment    *regexp.Regexp
	str        *regexp.Regexp
	number     *regexp.Regexp
	whitespace *regexp.Regexp
}

func NewRules() *Rules {
	return &Rules{
		use:     regexp.MustCompile(`(?i)\buse\s+\S+;`),
		comment: regexp.MustCompile(`(?s:/\*.*?\*/)|--[^\n]*`),
		// doubled quotes ('') are the only escape recognized; double-quoted
		// and backslash-escaped literals survive normalization.
		str:        regexp.MustCompile(`'(?:[^']|'')*'`),
		number:     regexp.MustCompile(`\b\d+\b`),
		whitespace: regexp.MustCompile(`\s+`),
	}
}

// Fingerprinter reduces SQL text to the key queries are grouped by.
type Fingerprinter struct {
	rules *Rules
}

func NewFingerprinter(rules *Rules) *Fingerprinter {
	return &Fingerprinter{rules: rules}
}

// Fingerprint removes USE statements and comments, replaces string and
// integer literals with Placeholder, collapses whitespace and lowercases the
// result. Fingerprint(Fingerprint(s)) == Fingerprint(s).
func (f *Fingerprinter) Fingerprint(sql string) string {
	r := f.rules

	s := r.use.ReplaceAllLiteralString(sql, "")
	s = r.comment.ReplaceAllLiteralString(s, "")
	s = r.str.ReplaceAllLiteralString(s, Placeholder)
	s = r.number.ReplaceAllLiteralString(s, Placeholder)
	s = strings.TrimSpace(r.whitespace.ReplaceAllLiteralString(s, " "))

	return strings.ToLower(s)
}
