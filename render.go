package slowdigest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/table"
	"golang.org/x/xerrors"
)

// Format selects one of the report renderers.
type Format int

const (
	FormatTable Format = iota
	FormatHTML
	FormatJSON
)

var ErrUnknownFormat = xerrors.New("unknown output format")

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "html":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatTable, xerrors.Errorf("%q: %w", s, ErrUnknownFormat)
}

func (f Format) String() string {
	switch f {
	case FormatTable:
		return "table"
	case FormatHTML:
		return "html"
	case FormatJSON:
		return "json"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Render writes r to w in format f.
func Render(w io.Writer, r *Report, f Format) error {
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatTable:
		err = renderTable(&buf, r)
	case FormatHTML:
		err = htmlReport.Execute(&buf, r)
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(r)
	default:
		return xerrors.Errorf("%v: %w", f, ErrUnknownFormat)
	}
	if err != nil {
		return xerrors.Errorf("render %v: %w", f, err)
	}

	if _, err := buf.WriteTo(w); err != nil {
		return xerrors.Errorf("write report: %w", err)
	}
	return nil
}

const (
	tableQueryWidth = 50
	htmlQueryWidth  = 100
)

// displayQuery puts q on one line and cuts it to at most width runes.
func displayQuery(q string, width int) string {
	q = strings.ReplaceAll(q, "\n", " ")
	r := []rune(q)
	if len(r) <= width {
		return q
	}
	return string(r[:width-3]) + "..."
}

func renderTable(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "Total queries: %d, unique: %d, total time: %.3fs\n\n", r.TotalQueryCount, r.UniqueQueries, r.TotalTime)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Rank", "Count", "Total Time", "Mean Time", "Share", "Kind", "Query ID", "Query"})
	for _, item := range r.Items {
		t.AppendRow(table.Row{
			item.Rank,
			item.Count,
			fmt.Sprintf("%.3fs", item.TotalTime),
			fmt.Sprintf("%.3fs", item.MeanTime),
			fmt.Sprintf("%.1f%%", item.Share),
			item.Kind,
			item.QueryID,
			displayQuery(item.Sample, tableQueryWidth),
		})
	}
	fmt.Fprintln(w, t.Render())

	fmt.Fprint(w, "\nDetailed Report\n===============\n")
	for _, item := range r.Items {
		fmt.Fprintf(w, "\nQuery ID: %s\n", item.QueryID)
		fmt.Fprintf(w, "Rank: %d\n", item.Rank)
		fmt.Fprintf(w, "  Time Range: %s\n", item.TimeRange)
		fmt.Fprintf(w, "  Execution Stats:\n")
		fmt.Fprintf(w, "    Count: %d\n", item.Count)
		fmt.Fprintf(w, "    Total Time: %.3fs\n", item.TotalTime)
		fmt.Fprintf(w, "    Mean Time:  %.3fs\n", item.MeanTime)
		fmt.Fprintf(w, "    Min Time:   %.3fs\n", item.MinTime)
		fmt.Fprintf(w, "    Max Time:   %.3fs\n", item.MaxTime)
		fmt.Fprintf(w, "    P95:        %.3fs\n", item.P95)
		fmt.Fprintf(w, "    P99:        %.3fs\n", item.P99)
		fmt.Fprintf(w, "    Total Lock Time: %.3fs\n", item.TotalLockTime)
		fmt.Fprintf(w, "    Mean Lock Time:  %.3fs\n", item.MeanLockTime)
		fmt.Fprintf(w, "  Row Stats:\n")
		fmt.Fprintf(w, "    Sent:       %d\n", item.RowsSent)
		fmt.Fprintf(w, "    Examined:   %d\n", item.RowsExamined)
		fmt.Fprintf(w, "    Examined/Sent Ratio: %.2f\n", item.Ratio)
		fmt.Fprintf(w, "  Query_time distribution:\n%v", item.Histogram)
		fmt.Fprintf(w, "  Normalized Query:\n    %s\n", strings.TrimSpace(item.Fingerprint))
		fmt.Fprintf(w, "  Worst Case Example:\n    %s\n", strings.TrimSpace(item.WorstSample))
		fmt.Fprintln(w, strings.Repeat("-", 80))
	}
	return nil
}

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"seconds": func(v float64) string { return fmt.Sprintf("%.3fs", v) },
	"ratio":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"display": func(q string) string { return displayQuery(q, htmlQueryWidth) },
	"trim":    strings.TrimSpace,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Slow Query Digest Report</title>
<style>
body { font-family: sans-serif; margin: 20px; }
table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }
.query-block { border: 1px solid #ccc; padding: 15px; margin-bottom: 20px; border-radius: 5px; }
.query-sql { background-color: #f8f8f8; padding: 10px; overflow-x: auto; font-family: monospace; }
.query-id { font-family: monospace; }
.copy-btn { margin-bottom: 5px; padding: 5px 10px; cursor: pointer; }
</style>
<script>
function copyToClipboard(elementId) {
  var copyText = document.getElementById(elementId).innerText;
  navigator.clipboard.writeText(copyText);
}
</script>
</head>
<body>
<h1 id="top">Slow Query Digest Report</h1>
<p>Total queries: {{.TotalQueryCount}}, unique: {{.UniqueQueries}}, total time: {{seconds .TotalTime}}</p>
<h2>Summary</h2>
<table>
<thead><tr><th>Rank</th><th>Count</th><th>Total Time</th><th>Mean Time</th><th>Share</th><th>Kind</th><th>Query ID</th><th>Query</th></tr></thead>
<tbody>
{{- range .Items}}
<tr>
<td>{{.Rank}}</td>
<td>{{.Count}}</td>
<td>{{seconds .TotalTime}}</td>
<td>{{seconds .MeanTime}}</td>
<td>{{percent .Share}}</td>
<td>{{.Kind}}</td>
<td class="query-id"><a href="#{{.QueryID}}">{{.QueryID}}</a></td>
<td>{{display .Sample}}</td>
</tr>
{{- end}}
</tbody>
</table>
<h2>Detailed Report</h2>
{{- range .Items}}
<div id="{{.QueryID}}" class="query-block">
<h3>Rank {{.Rank}}: Query ID {{.QueryID}}</h3>
<p><strong>Time Range:</strong> {{.TimeRange}}</p>
<h4>Execution Stats</h4>
<ul>
<li>Count: {{.Count}}</li>
<li>Total Time: {{seconds .TotalTime}}</li>
<li>Mean Time: {{seconds .MeanTime}}</li>
<li>Min Time: {{seconds .MinTime}}</li>
<li>Max Time: {{seconds .MaxTime}}</li>
<li>P95: {{seconds .P95}}</li>
<li>P99: {{seconds .P99}}</li>
<li>Total Lock Time: {{seconds .TotalLockTime}}</li>
<li>Mean Lock Time: {{seconds .MeanLockTime}}</li>
</ul>
<h4>Row Stats</h4>
<ul>
<li>Sent: {{.RowsSent}}</li>
<li>Examined: {{.RowsExamined}}</li>
<li>Examined/Sent Ratio: {{ratio .Ratio}}</li>
</ul>
<h4>Normalized Query</h4>
<button class="copy-btn" onclick="copyToClipboard('norm-sql-{{.QueryID}}')">Copy SQL</button>
<div class="query-sql"><pre id="norm-sql-{{.QueryID}}">{{trim .Fingerprint}}</pre></div>
<h4>Worst Case Example</h4>
<button class="copy-btn" onclick="copyToClipboard('sql-{{.QueryID}}')">Copy SQL</button>
<div class="query-sql"><pre id="sql-{{.QueryID}}">{{trim .WorstSample}}</pre></div>
<p><a href="#top">Back to Top</a></p>
</div>
{{- end}}
</body>
</html>
`))
