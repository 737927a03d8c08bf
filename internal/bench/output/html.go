package output

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/wesleyorama2/squall/internal/bench/engine"
	"github.com/wesleyorama2/squall/internal/bench/scoreboard"
)

// WriteHTML renders the report as a standalone HTML page at path.
func WriteHTML(r *engine.Report, path string) error {
	html, err := RenderHTML(r)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// RenderHTML renders the report as a standalone HTML page.
func RenderHTML(r *engine.Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"duration":    formatDuration,
		"latency":     formatDurationShort,
		"number":      formatNumber,
		"rate":        func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"failureRate": failureRate,
		"wallTime":    func(r *engine.Report) time.Duration { return r.EndTime.Sub(r.Timing.Start) },
	}
}

func failureRate(s scoreboard.CardStatistics) string {
	done := s.TotalOpsSuccessful + s.TotalOpsFailed
	if done == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(s.TotalOpsFailed)/float64(done)*100)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Name}} - Benchmark Report</title>
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; margin: 2rem; color: #1e293b; }
h1 { margin-bottom: 0; }
.meta { color: #64748b; margin-bottom: 2rem; }
table { border-collapse: collapse; margin: 0.5rem 0 1.5rem; }
th, td { padding: 0.3rem 0.8rem; border-bottom: 1px solid #e2e8f0; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.errors li { color: #ef4444; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<div class="meta">
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p>Run {{.RunID}} &middot; ramp-up {{duration .Timing.RampUp}} &middot; steady {{duration .Timing.Duration}} &middot; ramp-down {{duration .Timing.RampDown}} &middot; wall time {{duration (wallTime .)}}</p>
</div>

{{define "card"}}
<table>
<tr><th>Initiated</th><th>Successful</th><th>Failed</th><th>Failure rate</th><th>Late</th><th>Offered ops/s</th><th>Effective ops/s</th><th>Avg response</th></tr>
<tr><td>{{number .TotalOpsInitiated}}</td><td>{{number .TotalOpsSuccessful}}</td><td>{{number .TotalOpsFailed}}</td><td>{{failureRate .}}</td><td>{{number .TotalOpsLate}}</td><td>{{rate .OfferedLoad}}</td><td>{{rate .EffectiveLoad}}</td><td>{{latency .AverageResponseTime}}</td></tr>
</table>
{{end}}

<h2>Global</h2>
{{template "card" .Global}}

{{range .Targets}}
<h2>Target {{.Name}} <small>({{.Generator}})</small></h2>
<p>{{.Agents}} agents &middot; {{number .OperationsIssued}} operations issued &middot; {{.LoadCycles}} schedule cycles &middot; {{number .AsyncSubmitted}} async submitted</p>
{{template "card" .Statistics.Final}}
{{if .Statistics.Final.Operations}}
<table>
<tr><th>Operation</th><th>OK</th><th>Failed</th><th>ops/s</th><th>Avg</th><th>P50</th><th>P90</th><th>P95</th><th>P99</th><th>Max</th></tr>
{{range .Statistics.Final.Operations}}
<tr><td>{{.Name}}</td><td>{{number .Succeeded}}</td><td>{{number .Failed}}</td><td>{{rate .Throughput}}</td><td>{{latency .AverageResponseTime}}</td><td>{{latency .P50}}</td><td>{{latency .P90}}</td><td>{{latency .P95}}</td><td>{{latency .P99}}</td><td>{{latency .MaxResponseTime}}</td></tr>
{{end}}
</table>
{{end}}
{{range .Statistics.Intervals}}
<h3>Interval {{.Name}} <small>({{duration .Duration}})</small></h3>
{{template "card" .}}
{{end}}
{{with .Statistics.DropOff}}
<p>Result funnel: {{number .DropOffs}} drop-offs, {{number .Processed}} processed, {{number .Rejected}} rejected, lock wait max {{latency .MaxLockWait}}</p>
{{end}}
{{end}}

{{if .Aggregations}}
<h2>Aggregations</h2>
{{range .Aggregations}}
<h3>{{.Name}}</h3>
{{template "card" .}}
{{end}}
{{end}}

{{if .Errors}}
<h2>Errors</h2>
<ul class="errors">{{range .Errors}}<li>{{.}}</li>{{end}}</ul>
{{end}}
</body>
</html>
`
