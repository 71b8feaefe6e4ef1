package report

import (
	"fmt"
	"html/template"
	"io"
)

var htmlTemplate = template.Must(template.New("profile").Funcs(template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Profile of '{{.Script}}'</title>
	<style>
		table { border-collapse: collapse; width: 100%; }
		th, td { border: 1px solid #999; padding: 2px 6px; }
		td.num { text-align: right; }
	</style>
</head>
<body>
	<h1>Profile of '{{.Script}}'</h1>
	<h2>Generated on {{.Generated.Format "2006-01-02 15:04:05"}}</h2>
	<table id="stats">
		<thead>
			<tr>
				<th>Type</th>
				<th>Name</th>
				<th>Calls</th>
				<th>Self Time</th>
				<th>Self Time %</th>
				<th>Total Time</th>
				<th>Total Time %</th>
				<th>Average Time</th>
			</tr>
		</thead>
		<tbody>
{{- range .Rows}}
			<tr>
				<td>{{.Function.Kind}}</td>
				<td>{{.Function.Name}}</td>
				<td class="num">{{.Calls}}</td>
				<td class="num">{{.Self}}</td>
				<td class="num">{{pct .SelfPercent}}</td>
				<td class="num">{{.Total}}</td>
				<td class="num">{{pct .TotalPercent}}</td>
				<td class="num">{{.Average}}</td>
			</tr>
{{- end}}
		</tbody>
	</table>
{{- if .Edges}}
	<h2>Call graph</h2>
	<table id="calls">
		<thead>
			<tr><th>Caller</th><th>Callee</th><th>Calls</th><th>Total Time</th></tr>
		</thead>
		<tbody>
{{- range .Edges}}
			<tr><td>{{.Caller}}</td><td>{{.Callee}}</td><td class="num">{{.Calls}}</td><td class="num">{{.Total}}</td></tr>
{{- end}}
		</tbody>
	</table>
{{- end}}
{{- if .Generator}}
	<p class="generator">{{.Generator}}</p>
{{- end}}
</body>
</html>
`))

type htmlEdge struct {
	Caller, Callee string
	Calls          int64
	Total          string
}

// HTMLWriter renders a standalone HTML page.
type HTMLWriter struct{}

func (HTMLWriter) Write(w io.Writer, r Report) error {
	data := struct {
		Report
		Rows  []Row
		Edges []htmlEdge
	}{Report: r, Rows: Rows(r.Snapshot)}
	for _, e := range r.Snapshot.Edges() {
		data.Edges = append(data.Edges, htmlEdge{
			Caller: callerName(e),
			Callee: e.Callee.Name,
			Calls:  e.NumCalls,
			Total:  e.TotalTime.String(),
		})
	}
	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return nil
}
