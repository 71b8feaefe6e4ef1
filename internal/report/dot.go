package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"
)

var dotTemplate = template.Must(template.New("dot").Parse(`digraph {{.Name}} {
	node [shape=box];
	host [label="<host>", shape=ellipse];
{{- range .Nodes}}
	{{.ID}} [label={{.Label}}];
{{- end}}
{{- range .Edges}}
	{{.From}} -> {{.To}} [label={{.Label}}];
{{- end}}
}
`))

type dotNode struct {
	ID, Label string
}

type dotEdge struct {
	From, To, Label string
}

// DotWriter renders the call graph in Graphviz format. Nodes show self and
// total time, edges show call count and time.
type DotWriter struct{}

func (DotWriter) Write(w io.Writer, r Report) error {
	data := struct {
		Name  string
		Nodes []dotNode
		Edges []dotEdge
	}{Name: strconv.Quote(r.Script)}

	for _, fs := range r.Snapshot.Functions() {
		data.Nodes = append(data.Nodes, dotNode{
			ID: nodeID(uint64(fs.Function.Address)),
			Label: strconv.Quote(fmt.Sprintf("%s\n%s self / %s total\n%d calls",
				fs.Function.Name, fs.SelfTime(), fs.TotalTime, fs.NumCalls)),
		})
	}
	for _, e := range r.Snapshot.Edges() {
		from := "host"
		if e.Caller != nil {
			from = nodeID(uint64(e.Caller.Address))
		}
		data.Edges = append(data.Edges, dotEdge{
			From:  from,
			To:    nodeID(uint64(e.Callee.Address)),
			Label: strconv.Quote(fmt.Sprintf("%dx %s", e.NumCalls, e.TotalTime)),
		})
	}

	var sb strings.Builder
	if err := dotTemplate.Execute(&sb, data); err != nil {
		return fmt.Errorf("failed to render call graph: %w", err)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func nodeID(address uint64) string {
	return fmt.Sprintf("f%X", address)
}
