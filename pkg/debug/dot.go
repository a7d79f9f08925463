// Package debug exposes a read-only introspection surface over a running
// xorbits node: Graphviz DOT dumps of subtask graphs and an HTTP surface
// (gin) with a live event stream (gorilla/websocket) over subpool health.
// Grounded on the teacher's general slim-debug-endpoint pattern; no
// Graphviz client exists anywhere in the example pack, so the DOT
// templates are rendered with stdlib text/template rather than a
// third-party graph library.
package debug

import (
	"fmt"
	"io"
	"text/template"

	"github.com/xorbits-io/xorbits/pkg/subtask"
)

var dotTemplate = template.Must(template.New("subtaskgraph").Parse(`digraph subtaskgraph {
  rankdir=LR;
  node [shape=box, fontsize=10];
{{- range .Nodes}}
  "{{.ID}}" [label="{{.Label}}"{{if .ShuffleProxy}}, style=filled, fillcolor=lightyellow{{end}}];
{{- end}}
{{- range .Edges}}
  "{{.From}}" -> "{{.To}}";
{{- end}}
}
`))

type dotNode struct {
	ID           string
	Label        string
	ShuffleProxy bool
}

type dotEdge struct {
	From string
	To   string
}

type dotData struct {
	Nodes []dotNode
	Edges []dotEdge
}

// WriteDOT renders g as Graphviz DOT source to w, one node per subtask
// (labeled with its logic key and band, if pinned) and one edge per
// dependency.
func WriteDOT(w io.Writer, g *subtask.Graph) error {
	data := dotData{}
	isProxy := make(map[string]bool)
	for _, s := range g.ShuffleProxySubtasks() {
		isProxy[s.ID] = true
	}

	for _, s := range g.Nodes() {
		label := s.ID
		if s.LogicKey != "" {
			label = fmt.Sprintf("%s\\n%s[%d/%d]", s.ID, s.LogicKey, s.LogicIndex, s.LogicParallelism)
		}
		if s.BandsSpecified && len(s.ExpectBands) > 0 {
			label += fmt.Sprintf("\\n%s", s.ExpectBands[0])
		}
		data.Nodes = append(data.Nodes, dotNode{ID: s.ID, Label: label, ShuffleProxy: isProxy[s.ID]})
		for _, succ := range g.Successors(s) {
			data.Edges = append(data.Edges, dotEdge{From: s.ID, To: succ.ID})
		}
	}

	return dotTemplate.Execute(w, data)
}
