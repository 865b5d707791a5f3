// Package production provides adapters that consume the scheduler's sink
// interface: channel publishing, an SQLite audit log, Prometheus metrics and
// session visualization.
package production

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/comalice/energyflow"
)

// DefaultVisualizer renders the session machine and tick events for dashboards.
type DefaultVisualizer struct{}

// ExportDOT generates Graphviz DOT source for the session machine with current highlighted.
func (v *DefaultVisualizer) ExportDOT(current energyflow.SessionState) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph Session {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	for _, state := range sessionStates() {
		style := ""
		if state == current {
			style = ` style=filled fillcolor=lightgreen`
		}
		shape := ""
		if state == energyflow.StateDrained {
			shape = ` shape=doublecircle`
		}
		fmt.Fprintf(&buf, "  %q [label=%q%s%s];\n", state.String(), state.String(), shape, style)
	}

	for _, edge := range collectEdges() {
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", edge.From, edge.To, edge.Label)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ExportJSON serializes a tick event to indented JSON.
func (v *DefaultVisualizer) ExportJSON(ev *energyflow.TickEvent) ([]byte, error) {
	return json.MarshalIndent(ev, "", "  ")
}

// ExportYAML serializes a tick event to YAML.
func (v *DefaultVisualizer) ExportYAML(ev *energyflow.TickEvent) ([]byte, error) {
	data, err := yaml.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return data, nil
}

// Edge represents a transition edge.
type Edge struct {
	From  string
	To    string
	Label string
}

// collectEdges collects all transitions.
func collectEdges() []Edge {
	transitions := energyflow.Transitions()
	edges := make([]Edge, 0, len(transitions))
	for _, t := range transitions {
		edges = append(edges, Edge{
			From:  t.Source.String(),
			To:    t.Target.String(),
			Label: t.Signal.String(),
		})
	}
	return edges
}

func sessionStates() []energyflow.SessionState {
	return []energyflow.SessionState{
		energyflow.StateIdle,
		energyflow.StateCharging,
		energyflow.StateFlowing,
		energyflow.StateStalling,
		energyflow.StateDrained,
	}
}
