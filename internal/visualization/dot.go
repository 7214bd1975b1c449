// Package visualization renders sigil graphs, optionally overlaid with the
// progress of the current attempt.
package visualization

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nvandessel/sigilgate/internal/geometry"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat accepts "dot" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatDOT, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want dot or json)", s)
}

// anchorColors maps anchor roles to DOT fill colors.
var anchorColors = map[string]string{
	"entry": "mediumseagreen",
	"exit":  "tomato",
	"inner": "lightgray",
}

// DOT scale: sigil units per inch.
const dotScale = 72.0

// RenderDOT produces a Graphviz DOT representation of the anchor graph.
// Anchors are pinned at their coordinates (use neato -n). When overlay is
// non-nil, completed edges are drawn bold and the edge being traced dashed.
func RenderDOT(g *sigil.Graph, overlay *verifier.Snapshot) string {
	var b strings.Builder
	b.WriteString("digraph sigil {\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	if overlay != nil {
		fmt.Fprintf(&b, "  label=%q;\n", overlayLabel(overlay))
	}
	b.WriteString("\n")

	for i, a := range g.Anchors() {
		// DOT's y axis points up; sigil coordinates point down.
		fmt.Fprintf(&b, "  %q [fillcolor=%q, pos=\"%.1f,%.1f!\"];\n",
			g.Label(i), anchorColors[role(a)], a.Pos.X/dotScale, -a.Pos.Y/dotScale)
	}
	b.WriteString("\n")

	for i := 0; i < g.NumEdges(); i++ {
		e := g.Edge(i)
		style := "solid"
		switch edgeState(i, overlay) {
		case "completed":
			style = "bold"
		case "active":
			style = "dashed"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=\"%d\", style=%s];\n",
			g.Label(e.From), g.Label(e.To), i, style)
	}

	b.WriteString("}\n")
	return b.String()
}

// AnchorJSON is one anchor in the JSON rendering.
type AnchorJSON struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Role string  `json:"role"`
}

// EdgeJSON is one edge in the JSON rendering.
type EdgeJSON struct {
	Index  int     `json:"index"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Length float64 `json:"length"`
	State  string  `json:"state,omitempty"`
}

// GraphJSON is the JSON rendering of a graph.
type GraphJSON struct {
	Anchors     []AnchorJSON       `json:"anchors"`
	Edges       []EdgeJSON         `json:"edges"`
	AnchorCount int                `json:"anchor_count"`
	EdgeCount   int                `json:"edge_count"`
	PathLength  float64            `json:"path_length"`
	Attempt     *verifier.Snapshot `json:"attempt,omitempty"`
}

// RenderJSON produces the graph as anchors and edges arrays.
func RenderJSON(g *sigil.Graph, overlay *verifier.Snapshot) GraphJSON {
	anchors := g.Anchors()
	out := GraphJSON{
		Anchors:     make([]AnchorJSON, 0, len(anchors)),
		Edges:       make([]EdgeJSON, 0, g.NumEdges()),
		AnchorCount: len(anchors),
		EdgeCount:   g.NumEdges(),
		Attempt:     overlay,
	}
	for i, a := range anchors {
		out.Anchors = append(out.Anchors, AnchorJSON{ID: g.Label(i), X: a.Pos.X, Y: a.Pos.Y, Role: role(a)})
	}
	for i := 0; i < g.NumEdges(); i++ {
		e := g.Edge(i)
		from, to := g.Segment(i)
		length := geometry.Distance(from, to)
		out.PathLength += length
		out.Edges = append(out.Edges, EdgeJSON{
			Index:  i,
			Source: g.Label(e.From),
			Target: g.Label(e.To),
			Length: length,
			State:  edgeState(i, overlay),
		})
	}
	return out
}

func role(a sigil.Anchor) string {
	switch {
	case a.IsEntry:
		return "entry"
	case a.IsExit:
		return "exit"
	}
	return "inner"
}

// edgeState reports "completed", "active" or "" for edge i.
func edgeState(i int, overlay *verifier.Snapshot) string {
	if overlay == nil {
		return ""
	}
	if slices.Contains(overlay.CompletedEdges, i) {
		return "completed"
	}
	if overlay.State == verifier.Tracing && !overlay.AwaitingRelease && i == overlay.CursorIndex {
		return "active"
	}
	return "pending"
}

func overlayLabel(s *verifier.Snapshot) string {
	label := fmt.Sprintf("%s attempt=%d retries=%d remaining=%dms",
		s.State, s.Attempt, s.RetryCount, s.RemainingTimeMs)
	if s.LastFailure != "" {
		label += " last_failure=" + string(s.LastFailure)
	}
	return label
}
