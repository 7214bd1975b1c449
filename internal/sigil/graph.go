// Package sigil defines the anchor graph a user traces during sigil
// authentication: an ordered path of anchors from a single entry to a single
// exit. A Graph is validated once at construction and never mutated.
package sigil

import (
	"fmt"

	"github.com/nvandessel/sigilgate/internal/geometry"
)

// Anchor is a fixed point of the sigil.
type Anchor struct {
	ID      string         `json:"id" yaml:"id"`
	Pos     geometry.Point `json:"pos" yaml:"pos"`
	IsEntry bool           `json:"entry,omitempty" yaml:"entry,omitempty"`
	IsExit  bool           `json:"exit,omitempty" yaml:"exit,omitempty"`
}

// Edge is a directed segment between two anchors, by index.
type Edge struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// Graph is an immutable path graph of anchors.
type Graph struct {
	anchors []Anchor
	edges   []Edge
	entry   int
	exit    int
}

// NewPath builds a Graph whose edges follow anchor order. When no anchor is
// flagged, the first becomes the entry and the last the exit.
func NewPath(anchors []Anchor) (*Graph, error) {
	if len(anchors) < 2 {
		return nil, Errorf(ErrTooFewAnchors, "got %d", len(anchors))
	}

	cp := make([]Anchor, len(anchors))
	copy(cp, anchors)

	flagged := false
	for _, a := range cp {
		if a.IsEntry || a.IsExit {
			flagged = true
			break
		}
	}
	if !flagged {
		cp[0].IsEntry = true
		cp[len(cp)-1].IsExit = true
	}

	edges := make([]Edge, 0, len(cp)-1)
	for i := 0; i+1 < len(cp); i++ {
		edges = append(edges, Edge{From: i, To: i + 1})
	}
	return NewGraph(cp, edges)
}

// NewGraph validates anchors and edges and returns the immutable Graph.
//
// Rules:
//   - at least 2 anchors
//   - exactly one entry and one exit, on different anchors
//   - edges chain (edges[i].To == edges[i+1].From), start at the entry, end at
//     the exit, and visit every anchor exactly once
func NewGraph(anchors []Anchor, edges []Edge) (*Graph, error) {
	if len(anchors) < 2 {
		return nil, Errorf(ErrTooFewAnchors, "got %d", len(anchors))
	}

	entry, exit := -1, -1
	ids := make(map[string]bool, len(anchors))
	for i, a := range anchors {
		if a.ID != "" {
			if ids[a.ID] {
				return nil, Errorf(ErrInvalidPath, "duplicate anchor id %q", a.ID)
			}
			ids[a.ID] = true
		}
		if a.IsEntry {
			if entry >= 0 {
				return nil, Errorf(ErrInvalidEndpoints, "anchors %d and %d are both entries", entry, i)
			}
			entry = i
		}
		if a.IsExit {
			if exit >= 0 {
				return nil, Errorf(ErrInvalidEndpoints, "anchors %d and %d are both exits", exit, i)
			}
			exit = i
		}
	}
	if entry < 0 || exit < 0 {
		return nil, Errorf(ErrInvalidEndpoints, "need exactly one entry and one exit")
	}
	if entry == exit {
		return nil, Errorf(ErrInvalidEndpoints, "entry and exit are the same anchor (%d)", entry)
	}

	if len(edges) != len(anchors)-1 {
		return nil, Errorf(ErrInvalidPath, "%d anchors need %d edges, got %d", len(anchors), len(anchors)-1, len(edges))
	}

	visited := make([]bool, len(anchors))
	for i, e := range edges {
		if e.From < 0 || e.From >= len(anchors) || e.To < 0 || e.To >= len(anchors) {
			return nil, Errorf(ErrInvalidPath, "edge %d references unknown anchor", i)
		}
		if e.From == e.To {
			return nil, Errorf(ErrInvalidPath, "edge %d is a self-loop on anchor %d", i, e.From)
		}
		if i == 0 {
			if e.From != entry {
				return nil, Errorf(ErrInvalidPath, "path starts at anchor %d, entry is %d", e.From, entry)
			}
			visited[e.From] = true
		} else if edges[i-1].To != e.From {
			return nil, Errorf(ErrInvalidPath, "edge %d does not continue from edge %d (branch)", i, i-1)
		}
		if visited[e.To] {
			return nil, Errorf(ErrInvalidPath, "edge %d revisits anchor %d (cycle)", i, e.To)
		}
		visited[e.To] = true
	}
	if last := edges[len(edges)-1].To; last != exit {
		return nil, Errorf(ErrInvalidPath, "path ends at anchor %d, exit is %d", last, exit)
	}

	g := &Graph{
		anchors: make([]Anchor, len(anchors)),
		edges:   make([]Edge, len(edges)),
		entry:   entry,
		exit:    exit,
	}
	copy(g.anchors, anchors)
	copy(g.edges, edges)
	return g, nil
}

// Anchors returns a copy of the anchors.
func (g *Graph) Anchors() []Anchor {
	out := make([]Anchor, len(g.anchors))
	copy(out, g.anchors)
	return out
}

// Edges returns a copy of the edges in trace order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Anchor returns the anchor at index i.
func (g *Graph) Anchor(i int) Anchor { return g.anchors[i] }

// Edge returns the i-th edge in trace order.
func (g *Graph) Edge(i int) Edge { return g.edges[i] }

// NumEdges returns the number of edges to trace.
func (g *Graph) NumEdges() int { return len(g.edges) }

// Entry returns the entry anchor.
func (g *Graph) Entry() Anchor { return g.anchors[g.entry] }

// Exit returns the exit anchor.
func (g *Graph) Exit() Anchor { return g.anchors[g.exit] }

// Segment returns the endpoints of the i-th edge.
func (g *Graph) Segment(i int) (from, to geometry.Point) {
	e := g.edges[i]
	return g.anchors[e.From].Pos, g.anchors[e.To].Pos
}

// Label returns the anchor's ID, or a positional name when it has none.
func (g *Graph) Label(i int) string {
	if id := g.anchors[i].ID; id != "" {
		return id
	}
	return fmt.Sprintf("a%d", i)
}
