// Package visualization renders walks in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/latwalk/internal/lattice"
)

// Format specifies the output format for walk rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatSVG  Format = "svg"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON, FormatSVG:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: dot, json, svg)", s)
	}
}

// Edge kinds.
const (
	EdgeStep    = "step"
	EdgeContact = "contact"
)

// Edge joins two walk points by index.
type Edge struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Kind string `json:"kind"`
}

// Graph is a walk with its steps and nearest-neighbour contacts.
type Graph struct {
	Lattice  string          `json:"lattice"`
	Points   []lattice.Point `json:"points"`
	Edges    []Edge          `json:"edges"`
	Contacts int             `json:"contacts"`
}

// Build collects the step edges of points and every contact: a lattice bond
// between non-consecutive points, neither of them the origin.
func Build(l lattice.Lattice, points []lattice.Point) *Graph {
	g := &Graph{Lattice: l.Name(), Points: points}
	index := make(map[lattice.Point]int, len(points))
	for i, p := range points {
		index[p] = i
	}
	for i := 1; i < len(points); i++ {
		g.Edges = append(g.Edges, Edge{From: i - 1, To: i, Kind: EdgeStep})
	}
	var buf []lattice.Point
	for i := 1; i < len(points); i++ {
		buf = l.AppendNeighbours(buf[:0], points[i])
		for _, q := range buf {
			j, ok := index[q]
			// Each contact once, from its lower index.
			if !ok || j == 0 || j <= i+1 {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: i, To: j, Kind: EdgeContact})
			g.Contacts++
		}
	}
	return g
}

// RenderDOT produces a Graphviz DOT graph with pinned positions, meant for
// neato -n.
func RenderDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph walk {\n")
	fmt.Fprintf(&b, "  label=%q;\n", fmt.Sprintf("%s walk, %d steps, %d contacts", g.Lattice, len(g.Points)-1, g.Contacts))
	b.WriteString("  node [shape=circle, width=0.15, label=\"\", style=filled, fillcolor=steelblue];\n\n")

	for i, p := range g.Points {
		color := "steelblue"
		switch i {
		case 0:
			color = "tomato"
		case len(g.Points) - 1:
			color = "mediumseagreen"
		}
		fmt.Fprintf(&b, "  p%d [pos=\"%d,%d!\", fillcolor=%s, tooltip=%q];\n", i, p[0]*scale, p[1]*scale, color, p.String())
	}
	b.WriteString("\n")
	for _, e := range g.Edges {
		style := "solid, penwidth=2"
		if e.Kind == EdgeContact {
			style = "dashed, color=goldenrod"
		}
		fmt.Fprintf(&b, "  p%d -- p%d [style=%s];\n", e.From, e.To, style)
	}
	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready representation with points and edges.
func RenderJSON(g *Graph) map[string]any {
	return map[string]any{
		"lattice":       g.Lattice,
		"points":        g.Points,
		"edges":         g.Edges,
		"point_count":   len(g.Points),
		"contact_count": g.Contacts,
	}
}

// scale is the drawing distance of one lattice unit, in points.
const scale = 36

// RenderSVG draws the walk as a standalone SVG document. The y axis points
// up as on the lattice.
func RenderSVG(g *Graph) string {
	if len(g.Points) == 0 {
		return `<svg xmlns="http://www.w3.org/2000/svg" width="0" height="0"></svg>` + "\n"
	}
	minX, maxX, minY, maxY := g.Points[0][0], g.Points[0][0], g.Points[0][1], g.Points[0][1]
	for _, p := range g.Points {
		minX, maxX = min(minX, p[0]), max(maxX, p[0])
		minY, maxY = min(minY, p[1]), max(maxY, p[1])
	}
	const pad = 1
	width := (maxX - minX + 2*pad) * scale
	height := (maxY - minY + 2*pad) * scale
	xy := func(p lattice.Point) (int, int) {
		return (p[0] - minX + pad) * scale, (maxY - p[1] + pad) * scale
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		width, height, width, height)
	for _, e := range g.Edges {
		x1, y1 := xy(g.Points[e.From])
		x2, y2 := xy(g.Points[e.To])
		attrs := `stroke="steelblue" stroke-width="4"`
		if e.Kind == EdgeContact {
			attrs = `stroke="goldenrod" stroke-width="2" stroke-dasharray="4 3"`
		}
		fmt.Fprintf(&b, `  <line x1="%d" y1="%d" x2="%d" y2="%d" %s/>`+"\n", x1, y1, x2, y2, attrs)
	}
	for i, p := range g.Points {
		x, y := xy(p)
		fill := "steelblue"
		switch i {
		case 0:
			fill = "tomato"
		case len(g.Points) - 1:
			fill = "mediumseagreen"
		}
		fmt.Fprintf(&b, `  <circle cx="%d" cy="%d" r="5" fill="%s"><title>%d %s</title></circle>`+"\n", x, y, fill, i, p)
	}
	b.WriteString("</svg>\n")
	return b.String()
}
