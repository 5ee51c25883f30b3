package graph

import (
	"math"
)

// Point is a 2-D layout position in [-1, 1] on both axes.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SpringLayout computes a force-directed (Fruchterman-Reingold style)
// placement of the graph's nodes. k controls the ideal spacing between
// nodes; iterations controls how long forces are simulated. The layout has
// no analytical meaning, it only spreads the money-flow network for display.
// Initial positions come from a deterministic circle so repeated runs over
// the same graph produce the same picture.
func (g *Directed) SpringLayout(k float64, iterations int) map[string]Point {
	n := len(g.nodes)
	pos := make(map[string]Point, n)
	if n == 0 {
		return pos
	}
	if n == 1 {
		pos[g.nodes[0]] = Point{}
		return pos
	}
	if k <= 0 {
		k = math.Sqrt(1.0 / float64(n))
	}
	if iterations <= 0 {
		iterations = 50
	}

	// Seed nodes on a circle in insertion order.
	for i, id := range g.nodes {
		angle := 2 * math.Pi * float64(i) / float64(n)
		pos[id] = Point{X: math.Cos(angle), Y: math.Sin(angle)}
	}

	// Temperature limits per-step displacement and cools linearly.
	temp := 0.1
	cool := temp / float64(iterations+1)

	disp := make(map[string]Point, n)

	for iter := 0; iter < iterations; iter++ {
		for _, id := range g.nodes {
			disp[id] = Point{}
		}

		// Repulsion between every node pair.
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				a, b := g.nodes[i], g.nodes[j]
				dx := pos[a].X - pos[b].X
				dy := pos[a].Y - pos[b].Y
				dist := math.Hypot(dx, dy)
				if dist < 1e-9 {
					dist = 1e-9
					dx = 1e-9
				}
				force := k * k / dist
				fx := dx / dist * force
				fy := dy / dist * force
				disp[a] = Point{X: disp[a].X + fx, Y: disp[a].Y + fy}
				disp[b] = Point{X: disp[b].X - fx, Y: disp[b].Y - fy}
			}
		}

		// Attraction along edges.
		for _, e := range g.edges {
			dx := pos[e.From].X - pos[e.To].X
			dy := pos[e.From].Y - pos[e.To].Y
			dist := math.Hypot(dx, dy)
			if dist < 1e-9 {
				continue
			}
			force := dist * dist / k
			fx := dx / dist * force
			fy := dy / dist * force
			disp[e.From] = Point{X: disp[e.From].X - fx, Y: disp[e.From].Y - fy}
			disp[e.To] = Point{X: disp[e.To].X + fx, Y: disp[e.To].Y + fy}
		}

		// Apply displacements capped by temperature.
		for _, id := range g.nodes {
			d := disp[id]
			length := math.Hypot(d.X, d.Y)
			if length < 1e-9 {
				continue
			}
			step := math.Min(length, temp)
			pos[id] = Point{
				X: pos[id].X + d.X/length*step,
				Y: pos[id].Y + d.Y/length*step,
			}
		}
		temp -= cool
	}

	return normalize(pos)
}

// normalize rescales positions into [-1, 1] preserving aspect ratio.
func normalize(pos map[string]Point) map[string]Point {
	maxAbs := 0.0
	for _, p := range pos {
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	if maxAbs < 1e-9 {
		return pos
	}
	for id, p := range pos {
		pos[id] = Point{X: p.X / maxAbs, Y: p.Y / maxAbs}
	}
	return pos
}
