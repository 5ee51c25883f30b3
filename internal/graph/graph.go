// Package graph holds the directed weighted graph produced by the
// mirror-match detector, plus a force-directed layout for visualization.
package graph

// Edge is a directed money-flow edge. Repeated matches between the same
// ordered client pair accumulate onto one edge; parallel edges never exist.
type Edge struct {
	From   string
	To     string
	Weight int
	Amount float64
}

// Directed is a directed weighted graph keyed by client identifier.
// Node and edge iteration order is insertion order, which keeps detector
// output deterministic for a given input ordering.
type Directed struct {
	nodeSet map[string]struct{}
	nodes   []string
	edgeSet map[[2]string]*Edge
	edges   []*Edge
	degree  map[string]int
}

// NewDirected creates an empty graph.
func NewDirected() *Directed {
	return &Directed{
		nodeSet: make(map[string]struct{}),
		edgeSet: make(map[[2]string]*Edge),
		degree:  make(map[string]int),
	}
}

// AddMatch records one matched transaction pair from the outflow client to
// the inflow client, accumulating weight and amount on the existing edge
// when the ordered pair has been seen before.
func (g *Directed) AddMatch(from, to string, amount float64) {
	g.addNode(from)
	g.addNode(to)

	key := [2]string{from, to}
	if e, ok := g.edgeSet[key]; ok {
		e.Weight++
		e.Amount += amount
		return
	}

	e := &Edge{From: from, To: to, Weight: 1, Amount: amount}
	g.edgeSet[key] = e
	g.edges = append(g.edges, e)
	g.degree[from]++
	g.degree[to]++
}

func (g *Directed) addNode(id string) {
	if _, ok := g.nodeSet[id]; ok {
		return
	}
	g.nodeSet[id] = struct{}{}
	g.nodes = append(g.nodes, id)
}

// Nodes returns node identifiers in insertion order.
func (g *Directed) Nodes() []string {
	return g.nodes
}

// Edges returns edges in insertion order.
func (g *Directed) Edges() []*Edge {
	return g.edges
}

// Degree returns the number of distinct incident edges (in plus out) of a
// node. Accumulated matches on one edge count once.
func (g *Directed) Degree(id string) int {
	return g.degree[id]
}

// Order returns the node count.
func (g *Directed) Order() int {
	return len(g.nodes)
}

// Size returns the edge count.
func (g *Directed) Size() int {
	return len(g.edges)
}

// NodeSize maps a node degree to a marker size for rendering. Higher-degree
// nodes draw larger.
func NodeSize(degree int) float64 {
	return 20 + 5*float64(degree)
}
