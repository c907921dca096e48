package graph

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte // byte is sufficient — max rank ~30 for realistic graphs
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}

	// Union by rank.
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// weakUnion unions every edge of g, ignoring direction.
func weakUnion(g *Graph) *UnionFind {
	uf := NewUnionFind(g.NumNodes)
	for u := uint32(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			uf.Union(u, g.Head[e])
		}
	}
	return uf
}

// componentLabels assigns each node a dense weak component label. Labels are
// numbered in order of each component's lowest node index.
func componentLabels(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}
	uf := weakUnion(g)

	const unset = ^uint32(0)
	byRoot := make([]uint32, g.NumNodes)
	for i := range byRoot {
		byRoot[i] = unset
	}

	labels := make([]uint32, g.NumNodes)
	var next uint32
	for i := uint32(0); i < g.NumNodes; i++ {
		root := uf.Find(i)
		if byRoot[root] == unset {
			byRoot[root] = next
			next++
		}
		labels[i] = byRoot[root]
	}
	return labels
}

// NumComponents returns the number of weakly connected components.
func (g *Graph) NumComponents() uint32 {
	var n uint32
	for _, c := range g.Comp {
		n = max(n, c+1)
	}
	return n
}

// LargestComponent returns the node indices belonging to the largest
// weakly connected component (treating the directed graph as undirected).
func LargestComponent(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}

	uf := weakUnion(g)

	// Find the representative with the largest size.
	bestRoot := uint32(0)
	bestSize := uint32(0)
	for i := uint32(0); i < g.NumNodes; i++ {
		root := uf.Find(i)
		if uf.size[root] > bestSize {
			bestRoot = root
			bestSize = uf.size[root]
		}
	}

	// Collect all nodes in the largest component.
	nodes := make([]uint32, 0, bestSize)
	for i := uint32(0); i < g.NumNodes; i++ {
		if uf.Find(i) == bestRoot {
			nodes = append(nodes, i)
		}
	}

	return nodes
}

// FilterToComponent creates a new graph containing only the specified nodes,
// which must be in ascending index order (as LargestComponent returns them).
func FilterToComponent(g *Graph, nodes []uint32) *Graph {
	if len(nodes) == 0 {
		return &Graph{FirstOut: []uint32{0}}
	}

	// Build old→new node index mapping.
	oldToNew := make(map[uint32]uint32, len(nodes))
	for newIdx, oldIdx := range nodes {
		oldToNew[oldIdx] = uint32(newIdx)
	}

	numNodes := uint32(len(nodes))
	firstOut := make([]uint32, numNodes+1)
	var head, weight []uint32

	// Old edges are already sorted by (from, to, weight) and the mapping is
	// monotonic, so appending in node order keeps CSR order.
	for newU, oldU := range nodes {
		start, end := g.EdgesFrom(oldU)
		for e := start; e < end; e++ {
			if newV, ok := oldToNew[g.Head[e]]; ok {
				head = append(head, newV)
				weight = append(weight, g.Weight[e])
			}
		}
		firstOut[newU+1] = uint32(len(head))
	}

	nodeID := make([]int64, numNodes)
	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	for newIdx, oldIdx := range nodes {
		nodeID[newIdx] = g.NodeID[oldIdx]
		nodeLat[newIdx] = g.NodeLat[oldIdx]
		nodeLon[newIdx] = g.NodeLon[oldIdx]
	}

	out := &Graph{
		NumNodes: numNodes,
		NumEdges: uint32(len(head)),
		FirstOut: firstOut,
		Head:     head,
		Weight:   weight,
		NodeID:   nodeID,
		NodeLat:  nodeLat,
		NodeLon:  nodeLon,
	}
	out.Comp = componentLabels(out)
	return out
}
