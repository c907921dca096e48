package graph

import "github.com/paulmach/orb"

// Graph is an immutable directed road graph in CSR (Compressed Sparse Row)
// format. Nodes are addressed by a dense index in [0, NumNodes); NodeID maps
// the index back to the identifier carried by the artifact.
//
// A Graph is never modified after Load or Build returns, so it is safe for
// any number of concurrent readers.
type Graph struct {
	NumNodes uint32
	NumEdges uint32
	FirstOut []uint32  // len: NumNodes + 1; FirstOut[i]..FirstOut[i+1] are edges from node i
	Head     []uint32  // len: NumEdges; target node for each edge
	Weight   []uint32  // len: NumEdges; length in millimeters
	NodeID   []int64   // len: NumNodes; external identifier, ascending
	NodeLat  []float64 // len: NumNodes
	NodeLon  []float64 // len: NumNodes

	// Comp labels each node with its weakly connected component. Nodes with
	// different labels can never reach each other.
	Comp []uint32
}

// EdgesFrom returns the range of edge indices for edges originating from node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// Coord returns the latitude and longitude of node u.
func (g *Graph) Coord(u uint32) (lat, lon float64) {
	return g.NodeLat[u], g.NodeLon[u]
}

// Has reports whether u is a valid node index.
func (g *Graph) Has(u uint32) bool {
	return u < g.NumNodes
}

// SameComponent reports whether u and v share a weakly connected component.
// A false result proves v is unreachable from u.
func (g *Graph) SameComponent(u, v uint32) bool {
	if g.Comp == nil {
		return true
	}
	return g.Comp[u] == g.Comp[v]
}

// Bound returns the bounding box of all node coordinates.
func (g *Graph) Bound() orb.Bound {
	if g.NumNodes == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{
		Min: orb.Point{g.NodeLon[0], g.NodeLat[0]},
		Max: orb.Point{g.NodeLon[0], g.NodeLat[0]},
	}
	for i := uint32(1); i < g.NumNodes; i++ {
		b = b.Extend(orb.Point{g.NodeLon[i], g.NodeLat[i]})
	}
	return b
}
