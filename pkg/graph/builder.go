package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/azybler/route_finder/pkg/geo"
)

// ErrInconsistent is wrapped by every structural validation failure.
var ErrInconsistent = errors.New("inconsistent graph")

// RawNode is a node as read from an artifact, before indexing.
type RawNode struct {
	ID  int64
	Lat float64
	Lon float64
}

// RawEdge is a directed edge between two external node IDs.
type RawEdge struct {
	From   int64
	To     int64
	Weight uint32 // millimeters
}

// Symmetrize returns edges plus the reverse of each edge. Used for
// artifacts that describe an undirected network.
func Symmetrize(edges []RawEdge) []RawEdge {
	out := make([]RawEdge, 0, 2*len(edges))
	for _, e := range edges {
		out = append(out, e, RawEdge{From: e.To, To: e.From, Weight: e.Weight})
	}
	return out
}

// Build validates raw nodes and edges and assembles a CSR Graph.
//
// Nodes are indexed in ascending ID order, so comparing indices is the same
// as comparing external IDs. Edges are ordered by (from, to, weight);
// parallel edges are all kept.
func Build(nodes []RawNode, edges []RawEdge) (*Graph, error) {
	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b RawNode) int { return cmp.Compare(a.ID, b.ID) })

	numNodes := uint32(len(sorted))
	nodeID := make([]int64, numNodes)
	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	for i, n := range sorted {
		if i > 0 && sorted[i-1].ID == n.ID {
			return nil, fmt.Errorf("%w: duplicate node id %d", ErrInconsistent, n.ID)
		}
		if err := geo.Validate(n.Lat, n.Lon); err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrInconsistent, n.ID, err)
		}
		nodeID[i] = n.ID
		nodeLat[i] = n.Lat
		nodeLon[i] = n.Lon
	}

	// Remap edges to dense indices, rejecting dangling references.
	type compactEdge struct {
		from, to, weight uint32
	}
	compact := make([]compactEdge, len(edges))
	for i, e := range edges {
		from, ok := slices.BinarySearch(nodeID, e.From)
		if !ok {
			return nil, fmt.Errorf("%w: edge %d references unknown node %d", ErrInconsistent, i, e.From)
		}
		to, ok := slices.BinarySearch(nodeID, e.To)
		if !ok {
			return nil, fmt.Errorf("%w: edge %d references unknown node %d", ErrInconsistent, i, e.To)
		}
		compact[i] = compactEdge{from: uint32(from), to: uint32(to), weight: e.Weight}
	}

	slices.SortFunc(compact, func(a, b compactEdge) int {
		if c := cmp.Compare(a.from, b.from); c != 0 {
			return c
		}
		if c := cmp.Compare(a.to, b.to); c != 0 {
			return c
		}
		return cmp.Compare(a.weight, b.weight)
	})

	numEdges := uint32(len(compact))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	weight := make([]uint32, numEdges)
	for i, e := range compact {
		head[i] = e.to
		weight[i] = e.weight
		firstOut[e.from+1]++
	}
	// Prefix sum.
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	g := &Graph{
		NumNodes: numNodes,
		NumEdges: numEdges,
		FirstOut: firstOut,
		Head:     head,
		Weight:   weight,
		NodeID:   nodeID,
		NodeLat:  nodeLat,
		NodeLon:  nodeLon,
	}
	g.Comp = componentLabels(g)
	return g, nil
}

// Validate checks the CSR and coordinate invariants of an assembled graph.
// Artifacts decoded straight into CSR arrays must pass it before use.
func (g *Graph) Validate() error {
	n := g.NumNodes
	if uint32(len(g.NodeID)) != n || uint32(len(g.NodeLat)) != n || uint32(len(g.NodeLon)) != n {
		return fmt.Errorf("%w: node arrays do not match NumNodes %d", ErrInconsistent, n)
	}
	if err := validateCSR(g.FirstOut, g.Head, n); err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistent, err)
	}
	if uint32(len(g.Head)) != g.NumEdges || uint32(len(g.Weight)) != g.NumEdges {
		return fmt.Errorf("%w: edge arrays do not match NumEdges %d", ErrInconsistent, g.NumEdges)
	}
	for i := uint32(1); i < n; i++ {
		if g.NodeID[i] <= g.NodeID[i-1] {
			return fmt.Errorf("%w: node ids not strictly ascending at index %d", ErrInconsistent, i)
		}
	}
	for i := range n {
		if err := geo.Validate(g.NodeLat[i], g.NodeLon[i]); err != nil {
			return fmt.Errorf("%w: node %d: %v", ErrInconsistent, g.NodeID[i], err)
		}
	}
	return nil
}

// validateCSR checks CSR invariants.
func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	if firstOut[0] != 0 {
		return fmt.Errorf("FirstOut[0]=%d, want 0", firstOut[0])
	}
	numEdges := firstOut[numNodes]
	if uint32(len(head)) != numEdges {
		return fmt.Errorf("Head length %d != FirstOut[NumNodes] %d", len(head), numEdges)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return fmt.Errorf("Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}
