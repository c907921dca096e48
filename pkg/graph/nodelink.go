package graph

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/goccy/go-json"
)

// nodeLinkDoc is the node-link JSON layout written by networkx/osmnx
// (nx.node_link_data). Some exporters nest it under a "graph" key next to
// their own metadata, so Graph is decoded again when Nodes is empty.
type nodeLinkDoc struct {
	Directed *bool           `json:"directed"`
	Nodes    []nodeLinkNode  `json:"nodes"`
	Links    []nodeLinkEdge  `json:"links"`
	Edges    []nodeLinkEdge  `json:"edges"` // networkx >= 3.4
	Graph    json.RawMessage `json:"graph"`
}

type nodeLinkNode struct {
	ID  int64    `json:"id"`
	X   *float64 `json:"x"`
	Y   *float64 `json:"y"`
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type nodeLinkEdge struct {
	Source int64    `json:"source"`
	Target int64    `json:"target"`
	Length *float64 `json:"length"` // meters
}

// ReadNodeLink loads a node-link JSON artifact. Links of an undirected
// document are expanded to both directions.
func ReadNodeLink(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	return decodeNodeLink(f)
}

func decodeNodeLink(r io.Reader) (*Graph, error) {
	var doc nodeLinkDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode node-link json: %v", ErrCorrupt, err)
	}
	if len(doc.Nodes) == 0 && len(doc.Graph) > 0 && doc.Graph[0] == '{' {
		var inner nodeLinkDoc
		if err := json.Unmarshal(doc.Graph, &inner); err != nil {
			return nil, fmt.Errorf("%w: decode nested graph: %v", ErrCorrupt, err)
		}
		if len(inner.Nodes) > 0 {
			doc = inner
		}
	}
	if len(doc.Nodes) > maxNodes {
		return nil, fmt.Errorf("%w: %d nodes exceeds limit %d", ErrCorrupt, len(doc.Nodes), maxNodes)
	}

	nodes := make([]RawNode, len(doc.Nodes))
	for i, n := range doc.Nodes {
		lat, lon, ok := n.coord()
		if !ok {
			return nil, fmt.Errorf("%w: node %d has no coordinates", ErrInconsistent, n.ID)
		}
		nodes[i] = RawNode{ID: n.ID, Lat: lat, Lon: lon}
	}

	links := doc.Links
	if links == nil {
		links = doc.Edges
	}
	edges := make([]RawEdge, len(links))
	for i, l := range links {
		if l.Length == nil {
			return nil, fmt.Errorf("%w: link %d (%d->%d) has no length", ErrInconsistent, i, l.Source, l.Target)
		}
		w, err := metersToWeight(*l.Length)
		if err != nil {
			return nil, fmt.Errorf("%w: link %d (%d->%d): %v", ErrInconsistent, i, l.Source, l.Target, err)
		}
		edges[i] = RawEdge{From: l.Source, To: l.Target, Weight: w}
	}

	// networkx defaults to undirected when the flag is absent.
	if doc.Directed == nil || !*doc.Directed {
		edges = Symmetrize(edges)
	}
	if len(edges) > maxEdges {
		return nil, fmt.Errorf("%w: %d edges exceeds limit %d", ErrCorrupt, len(edges), maxEdges)
	}

	return Build(nodes, edges)
}

func (n nodeLinkNode) coord() (lat, lon float64, ok bool) {
	switch {
	case n.Y != nil && n.X != nil:
		return *n.Y, *n.X, true
	case n.Lat != nil && n.Lon != nil:
		return *n.Lat, *n.Lon, true
	}
	return 0, 0, false
}

// metersToWeight converts a length in meters to an edge weight in
// millimeters.
func metersToWeight(m float64) (uint32, error) {
	if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
		return 0, fmt.Errorf("length %v must be a finite non-negative number", m)
	}
	mm := math.Round(m * 1000)
	if mm > math.MaxUint32 {
		return 0, fmt.Errorf("length %v m exceeds maximum edge length", m)
	}
	return uint32(mm), nil
}
