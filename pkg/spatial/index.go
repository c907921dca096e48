// Package spatial answers nearest-node queries over a road graph.
//
// Distances are great-circle (haversine) meters. Raw latitude/longitude
// degrees are never compared with planar Euclidean distance, which ranks
// neighbours wrongly away from the equator.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"github.com/azybler/route_finder/pkg/geo"
	"github.com/azybler/route_finder/pkg/graph"
)

var (
	// ErrEmptyIndex is returned when the graph has no nodes to snap to.
	ErrEmptyIndex = errors.New("spatial index is empty")

	// ErrPointTooFar is returned when the nearest node is farther away than
	// the configured maximum snap distance.
	ErrPointTooFar = errors.New("point too far from road network")
)

// Match is a query point resolved to a graph node.
type Match struct {
	Node           uint32
	DistanceMeters float64
}

// Option configures an Index.
type Option func(*Index)

// WithMaxDistance rejects matches farther than meters. Zero disables the
// limit.
func WithMaxDistance(meters float64) Option {
	return func(ix *Index) { ix.maxDist = meters }
}

// Index is an R-tree over the node coordinates of one graph. It is built
// once and only read afterwards; concurrent Nearest calls are safe.
type Index struct {
	tree    rtree.RTreeG[uint32]
	g       *graph.Graph
	maxDist float64
}

// Build indexes every node of g.
func Build(g *graph.Graph, opts ...Option) *Index {
	ix := &Index{g: g}
	for _, opt := range opts {
		opt(ix)
	}
	for u := uint32(0); u < g.NumNodes; u++ {
		pt := [2]float64{g.NodeLon[u], g.NodeLat[u]}
		ix.tree.Insert(pt, pt, u)
	}
	return ix
}

// Len returns the number of indexed nodes.
func (ix *Index) Len() int {
	return ix.tree.Len()
}

// Nearest returns the node closest to (lat, lon) by great-circle distance.
// Equidistant nodes resolve to the lowest node index.
//
// The R-tree is walked best-first with an exact point-to-box lower bound, so
// only the boxes that could hold a closer node are opened.
func (ix *Index) Nearest(lat, lon float64) (Match, error) {
	if ix.tree.Len() == 0 {
		return Match{}, ErrEmptyIndex
	}

	best := Match{Node: math.MaxUint32, DistanceMeters: math.Inf(1)}
	ix.tree.Nearby(
		func(min, max [2]float64, node uint32, item bool) float64 {
			if item {
				return geo.Haversine(lat, lon, min[1], min[0])
			}
			return geo.BoxDistance(lat, lon, orb.Bound{Min: orb.Point(min), Max: orb.Point(max)})
		},
		func(_, _ [2]float64, node uint32, dist float64) bool {
			if dist > best.DistanceMeters {
				return false
			}
			// Items arrive in ascending distance; equal ones keep the lowest index.
			if dist < best.DistanceMeters || node < best.Node {
				best = Match{Node: node, DistanceMeters: dist}
			}
			return true
		},
	)

	return ix.check(best)
}

// NearestLinear is the naive O(N) scan over every node. It is the reference
// the R-tree answer must agree with and is not used on the request path.
func NearestLinear(g *graph.Graph, lat, lon float64) (Match, error) {
	if g.NumNodes == 0 {
		return Match{}, ErrEmptyIndex
	}
	best := Match{Node: math.MaxUint32, DistanceMeters: math.Inf(1)}
	for u := uint32(0); u < g.NumNodes; u++ {
		d := geo.Haversine(lat, lon, g.NodeLat[u], g.NodeLon[u])
		if d < best.DistanceMeters {
			best = Match{Node: u, DistanceMeters: d}
		}
	}
	return best, nil
}

func (ix *Index) check(m Match) (Match, error) {
	if m.Node == math.MaxUint32 {
		return Match{}, fmt.Errorf("nearest node search returned no candidate over %d nodes", ix.tree.Len())
	}
	if ix.maxDist > 0 && m.DistanceMeters > ix.maxDist {
		return Match{}, fmt.Errorf("%w: nearest node is %.0f m away (limit %.0f m)", ErrPointTooFar, m.DistanceMeters, ix.maxDist)
	}
	return m, nil
}
