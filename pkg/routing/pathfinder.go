package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/azybler/route_finder/pkg/graph"
)

// ctxCheckInterval is how many heap pops run between context checks.
const ctxCheckInterval = 256

// Path is a shortest path as a sequence of node indices.
type Path struct {
	Nodes   []uint32
	Weight  uint64 // millimeters
	Settled int    // nodes settled by the search
}

// PathFinder computes shortest paths over one graph.
type PathFinder interface {
	ShortestPath(ctx context.Context, source, target uint32) (Path, error)
}

// Dijkstra is a PathFinder running Dijkstra's algorithm over the graph's
// CSR adjacency with edge length as cost. It is safe for concurrent use;
// every call takes its own scratch state from a pool.
type Dijkstra struct {
	g    *graph.Graph
	pool sync.Pool
}

// NewDijkstra returns a Dijkstra path finder for g.
func NewDijkstra(g *graph.Graph) *Dijkstra {
	d := &Dijkstra{g: g}
	d.pool.New = func() any { return newQueryState(g.NumNodes) }
	return d
}

// ShortestPath returns the minimum-weight path from source to target.
//
// Equal-weight alternatives are resolved the same way on every run: the
// heap pops by (distance, node index) and a node reached at an equal
// distance keeps the predecessor with the lower index. Fails with ErrNoPath
// when target is unreachable and with the context's error when ctx is done.
func (d *Dijkstra) ShortestPath(ctx context.Context, source, target uint32) (Path, error) {
	g := d.g
	if !g.Has(source) || !g.Has(target) {
		return Path{}, fmt.Errorf("%w: source=%d target=%d nodes=%d", ErrNodeOutOfRange, source, target, g.NumNodes)
	}
	if err := ctx.Err(); err != nil {
		return Path{}, err
	}
	if source == target {
		return Path{Nodes: []uint32{source}}, nil
	}
	if !g.SameComponent(source, target) {
		return Path{}, ErrNoPath
	}

	qs := d.pool.Get().(*queryState)
	defer func() {
		qs.reset()
		d.pool.Put(qs)
	}()

	qs.improve(source, 0, noNode)
	qs.pq.Push(source, 0)

	settled := 0
	for qs.pq.Len() > 0 {
		if settled%ctxCheckInterval == ctxCheckInterval-1 {
			if err := ctx.Err(); err != nil {
				return Path{}, fmt.Errorf("search stopped after %d settled nodes: %w", settled, err)
			}
		}

		item := qs.pq.Pop()
		u := item.Node
		if item.Dist > qs.dist[u] || qs.settled[u] {
			continue // stale entry
		}
		qs.settled[u] = true
		settled++

		if u == target {
			break
		}

		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			if qs.settled[v] {
				continue
			}
			newDist := item.Dist + uint64(g.Weight[e])
			switch {
			case newDist < qs.dist[v]:
				qs.improve(v, newDist, u)
				qs.pq.Push(v, newDist)
			case newDist == qs.dist[v] && u < qs.pred[v]:
				qs.pred[v] = u
			}
		}
	}

	if !qs.settled[target] {
		return Path{Settled: settled}, ErrNoPath
	}

	nodes, err := qs.trace(source, target, g.NumNodes)
	if err != nil {
		return Path{}, err
	}
	return Path{Nodes: nodes, Weight: qs.dist[target], Settled: settled}, nil
}

// trace follows predecessors from target back to source.
func (qs *queryState) trace(source, target, numNodes uint32) ([]uint32, error) {
	var nodes []uint32
	for node := target; ; node = qs.pred[node] {
		if node == noNode || uint32(len(nodes)) >= numNodes {
			return nil, fmt.Errorf("predecessor chain from %d does not reach %d", target, source)
		}
		nodes = append(nodes, node)
		if node == source {
			break
		}
	}
	// Reverse to get source → target.
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes, nil
}
