package routing

import "math"

const (
	noNode  = ^uint32(0) // sentinel for "no node"
	infDist = math.MaxUint64
)

// MinHeap is a concrete-typed min-heap for the Dijkstra priority queue.
// Avoids interface boxing overhead of container/heap.
//
// Items are ordered by distance, then by node index, so the pop order is a
// pure function of the graph and the query.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry.
type PQItem struct {
	Node uint32
	Dist uint64
}

func (a PQItem) less(b PQItem) bool {
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return a.Node < b.Node
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(node uint32, dist uint64) {
	h.items = append(h.items, PQItem{node, dist})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *MinHeap) PeekDist() uint64 {
	if len(h.items) == 0 {
		return infDist
	}
	return h.items[0].Dist
}

func (h *MinHeap) Reset() {
	h.items = h.items[:0]
}

// siftUp uses hole-sift: saves the floating item and does 1 assignment per
// level instead of 3 (swap).
func (h *MinHeap) siftUp(i int) {
	item := h.items[i]
	for i > 0 {
		parent := (i - 1) / 2
		if !item.less(h.items[parent]) {
			break
		}
		h.items[i] = h.items[parent]
		i = parent
	}
	h.items[i] = item
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	item := h.items[i]
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if right := child + 1; right < n && h.items[right].less(h.items[child]) {
			child = right
		}
		if !h.items[child].less(item) {
			break
		}
		h.items[i] = h.items[child]
		i = child
	}
	h.items[i] = item
}

// queryState holds per-query Dijkstra state. It is sized for one graph and
// reused through a sync.Pool; only one query uses it at a time.
type queryState struct {
	dist    []uint64
	pred    []uint32 // noNode = no predecessor
	settled []bool
	touched []uint32 // nodes touched during this query (for fast reset)
	pq      MinHeap
}

func newQueryState(n uint32) *queryState {
	dist := make([]uint64, n)
	pred := make([]uint32, n)
	for i := range dist {
		dist[i] = infDist
		pred[i] = noNode
	}
	return &queryState{
		dist:    dist,
		pred:    pred,
		settled: make([]bool, n),
		touched: make([]uint32, 0, 1024),
		pq:      MinHeap{items: make([]PQItem, 0, 256)},
	}
}

// reset clears only the touched entries for fast reuse.
func (qs *queryState) reset() {
	for _, node := range qs.touched {
		qs.dist[node] = infDist
		qs.pred[node] = noNode
		qs.settled[node] = false
	}
	qs.touched = qs.touched[:0]
	qs.pq.Reset()
}

func (qs *queryState) improve(node uint32, dist uint64, pred uint32) {
	if qs.dist[node] == infDist {
		qs.touched = append(qs.touched, node)
	}
	qs.dist[node] = dist
	qs.pred[node] = pred
}
