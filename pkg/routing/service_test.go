package routing

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/route_finder/pkg/graph"
)

// countingFinder wraps a PathFinder and counts calls.
type countingFinder struct {
	next  PathFinder
	calls atomic.Int32
}

func (f *countingFinder) ShortestPath(ctx context.Context, source, target uint32) (Path, error) {
	f.calls.Add(1)
	return f.next.ShortestPath(ctx, source, target)
}

// stubFinder returns a fixed result.
type stubFinder struct {
	path Path
	err  error
}

func (f stubFinder) ShortestPath(context.Context, uint32, uint32) (Path, error) {
	return f.path, f.err
}

// blockingFinder waits for the context to end.
type blockingFinder struct{}

func (blockingFinder) ShortestPath(ctx context.Context, _, _ uint32) (Path, error) {
	<-ctx.Done()
	return Path{}, ctx.Err()
}

func newCountingService(t *testing.T, g *graph.Graph, opts ...Option) (*Service, *countingFinder) {
	t.Helper()
	cf := &countingFinder{}
	opts = append(opts, WithPathFinder(func(g *graph.Graph) PathFinder {
		cf.next = NewDijkstra(g)
		return cf
	}))
	svc, err := NewServiceFromGraph(g, opts...)
	require.NoError(t, err)
	return svc, cf
}

func TestServiceRouteEndToEnd(t *testing.T) {
	g := buildTestGraph(t)
	svc, _ := newCountingService(t, g)

	// Near node 0 to near node 5.
	r, err := svc.Route(context.Background(),
		LatLng{Lat: 1.3000, Lng: 103.8001},
		LatLng{Lat: 1.3010, Lng: 103.8019},
	)
	require.NoError(t, err)

	want := []LatLng{
		{Lat: 1.300, Lng: 103.800},
		{Lat: 1.300, Lng: 103.801},
		{Lat: 1.300, Lng: 103.802},
		{Lat: 1.301, Lng: 103.802},
	}
	if diff := cmp.Diff(want, r.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int64{10, 20, 30, 60}, r.NodeIDs)
	assert.InDelta(t, 0.7, r.DistanceMeters, 1e-9)
	assert.Greater(t, r.OriginSnapMeters, 0.0)
}

func TestServiceDirectEdgeBeatsLine(t *testing.T) {
	// A-B-C-D with weights 1,1,1 and A-D with weight 2.
	nodes := []graph.RawNode{
		{ID: 1, Lat: 0, Lon: 0},
		{ID: 2, Lat: 0, Lon: 0.01},
		{ID: 3, Lat: 0, Lon: 0.02},
		{ID: 4, Lat: 0, Lon: 0.03},
	}
	edges := graph.Symmetrize([]graph.RawEdge{
		{From: 1, To: 2, Weight: 1},
		{From: 2, To: 3, Weight: 1},
		{From: 3, To: 4, Weight: 1},
		{From: 1, To: 4, Weight: 2},
	})
	g, err := graph.Build(nodes, edges)
	require.NoError(t, err)
	svc, _ := newCountingService(t, g)

	r, err := svc.Route(context.Background(), LatLng{Lat: 0, Lng: 0}, LatLng{Lat: 0, Lng: 0.03})
	require.NoError(t, err)
	assert.Equal(t, []LatLng{{0, 0}, {0, 0.03}}, r.Points)
	assert.Equal(t, []int64{1, 4}, r.NodeIDs)
	assert.InDelta(t, 0.002, r.DistanceMeters, 1e-12)
}

func TestServiceSameNodeSkipsPathFinder(t *testing.T) {
	g := buildTestGraph(t)
	svc, cf := newCountingService(t, g)

	r, err := svc.Route(context.Background(),
		LatLng{Lat: 1.30001, Lng: 103.80001},
		LatLng{Lat: 1.29999, Lng: 103.79999},
	)
	require.NoError(t, err)
	assert.Equal(t, []LatLng{{Lat: 1.300, Lng: 103.800}}, r.Points)
	assert.Zero(t, r.DistanceMeters)
	assert.Zero(t, cf.calls.Load())
}

func TestServiceInvalidInput(t *testing.T) {
	g := buildTestGraph(t)
	svc, cf := newCountingService(t, g)
	ok := LatLng{Lat: 1.3, Lng: 103.8}

	tests := []struct {
		name        string
		origin, dst LatLng
	}{
		{"latitude 91", LatLng{Lat: 91, Lng: 0}, ok},
		{"longitude 181", ok, LatLng{Lat: 0, Lng: 181}},
		{"latitude -90.5", LatLng{Lat: -90.5, Lng: 0}, ok},
		{"NaN", LatLng{Lat: math.NaN(), Lng: 0}, ok},
		{"infinite longitude", ok, LatLng{Lat: 0, Lng: math.Inf(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Route(context.Background(), tt.origin, tt.dst)
			require.Error(t, err)
			assert.Equal(t, KindInvalidInput, KindOf(err))
			assert.ErrorIs(t, err, ErrInvalidCoordinate)
		})
	}
	assert.Zero(t, cf.calls.Load(), "no search may run for invalid input")
}

func TestServicePointTooFar(t *testing.T) {
	g := buildTestGraph(t)
	svc, _ := newCountingService(t, g, WithMaxSnapDistance(1000))

	_, err := svc.Route(context.Background(), LatLng{Lat: 1.3, Lng: 103.8}, LatLng{Lat: 2.3, Lng: 103.8})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.ErrorIs(t, err, ErrPointTooFar)
}

func TestServiceNoPath(t *testing.T) {
	nodes := []graph.RawNode{
		{ID: 1, Lat: 0, Lon: 0},
		{ID: 2, Lat: 0, Lon: 0.001},
		{ID: 3, Lat: 1, Lon: 1},
		{ID: 4, Lat: 1, Lon: 1.001},
	}
	edges := graph.Symmetrize([]graph.RawEdge{
		{From: 1, To: 2, Weight: 100},
		{From: 3, To: 4, Weight: 100},
	})
	g, err := graph.Build(nodes, edges)
	require.NoError(t, err)
	svc, _ := newCountingService(t, g)

	_, err = svc.Route(context.Background(), LatLng{Lat: 0, Lng: 0}, LatLng{Lat: 1, Lng: 1})
	require.Error(t, err)
	assert.Equal(t, KindNoPath, KindOf(err))
	assert.ErrorIs(t, err, ErrNoPath)

	var re *RouteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindNoPath, re.Kind)
}

func TestServiceTimeout(t *testing.T) {
	g := buildTestGraph(t)
	svc, err := NewServiceFromGraph(g,
		WithRequestTimeout(20*time.Millisecond),
		WithPathFinder(func(*graph.Graph) PathFinder { return blockingFinder{} }),
	)
	require.NoError(t, err)

	start := time.Now()
	_, err = svc.Route(context.Background(), LatLng{Lat: 1.300, Lng: 103.800}, LatLng{Lat: 1.301, Lng: 103.802})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	// Caller cancellation is reported the same way.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Route(ctx, LatLng{Lat: 1.300, Lng: 103.800}, LatLng{Lat: 1.301, Lng: 103.802})
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestServiceInternalErrors(t *testing.T) {
	g := buildTestGraph(t)
	ctx := context.Background()
	from, to := LatLng{Lat: 1.300, Lng: 103.800}, LatLng{Lat: 1.301, Lng: 103.802}

	tests := []struct {
		name   string
		finder stubFinder
	}{
		{"finder failure", stubFinder{err: errors.New("boom")}},
		{"node out of range", stubFinder{path: Path{Nodes: []uint32{0, 99, 5}}}},
		{"wrong endpoints", stubFinder{path: Path{Nodes: []uint32{1, 5}}}},
		{"empty path", stubFinder{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewServiceFromGraph(g, WithPathFinder(func(*graph.Graph) PathFinder { return tt.finder }))
			require.NoError(t, err)

			_, err = svc.Route(ctx, from, to)
			require.Error(t, err)
			assert.Equal(t, KindInternal, KindOf(err))
		})
	}
}

func TestServiceDeterministic(t *testing.T) {
	g := buildTestGraph(t)
	svc, _ := newCountingService(t, g)
	ctx := context.Background()
	from, to := LatLng{Lat: 1.3004, Lng: 103.8003}, LatLng{Lat: 1.3009, Lng: 103.8017}

	first, err := svc.Route(ctx, from, to)
	require.NoError(t, err)
	for range 20 {
		again, err := svc.Route(ctx, from, to)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("route changed between calls (-first +again):\n%s", diff)
		}
	}
}

func TestServiceConcurrentMatchesSequential(t *testing.T) {
	g := lineGraph(t, 500)
	svc, _ := newCountingService(t, g)
	ctx := context.Background()

	queries := make([][2]LatLng, 64)
	want := make([]*Route, len(queries))
	for i := range queries {
		queries[i] = [2]LatLng{
			{Lat: 0, Lng: float64(i) * 7e-4},
			{Lat: 0, Lng: float64(499-i) * 1e-4},
		}
		r, err := svc.Route(ctx, queries[i][0], queries[i][1])
		require.NoError(t, err)
		want[i] = r
	}

	got := make([]*Route, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.Route(ctx, q[0], q[1])
			if err == nil {
				got[i] = r
			}
		}()
	}
	wg.Wait()

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("concurrent results differ (-sequential +concurrent):\n%s", diff)
	}
}

func TestServiceReload(t *testing.T) {
	small := buildTestGraph(t)
	large := lineGraph(t, 100)

	var current atomic.Pointer[graph.Graph]
	current.Store(small)
	fail := atomic.Bool{}
	load := func(context.Context) (*graph.Graph, error) {
		if fail.Load() {
			return nil, errors.New("artifact missing")
		}
		return current.Load(), nil
	}

	svc, err := NewService(context.Background(), load, WithSource("test"))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), svc.Stats().NumNodes)
	assert.Equal(t, "test", svc.Stats().Source)

	// Readers keep routing while the graph is swapped underneath them.
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var routeErrs atomic.Int32
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if _, err := svc.Route(context.Background(), LatLng{Lat: 0, Lng: 0}, LatLng{Lat: 1.3, Lng: 103.8}); err != nil && KindOf(err) != KindNoPath {
					routeErrs.Add(1)
				}
			}
		}()
	}

	current.Store(large)
	require.NoError(t, svc.Reload(context.Background()))
	assert.Equal(t, uint32(100), svc.Stats().NumNodes)

	fail.Store(true)
	require.Error(t, svc.Reload(context.Background()))
	assert.Equal(t, uint32(100), svc.Stats().NumNodes, "failed reload must keep the old graph")

	cancel()
	wg.Wait()
	assert.Zero(t, routeErrs.Load())
}

func TestNewServiceRejectsEmptyGraph(t *testing.T) {
	g, err := graph.Build(nil, nil)
	require.NoError(t, err)
	_, err = NewServiceFromGraph(g)
	assert.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "invalid_input", KindInvalidInput.String())
	assert.Equal(t, "no_path", KindNoPath.String())
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "internal", KindInternal.String())
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}
