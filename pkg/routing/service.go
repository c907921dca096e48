package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/azybler/route_finder/pkg/geo"
	"github.com/azybler/route_finder/pkg/graph"
	"github.com/azybler/route_finder/pkg/spatial"
)

// LatLng represents a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// Route is the output of a route query. Points[0] is the node the origin
// resolved to and the last point is the node the destination resolved to.
type Route struct {
	Points         []LatLng
	NodeIDs        []int64
	DistanceMeters float64

	OriginSnapMeters      float64
	DestinationSnapMeters float64
}

// Stats describes the graph currently being served.
type Stats struct {
	NumNodes      uint32
	NumEdges      uint32
	NumComponents int
	Source        string
	LoadedAt      time.Time
}

// Router is the interface for route queries.
type Router interface {
	Route(ctx context.Context, origin, destination LatLng) (*Route, error)
	Stats() Stats
}

// Loader produces a graph for the service to serve.
type Loader func(ctx context.Context) (*graph.Graph, error)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRequestTimeout bounds every path search. Zero leaves only the caller's
// context in charge.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithMaxSnapDistance rejects query points farther than meters from every
// node. Zero disables the limit.
func WithMaxSnapDistance(meters float64) Option {
	return func(s *Service) { s.maxSnap = meters }
}

// WithPathFinder replaces the path finder built for each loaded graph.
func WithPathFinder(newFinder func(*graph.Graph) PathFinder) Option {
	return func(s *Service) { s.newFinder = newFinder }
}

// WithSource labels the loaded graph in Stats and logs.
func WithSource(source string) Option {
	return func(s *Service) { s.source = source }
}

// snapshot is one graph together with everything derived from it. It is
// never modified after it is published.
type snapshot struct {
	g        *graph.Graph
	index    *spatial.Index
	finder   PathFinder
	comps    int
	loadedAt time.Time
}

// Service answers route queries against the current graph snapshot.
// Queries never block each other or a reload: each one reads the snapshot
// pointer once and finishes on that snapshot.
type Service struct {
	cur atomic.Pointer[snapshot]

	load      Loader
	newFinder func(*graph.Graph) PathFinder
	logger    *zap.Logger
	timeout   time.Duration
	maxSnap   float64
	source    string

	reloadMu sync.Mutex
}

// NewService loads the first graph and returns a service ready to answer
// queries. It blocks until the graph and its index are built.
func NewService(ctx context.Context, load Loader, opts ...Option) (*Service, error) {
	s := &Service{
		load:      load,
		newFinder: func(g *graph.Graph) PathFinder { return NewDijkstra(g) },
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewServiceFromGraph serves an already built graph.
func NewServiceFromGraph(g *graph.Graph, opts ...Option) (*Service, error) {
	load := func(context.Context) (*graph.Graph, error) { return g, nil }
	return NewService(context.Background(), load, opts...)
}

// Reload builds a new snapshot from the loader and swaps it in. On failure
// the current snapshot keeps serving.
func (s *Service) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	g, err := s.load(ctx)
	if err == nil && g.NumNodes == 0 {
		err = errors.New("graph has no nodes")
	}
	if err != nil {
		graphReloads.WithLabelValues("error").Inc()
		s.logger.Error("graph load failed", zap.String("source", s.source), zap.Error(err))
		return fmt.Errorf("load graph: %w", err)
	}

	snap := &snapshot{
		g:        g,
		index:    spatial.Build(g, spatial.WithMaxDistance(s.maxSnap)),
		finder:   s.newFinder(g),
		comps:    int(g.NumComponents()),
		loadedAt: time.Now(),
	}
	s.cur.Store(snap)

	graphReloads.WithLabelValues("ok").Inc()
	graphNodes.Set(float64(g.NumNodes))
	graphEdges.Set(float64(g.NumEdges))
	s.logger.Info("graph loaded",
		zap.String("source", s.source),
		zap.Uint32("nodes", g.NumNodes),
		zap.Uint32("edges", g.NumEdges),
		zap.Int("components", snap.comps),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Stats reports the graph currently being served.
func (s *Service) Stats() Stats {
	snap := s.cur.Load()
	if snap == nil {
		return Stats{Source: s.source}
	}
	return Stats{
		NumNodes:      snap.g.NumNodes,
		NumEdges:      snap.g.NumEdges,
		NumComponents: snap.comps,
		Source:        s.source,
		LoadedAt:      snap.loadedAt,
	}
}

// Route returns the shortest path between the nodes nearest to origin and
// destination. Every error it returns is a *RouteError.
func (s *Service) Route(ctx context.Context, origin, destination LatLng) (route *Route, err error) {
	start := time.Now()
	ctx, span := getTracer().Start(ctx, "routing.Service.Route",
		trace.WithAttributes(
			attribute.Float64("origin.lat", origin.Lat),
			attribute.Float64("origin.lng", origin.Lng),
			attribute.Float64("destination.lat", destination.Lat),
			attribute.Float64("destination.lng", destination.Lng),
		),
	)
	defer span.End()
	defer func() { s.observe(span, start, route, err) }()

	if err := geo.Validate(origin.Lat, origin.Lng); err != nil {
		return nil, &RouteError{Kind: KindInvalidInput, Err: fmt.Errorf("origin: %w", err)}
	}
	if err := geo.Validate(destination.Lat, destination.Lng); err != nil {
		return nil, &RouteError{Kind: KindInvalidInput, Err: fmt.Errorf("destination: %w", err)}
	}

	snap := s.cur.Load()
	if snap == nil {
		return nil, &RouteError{Kind: KindInternal, Err: errors.New("no graph loaded")}
	}

	from, err := snap.index.Nearest(origin.Lat, origin.Lng)
	if err != nil {
		return nil, classify(fmt.Errorf("origin: %w", err))
	}
	to, err := snap.index.Nearest(destination.Lat, destination.Lng)
	if err != nil {
		return nil, classify(fmt.Errorf("destination: %w", err))
	}

	if from.Node == to.Node {
		return snap.route(Path{Nodes: []uint32{from.Node}}, from, to)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	path, err := snap.finder.ShortestPath(ctx, from.Node, to.Node)
	if path.Settled > 0 {
		searchSettled.Observe(float64(path.Settled))
	}
	if err != nil {
		return nil, classify(err)
	}
	return snap.route(path, from, to)
}

// route translates a node path into coordinates in path order.
func (snap *snapshot) route(p Path, from, to spatial.Match) (*Route, error) {
	g := snap.g
	if len(p.Nodes) == 0 || p.Nodes[0] != from.Node || p.Nodes[len(p.Nodes)-1] != to.Node {
		return nil, &RouteError{Kind: KindInternal, Err: fmt.Errorf("path does not join node %d to node %d", from.Node, to.Node)}
	}
	r := &Route{
		Points:                make([]LatLng, len(p.Nodes)),
		NodeIDs:               make([]int64, len(p.Nodes)),
		DistanceMeters:        float64(p.Weight) / 1000.0,
		OriginSnapMeters:      from.DistanceMeters,
		DestinationSnapMeters: to.DistanceMeters,
	}
	for i, n := range p.Nodes {
		if !g.Has(n) {
			return nil, &RouteError{Kind: KindInternal, Err: fmt.Errorf("%w: path node %d", ErrNodeOutOfRange, n)}
		}
		lat, lon := g.Coord(n)
		r.Points[i] = LatLng{Lat: lat, Lng: lon}
		r.NodeIDs[i] = g.NodeID[n]
	}
	return r, nil
}

func (s *Service) observe(span trace.Span, start time.Time, route *Route, err error) {
	took := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	routeRequests.WithLabelValues(outcome).Inc()
	routeDuration.WithLabelValues(outcome).Observe(took.Seconds())
	span.SetAttributes(attribute.String("route.outcome", outcome))

	if err == nil {
		span.SetAttributes(
			attribute.Int("route.points", len(route.Points)),
			attribute.Float64("route.distance_m", route.DistanceMeters),
		)
		span.SetStatus(codes.Ok, "route found")
		s.logger.Debug("route",
			zap.Int("points", len(route.Points)),
			zap.Float64("distance_m", route.DistanceMeters),
			zap.Duration("took", took),
		)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	switch KindOf(err) {
	case KindInternal:
		s.logger.Error("route failed", zap.Error(err), zap.Duration("took", took))
	case KindTimeout:
		s.logger.Warn("route timed out", zap.Error(err), zap.Duration("took", took))
	default:
		s.logger.Debug("route rejected", zap.String("outcome", outcome), zap.Error(err))
	}
}
